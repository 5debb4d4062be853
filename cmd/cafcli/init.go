package main

import (
	"fmt"
	"os"

	"github.com/poslevkusie7/caf/internal/cafcore"
)

func runInit(args []string) int {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	if _, err := cafcore.Init(dir, metaDirName); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	fmt.Printf("Initialized empty caf repository in %s/%s\n", dir, metaDirName)
	return 0
}
