package main

import (
	"fmt"
	"os"

	"github.com/poslevkusie7/caf/internal/cafcore"
)

func runCommit(repo *cafcore.Repository, args []string) int {
	var message string
	for i := 0; i < len(args); i++ {
		if args[i] == "-m" && i+1 < len(args) {
			message = args[i+1]
			i++
		}
	}
	if message == "" {
		fmt.Fprintln(os.Stderr, "usage: caf commit -m <message>")
		return 1
	}

	hash, err := repo.CommitWorkingDir(commitAuthor(), message)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	fmt.Printf("[%s] %s\n", hash.Short(), message)
	return 0
}
