package main

import (
	"fmt"
	"os"

	"github.com/poslevkusie7/caf/internal/cafcore"
)

func runDeleteRepo(repo *cafcore.Repository, args []string) int {
	if err := repo.Delete(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	fmt.Printf("Removed %s\n", repo.MetaDir())
	return 0
}
