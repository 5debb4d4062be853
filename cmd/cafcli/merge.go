package main

import (
	"fmt"
	"os"

	"github.com/poslevkusie7/caf/internal/cafcore"
)

func runMerge(repo *cafcore.Repository, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: caf merge <name>")
		return 1
	}

	outcome, err := repo.Merge(commitAuthor(), args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	if outcome.Conflicted {
		fmt.Println("Automatic merge failed; fix conflicts and then commit the result.")
		for _, p := range outcome.ConflictPaths {
			fmt.Printf("\tboth modified:   %s\n", p)
		}
		return 1
	}

	fmt.Printf("Merge completed, tree %s\n", outcome.TreeHash.Short())
	return 0
}
