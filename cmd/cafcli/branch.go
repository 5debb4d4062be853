package main

import (
	"fmt"
	"os"

	"github.com/poslevkusie7/caf/internal/cafcore"
)

func runBranch(repo *cafcore.Repository, args []string) int {
	for i := 0; i < len(args); i++ {
		if args[i] == "-d" && i+1 < len(args) {
			if err := repo.DeleteBranch(args[i+1]); err != nil {
				fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
				return 128
			}
			return 0
		}
	}
	if len(args) > 0 {
		if err := repo.AddBranch(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			return 128
		}
		return 0
	}

	names, err := repo.Branches()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return 0
}
