package main

import (
	"fmt"
	"os"

	"github.com/poslevkusie7/caf/internal/cafcore"
)

func runStatus(repo *cafcore.Repository, args []string) int {
	porcelain := false
	for _, arg := range args {
		if arg == "-s" || arg == "--porcelain" {
			porcelain = true
		}
	}

	files, err := repo.Status()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	if porcelain {
		for _, f := range files {
			fmt.Printf("%c%c %s\n", statusCode(f.IndexStatus, f.IsUntracked), statusCode(f.WorkStatus, f.IsUntracked), f.Path)
		}
		return 0
	}

	var staged, unstaged, untracked []cafcore.FileStatus
	for _, f := range files {
		switch {
		case f.IsUntracked:
			untracked = append(untracked, f)
		default:
			if f.IndexStatus != "" {
				staged = append(staged, f)
			}
			if f.WorkStatus != "" {
				unstaged = append(unstaged, f)
			}
		}
	}

	if len(staged) > 0 {
		fmt.Println("Changes to be committed:")
		for _, f := range staged {
			fmt.Printf("\t%s:   %s\n", f.IndexStatus, f.Path)
		}
		fmt.Println()
	}
	if len(unstaged) > 0 {
		fmt.Println("Changes not staged for commit:")
		for _, f := range unstaged {
			fmt.Printf("\t%s:   %s\n", f.WorkStatus, f.Path)
		}
		fmt.Println()
	}
	if len(untracked) > 0 {
		fmt.Println("Untracked files:")
		for _, f := range untracked {
			fmt.Printf("\t%s\n", f.Path)
		}
		fmt.Println()
	}
	if len(staged) == 0 && len(unstaged) == 0 && len(untracked) == 0 {
		fmt.Println("nothing to commit, working tree clean")
	}
	return 0
}

func statusCode(s string, untracked bool) byte {
	if untracked {
		return '?'
	}
	switch s {
	case "added":
		return 'A'
	case "modified":
		return 'M'
	case "deleted":
		return 'D'
	default:
		return ' '
	}
}
