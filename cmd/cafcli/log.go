package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/poslevkusie7/caf/internal/cafcore"
)

func runLog(repo *cafcore.Repository, args []string) int {
	oneline := false
	limit := 0
	ref := "HEAD"

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--oneline":
			oneline = true
		case args[i] == "-n" && i+1 < len(args):
			n, err := strconv.Atoi(args[i+1])
			if err != nil {
				fmt.Fprintf(os.Stderr, "caf log: invalid -n value %q\n", args[i+1])
				return 1
			}
			limit = n
			i++
		default:
			ref = args[i]
		}
	}

	commits, err := repo.Log(ref, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	for _, c := range commits {
		hash := repo.Store().HashCommit(c)
		if oneline {
			fmt.Printf("%s %s\n", hash.Short(), firstLine(c.Message))
			continue
		}
		fmt.Printf("commit %s\n", hash)
		fmt.Printf("Author: %s\n", c.Author)
		fmt.Printf("Date:   %s\n\n", time.Unix(c.Timestamp, 0).Format(time.RFC1123Z))
		fmt.Printf("    %s\n\n", c.Message)
	}
	return 0
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
