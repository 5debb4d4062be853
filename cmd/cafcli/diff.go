package main

import (
	"fmt"
	"os"

	"github.com/poslevkusie7/caf/internal/cafcore"
	"github.com/poslevkusie7/caf/internal/termcolor"
)

func runDiff(repo *cafcore.Repository, args []string, cw *termcolor.Writer) int {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: caf diff <from> <to>")
		return 1
	}

	forest, err := repo.Diff(args[0], args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	printDiffLevel(cw, forest, forest.Root, "")
	return 0
}

func printDiffLevel(cw *termcolor.Writer, forest *cafcore.DiffForest, handles []cafcore.DiffHandle, prefix string) {
	for _, h := range handles {
		n := forest.Node(h)
		path := n.Record.Name
		if prefix != "" {
			path = prefix + "/" + path
		}

		switch n.Kind {
		case cafcore.DiffAdded:
			fmt.Println(cw.Green("+ " + path))
		case cafcore.DiffRemoved:
			fmt.Println(cw.Red("- " + path))
		case cafcore.DiffModified:
			fmt.Println(cw.Yellow("~ " + path))
		case cafcore.DiffMovedFrom:
			fmt.Println(cw.Cyan("  (moved) " + path))
		case cafcore.DiffMovedTo:
			fmt.Println(cw.Cyan("  (moved) " + path))
		}

		if len(n.Children) > 0 {
			printDiffLevel(cw, forest, n.Children, path)
		}
	}
}
