// Command cafcli is the command-line front end for the caf snapshot
// engine: a content-addressed working-directory tracker in the spirit of
// a distributed version control tool, minus packfiles, remotes, and
// anything else outside this engine's scope.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/poslevkusie7/caf/internal/cafcore"
	"github.com/poslevkusie7/caf/internal/cli"
	"github.com/poslevkusie7/caf/internal/termcolor"
)

const metaDirName = ".caf"

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	gf, args := parseGlobalFlags(os.Args[1:])

	for _, a := range args {
		if a == "--version" {
			printVersion()
			os.Exit(0)
		}
	}

	cw := termcolor.NewWriter(os.Stdout, gf.colorMode)

	app := cli.NewApp("caf", version)
	app.Stderr = os.Stderr

	var repo *cafcore.Repository

	app.Register(&cli.Command{
		Name:    "init",
		Summary: "Create a new, empty repository",
		Usage:   "caf init",
		Run:     func(args []string) int { return runInit(args) },
	})

	app.Register(&cli.Command{
		Name:      "add",
		Summary:   "Stage a file or directory",
		Usage:     "caf add <path>...",
		Examples:  []string{"caf add .", "caf add src/main.go"},
		NeedsRepo: true,
		Run:       func(args []string) int { return runAdd(repo, args) },
	})

	app.Register(&cli.Command{
		Name:      "commit",
		Summary:   "Record the staged changes as a new commit",
		Usage:     "caf commit -m <message>",
		Examples:  []string{`caf commit -m "fix the thing"`},
		NeedsRepo: true,
		Run:       func(args []string) int { return runCommit(repo, args) },
	})

	app.Register(&cli.Command{
		Name:      "status",
		Summary:   "Show working tree status",
		Usage:     "caf status [-s|--porcelain]",
		NeedsRepo: true,
		Run:       func(args []string) int { return runStatus(repo, args) },
	})

	app.Register(&cli.Command{
		Name:      "diff",
		Summary:   "Show changes between two commits, branches, or tags",
		Usage:     "caf diff <from> <to>",
		Examples:  []string{"caf diff main feature", "caf diff v1.0 HEAD"},
		NeedsRepo: true,
		Run:       func(args []string) int { return runDiff(repo, args, cw) },
	})

	app.Register(&cli.Command{
		Name:      "log",
		Summary:   "Show commit log",
		Usage:     "caf log [--oneline] [-n <count>] [<ref>]",
		NeedsRepo: true,
		Run:       func(args []string) int { return runLog(repo, args) },
	})

	app.Register(&cli.Command{
		Name:      "branch",
		Summary:   "List, create, or delete branches",
		Usage:     "caf branch [<name>] [-d <name>]",
		NeedsRepo: true,
		Run:       func(args []string) int { return runBranch(repo, args) },
	})

	app.Register(&cli.Command{
		Name:      "tag",
		Summary:   "List, create, or delete tags",
		Usage:     "caf tag [<name>] [-d <name>]",
		NeedsRepo: true,
		Run:       func(args []string) int { return runTag(repo, args) },
	})

	app.Register(&cli.Command{
		Name:      "checkout",
		Summary:   "Switch the working directory to a branch, tag, or commit",
		Usage:     "caf checkout <name>",
		NeedsRepo: true,
		Run:       func(args []string) int { return runCheckout(repo, args) },
	})

	app.Register(&cli.Command{
		Name:      "merge",
		Summary:   "Merge another branch into the current one",
		Usage:     "caf merge <name>",
		NeedsRepo: true,
		Run:       func(args []string) int { return runMerge(repo, args) },
	})

	app.Register(&cli.Command{
		Name:      "delete-repo",
		Summary:   "Remove repository metadata, leaving working files in place",
		Usage:     "caf delete-repo",
		NeedsRepo: true,
		Run:       func(args []string) int { return runDeleteRepo(repo, args) },
	})

	app.Register(&cli.Command{
		Name:    "version",
		Summary: "Show version information",
		Usage:   "caf version",
		Run:     func([]string) int { printVersion(); return 0 },
	})

	app.Register(&cli.Command{
		Name:    "self-update",
		Summary: "Update caf to the latest released version",
		Usage:   "caf self-update",
		Run:     func(args []string) int { return runSelfUpdate(args) },
	})

	if len(args) > 0 {
		cmd := app.Lookup(args[0])
		if cmd != nil && cmd.NeedsRepo {
			var err error
			repo, err = cafcore.Open(".", metaDirName)
			if err != nil {
				fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
				os.Exit(128)
			}
		}
	}

	os.Exit(app.Run(args, cw))
}

func printVersion() {
	fmt.Printf("caf %s\n", version)
	fmt.Printf("  commit:     %s\n", commit)
	fmt.Printf("  built:      %s\n", buildDate)
	fmt.Printf("  go version: %s\n", runtime.Version())
	fmt.Printf("  platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// commitAuthor resolves the identity used to stamp new commits: the
// CAF_AUTHOR environment variable if set, else the OS username.
func commitAuthor() string {
	if a := os.Getenv("CAF_AUTHOR"); a != "" {
		return a
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}
