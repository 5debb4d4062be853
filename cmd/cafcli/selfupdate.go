package main

import (
	"fmt"
	"os"

	"github.com/poslevkusie7/caf/internal/selfupdate"
)

const selfUpdateRepo = "poslevkusie7/caf"

func runSelfUpdate(args []string) int {
	latest, err := selfupdate.CheckLatest(selfUpdateRepo)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: checking latest release: %v\n", err)
		return 1
	}
	if !selfupdate.NeedsUpdate(version, latest) {
		fmt.Printf("caf %s is already up to date\n", version)
		return 0
	}

	fmt.Printf("updating caf %s -> %s\n", version, latest)
	if err := selfupdate.Update(selfUpdateRepo, "caf", latest); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 1
	}
	fmt.Printf("updated to %s\n", latest)
	return 0
}
