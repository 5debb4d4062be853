// Package progress provides terminal progress indicators.
package progress

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/poslevkusie7/caf/internal/termcolor"
)

// Spinner displays an animated indicator on stderr while a long-running
// operation (hashing a large tree, merging, resolving conflicts) is in
// progress. It is only displayed when stderr is a TTY; in non-interactive
// environments (piped output, CI, the test suite) it is silent. On a TTY
// it defers the actual animation to pterm's spinner, and falls back to a
// hand-rolled braille frame writer only when pterm's spinner fails to
// start.
type Spinner struct {
	msg string

	ptermSpinner *pterm.SpinnerPrinter

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a Spinner that will display msg alongside the animation.
func New(msg string) *Spinner {
	return &Spinner{
		msg:  msg,
		done: make(chan struct{}),
	}
}

// Start begins the spinner animation. It writes to stderr so it never
// pollutes stdout.
func (s *Spinner) Start() {
	if !termcolor.IsTerminal(os.Stderr.Fd()) {
		return
	}

	printer, err := pterm.DefaultSpinner.WithWriter(os.Stderr).Start(s.msg)
	if err == nil {
		s.ptermSpinner = printer
		return
	}

	s.wg.Add(1)
	go s.runFallback()
}

func (s *Spinner) runFallback() {
	defer s.wg.Done()
	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()
	i := 0
	for {
		select {
		case <-s.done:
			fmt.Fprintf(os.Stderr, "\r\033[K")
			return
		case <-ticker.C:
			fmt.Fprintf(os.Stderr, "\r%s %s", frames[i%len(frames)], s.msg)
			i++
		}
	}
}

// Stop halts the spinner animation and clears the line.
func (s *Spinner) Stop() {
	if s.ptermSpinner != nil {
		s.ptermSpinner.Stop() //nolint:errcheck
		return
	}
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	s.wg.Wait()
}
