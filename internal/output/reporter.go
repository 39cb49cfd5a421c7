package output

import (
	"fmt"
	"io"
	"sync"

	"vfs-go/internal/cms"
)

// ConsoleReporter prints publish progress line by line.
type ConsoleReporter struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
	failed  int
}

// NewConsoleReporter writes to w. Unless verbose is set only stages and
// failures are printed.
func NewConsoleReporter(w io.Writer, verbose bool) *ConsoleReporter {
	return &ConsoleReporter{w: w, verbose: verbose}
}

func (r *ConsoleReporter) Stage(name string, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "%s %s\n", headerColor.Sprint(name), Dim(fmt.Sprintf("(%d)", count)))
}

func (r *ConsoleReporter) Published(path string, state cms.State) {
	if !r.verbose {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "  %s %s\n", StateMarker(state), path)
}

func (r *ConsoleReporter) Failed(path string, state cms.State, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed++
	fmt.Fprintf(r.w, "  %s %s: %v\n", Error("!"), path, err)
}

// Failures returns the number of Failed calls seen.
func (r *ConsoleReporter) Failures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}

var _ cms.Reporter = (*ConsoleReporter)(nil)
