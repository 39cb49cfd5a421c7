package testutil

import (
	"sync"

	"vfs-go/internal/cms"
)

// ReportedItem is one Published or Failed call seen by RecordingReporter.
type ReportedItem struct {
	Path  string
	State cms.State
	Err   error
}

// RecordingReporter records publish progress for assertions.
type RecordingReporter struct {
	mu             sync.Mutex
	Stages         []string
	PublishedItems []ReportedItem
	FailedItems    []ReportedItem
}

func (r *RecordingReporter) Stage(name string, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Stages = append(r.Stages, name)
}

func (r *RecordingReporter) Published(path string, state cms.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.PublishedItems = append(r.PublishedItems, ReportedItem{Path: path, State: state})
}

func (r *RecordingReporter) Failed(path string, state cms.State, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FailedItems = append(r.FailedItems, ReportedItem{Path: path, State: state, Err: err})
}

// PublishedPaths returns the published paths in report order.
func (r *RecordingReporter) PublishedPaths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.PublishedItems))
	for i, item := range r.PublishedItems {
		out[i] = item.Path
	}
	return out
}

var _ cms.Reporter = (*RecordingReporter)(nil)
