package scanner

import (
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// InFlight tracks the files a batch is inspecting right now. A nil
// *InFlight is valid and records nothing.
type InFlight struct {
	mu      sync.Mutex
	started map[string]time.Time
	done    atomic.Int64
}

func NewInFlight() *InFlight {
	return &InFlight{started: make(map[string]time.Time)}
}

func (f *InFlight) begin(path string) {
	if f == nil {
		return
	}
	f.mu.Lock()
	f.started[path] = time.Now()
	f.mu.Unlock()
}

func (f *InFlight) end(path string) {
	if f == nil {
		return
	}
	f.mu.Lock()
	delete(f.started, path)
	f.mu.Unlock()
	f.done.Add(1)
}

// Paths lists the files being inspected, longest running first.
func (f *InFlight) Paths() []string {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	paths := make([]string, 0, len(f.started))
	for p := range f.started {
		paths = append(paths, p)
	}
	slices.SortFunc(paths, func(a, b string) int {
		if c := f.started[a].Compare(f.started[b]); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return paths
}

// Completed counts files finished since the tracker was created.
func (f *InFlight) Completed() int64 {
	if f == nil {
		return 0
	}
	return f.done.Load()
}
