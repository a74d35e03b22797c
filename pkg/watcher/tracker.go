package watcher

import (
	"sync"
	"time"
)

// tracker prevents the same file from being processed concurrently when
// multiple filesystem events arrive for it.
type tracker struct {
	mu       sync.Mutex
	inFlight map[string]time.Time
}

func newTracker() *tracker {
	return &tracker{inFlight: make(map[string]time.Time)}
}

// TryLock claims a file for processing. It returns false when the file is
// already in flight.
func (t *tracker) TryLock(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.inFlight[path]; exists {
		return false
	}
	t.inFlight[path] = time.Now()
	return true
}

// Unlock releases a file's claim.
func (t *tracker) Unlock(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inFlight, path)
}

// CleanupStale drops claims older than timeout and returns how many were
// removed. Guards against goroutines that died without unlocking.
func (t *tracker) CleanupStale(timeout time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cleaned := 0
	now := time.Now()
	for path, claimed := range t.inFlight {
		if now.Sub(claimed) > timeout {
			delete(t.inFlight, path)
			cleaned++
		}
	}
	return cleaned
}
