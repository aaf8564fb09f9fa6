package replication

import (
	"sync"
	"sync/atomic"
)

// inflight tracks background replications so shutdown can drain them.
// Once closed it refuses new work.
type inflight struct {
	wg      sync.WaitGroup
	mu      sync.Mutex // orders Go against close
	closed  bool
	pending atomic.Int64
}

// Go runs fn on a tracked goroutine. It returns false without running fn when
// the tracker has been closed.
func (f *inflight) Go(fn func()) bool {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return false
	}
	f.wg.Add(1)
	f.pending.Add(1)
	f.mu.Unlock()

	go func() {
		defer f.wg.Done()
		defer f.pending.Add(-1)
		fn()
	}()
	return true
}

// Pending returns the number of goroutines still running
func (f *inflight) Pending() int {
	return int(f.pending.Load())
}

// CloseAndWait refuses new work and blocks until every tracked goroutine returned
func (f *inflight) CloseAndWait() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.wg.Wait()
}
