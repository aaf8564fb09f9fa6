package dispatch

import (
	"fmt"
	"sync"

	"github.com/dd0wney/cluso-replicator/pkg/logging"
)

// workerPool runs connection handlers on a fixed number of goroutines. The
// queue holds two tasks per worker; Submit blocks when it is full, which in turn
// stalls the accept loop.
type workerPool struct {
	workers   int
	taskQueue chan func()
	wg        sync.WaitGroup
	once      sync.Once
	mu        sync.RWMutex // Protects taskQueue from concurrent close during send
	closed    bool         // Protected by mu
	logger    logging.Logger
}

func newWorkerPool(workers int, logger logging.Logger) *workerPool {
	if workers <= 0 {
		workers = 1
	}

	pool := &workerPool{
		workers:   workers,
		taskQueue: make(chan func(), workers*2),
		logger:    logger,
	}
	for i := 0; i < pool.workers; i++ {
		pool.wg.Add(1)
		go pool.worker()
	}
	return pool
}

func (wp *workerPool) worker() {
	defer wp.wg.Done()

	for task := range wp.taskQueue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					wp.logger.Error("worker panic recovered", logging.String("panic", fmt.Sprint(r)))
				}
			}()
			task()
		}()
	}
}

// Submit queues a task. Returns false if the pool is closed.
func (wp *workerPool) Submit(task func()) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.closed {
		return false
	}
	wp.taskQueue <- task
	return true
}

// Close stops accepting tasks and waits for queued ones to finish
func (wp *workerPool) Close() {
	wp.once.Do(func() {
		wp.mu.Lock()
		wp.closed = true
		close(wp.taskQueue)
		wp.mu.Unlock()
	})
	wp.wg.Wait()
}
