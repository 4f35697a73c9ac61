package app

import (
	"log"
	"sync"
)

// workerPool runs background jobs on a fixed number of goroutines so a
// burst of questions cannot spawn unbounded model calls.
type workerPool struct {
	jobs chan func()
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func newWorkerPool(workers int) *workerPool {
	p := &workerPool{jobs: make(chan func(), workers*4)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				job()
			}
		}()
	}
	return p
}

// submit queues a job. It reports false when the queue is full or the
// pool has shut down.
func (p *workerPool) submit(job func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		log.Printf("app: worker pool closed, job rejected")
		return false
	}
	select {
	case p.jobs <- job:
		return true
	default:
		log.Printf("app: worker queue full, job rejected")
		return false
	}
}

// close stops accepting jobs and waits for in-flight ones.
func (p *workerPool) close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
