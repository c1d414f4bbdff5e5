// Package jobs runs indexing work on a small pool of lazily created workers.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("job pool closed")

const (
	DefaultMaxWorkers  = 4
	DefaultIdleTimeout = 30 * time.Second
)

// Pool runs submitted jobs on up to max workers. A worker is started on
// Submit when queued plus running jobs outnumber the workers; a worker that
// stays idle for the idle timeout exits unless it is the last one.
type Pool struct {
	jobs chan func()
	quit chan struct{}
	max  int
	idle time.Duration
	log  logrus.FieldLogger

	// submitMu keeps Close from racing a Submit that already passed its
	// closed check.
	submitMu sync.RWMutex

	mu      sync.Mutex
	workers int
	pending int
	running int
	closed  bool

	wg sync.WaitGroup
}

// NewPool creates a pool. Non-positive arguments take the defaults.
func NewPool(maxWorkers int, idle time.Duration, log logrus.FieldLogger) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Pool{
		jobs: make(chan func(), maxWorkers*4),
		quit: make(chan struct{}),
		max:  maxWorkers,
		idle: idle,
		log:  log,
	}
}

// Submit queues job. It blocks while the queue is full, until ctx ends.
func (p *Pool) Submit(ctx context.Context, job func()) error {
	p.submitMu.RLock()
	defer p.submitMu.RUnlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.pending++
	if p.pending+p.running > p.workers && p.workers < p.max {
		p.workers++
		p.wg.Add(1)
		go p.worker()
	}
	p.mu.Unlock()

	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		p.mu.Lock()
		p.pending--
		p.mu.Unlock()
		return ctx.Err()
	}
}

// Workers returns the number of live workers.
func (p *Pool) Workers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers
}

// Close runs the jobs already queued, then stops every worker.
func (p *Pool) Close() {
	p.submitMu.Lock()
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.submitMu.Unlock()
		return
	}
	p.closed = true
	close(p.quit)
	p.mu.Unlock()
	p.submitMu.Unlock()

	p.wg.Wait()

	// Jobs queued with no worker left to take them.
	for {
		select {
		case job := <-p.jobs:
			job()
		default:
			return
		}
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	p.log.Debug("job worker started")

	t := time.NewTicker(p.idle)
	defer t.Stop()

	for {
		select {
		case job := <-p.jobs:
			p.run(job)
			t.Reset(p.idle)

		case <-t.C:
			p.mu.Lock()
			if p.workers > 1 {
				p.workers--
				p.mu.Unlock()
				p.log.Debug("idle job worker stopped")
				return
			}
			p.mu.Unlock()

		case <-p.quit:
			for {
				select {
				case job := <-p.jobs:
					p.run(job)
				default:
					p.mu.Lock()
					p.workers--
					p.mu.Unlock()
					return
				}
			}
		}
	}
}

func (p *Pool) run(job func()) {
	p.mu.Lock()
	p.pending--
	p.running++
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running--
		p.mu.Unlock()
	}()
	job()
}
