package jobs

import (
	"context"
	"log/slog"
	"sync"
)

// WorkerPool runs tasks on a fixed number of goroutines fed by a bounded queue.
type WorkerPool struct {
	tasks       chan Task
	logger      *slog.Logger
	workerCount int

	mu      sync.Mutex
	started bool
	stopped bool
	wg      sync.WaitGroup
}

func NewWorkerPool(logger *slog.Logger, workerCount, queueSize int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 4
	}
	if queueSize <= 0 {
		queueSize = 64 * workerCount
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{tasks: make(chan Task, queueSize), logger: logger, workerCount: workerCount}
}

// Start launches the worker goroutines. Calling it twice is a no-op.
func (p *WorkerPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop rejects new tasks, lets the workers drain what is already queued and
// waits for them. It is safe to call more than once.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.tasks)
	started := p.started
	p.mu.Unlock()

	if !started {
		// nobody will consume the queue; run leftovers inline
		for t := range p.tasks {
			p.run(context.Background(), t)
		}
		return
	}
	p.wg.Wait()
}

// Submit queues t without blocking.
func (p *WorkerPool) Submit(t Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.tasks <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for t := range p.tasks {
		p.run(ctx, t)
	}
	p.logger.Debug("worker stopping", "id", id)
}

func (p *WorkerPool) run(ctx context.Context, t Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panic", "err", r)
		}
	}()
	t(ctx)
}
