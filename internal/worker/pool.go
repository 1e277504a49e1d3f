package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrShutdownTimeout is returned when workers don't stop within timeout.
	ErrShutdownTimeout = errors.New("worker pool shutdown timed out")
	// ErrQueueFull is returned when Submit would block.
	ErrQueueFull = errors.New("worker queue is full")
	// ErrPoolStopped is returned by Submit after Stop.
	ErrPoolStopped = errors.New("worker pool stopped")
)

// Job is one unit of work. ctx is cancelled when the pool stops.
type Job func(ctx context.Context)

// Pool bounds how many requests are processed at once across all chats.
type Pool struct {
	workers int
	queue   chan Job
	logger  *slog.Logger

	mu      sync.RWMutex
	stopped bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// Config holds worker pool configuration.
type Config struct {
	Workers   int
	QueueSize int
}

// NewPool creates a new worker pool.
func NewPool(cfg Config, logger *slog.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 16
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		workers: cfg.Workers,
		queue:   make(chan Job, cfg.QueueSize),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches all workers.
func (p *Pool) Start() {
	p.logger.Info("starting worker pool", "workers", p.workers, "queue_size", cap(p.queue))

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit enqueues a job without blocking.
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.queue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued jobs not yet picked up.
func (p *Pool) Pending() int {
	return len(p.queue)
}

// Stop refuses new jobs, lets workers drain the queue, and waits up to timeout.
// Jobs still running when the timeout expires have their context cancelled.
func (p *Pool) Stop(timeout time.Duration) error {
	p.logger.Info("stopping worker pool")

	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("worker pool stopped gracefully")
		return nil
	case <-time.After(timeout):
		p.cancel()
		return ErrShutdownTimeout
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	logger := p.logger.With("worker_id", id)
	logger.Debug("worker started")

	for job := range p.queue {
		p.run(logger, job)
	}
	logger.Debug("worker stopping")
}

func (p *Pool) run(logger *slog.Logger, job Job) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked", "panic", fmt.Sprint(r))
		}
	}()
	job(p.ctx)
}
