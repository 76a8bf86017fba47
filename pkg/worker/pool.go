package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jzx17/httptask/pkg/types"
)

// ErrPoolNotRunning indicates the pool has not been started or was stopped
var ErrPoolNotRunning = errors.New("worker pool is not running")

const (
	stateStopped int32 = iota
	stateRunning
	stateClosed
)

// PoolConfig defines configuration for FixedPool
type PoolConfig struct {
	// Size is the number of workers
	Size int

	// QueueSize is the task queue capacity
	QueueSize int

	// SubmitTimeout bounds Submit; zero means fail immediately when the queue is full
	SubmitTimeout time.Duration

	// Clock for time operations (optional, defaults to real clock)
	Clock types.Clock

	// Logger (optional, defaults to a no-op logger)
	Logger *zap.Logger
}

// DefaultPoolConfig returns the default configuration
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		Size:          10,
		QueueSize:     100,
		SubmitTimeout: 5 * time.Second,
	}
}

// FixedPool is a fixed-size worker pool
type FixedPool struct {
	config  PoolConfig
	workers []*Worker
	tasks   chan types.Task

	state     int32
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	mu        sync.RWMutex

	completed int64
	failed    int64
}

var _ types.WorkerPool = (*FixedPool)(nil)

// NewFixedPool creates a fixed-size pool; nil config means DefaultPoolConfig
func NewFixedPool(config *PoolConfig) (*FixedPool, error) {
	if config == nil {
		config = DefaultPoolConfig()
	}
	if config.Size <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", config.Size)
	}
	if config.QueueSize <= 0 {
		return nil, fmt.Errorf("queue size must be positive, got %d", config.QueueSize)
	}

	cfg := *config
	if cfg.Clock == nil {
		cfg.Clock = types.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &FixedPool{
		config: cfg,
		tasks:  make(chan types.Task, cfg.QueueSize),
	}, nil
}

// Start launches the workers
func (p *FixedPool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch atomic.LoadInt32(&p.state) {
	case stateRunning:
		return errors.New("worker pool is already running")
	case stateClosed:
		return types.ErrPoolClosed
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.workers = make([]*Worker, p.config.Size)
	for i := range p.workers {
		w := NewWorker(i, p.tasks, p.config.Clock, p.config.Logger)
		w.onComplete = p.record
		p.workers[i] = w
		go w.Run(p.ctx)
	}
	atomic.StoreInt32(&p.state, stateRunning)

	p.config.Logger.Debug("worker pool started", zap.Int("size", p.config.Size), zap.Int("queue", p.config.QueueSize))
	return nil
}

func (p *FixedPool) record(failed bool) {
	if failed {
		atomic.AddInt64(&p.failed, 1)
		return
	}
	atomic.AddInt64(&p.completed, 1)
}

// Submit queues task, waiting up to the configured SubmitTimeout
func (p *FixedPool) Submit(task types.Task) error {
	return p.SubmitWithTimeout(task, p.config.SubmitTimeout)
}

// SubmitWithTimeout queues task, waiting up to timeout for queue space
func (p *FixedPool) SubmitWithTimeout(task types.Task, timeout time.Duration) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	switch atomic.LoadInt32(&p.state) {
	case stateStopped:
		return ErrPoolNotRunning
	case stateClosed:
		return types.ErrPoolClosed
	}

	if timeout <= 0 {
		select {
		case p.tasks <- task:
			return nil
		default:
			return types.ErrPoolFull
		}
	}

	timer := p.config.Clock.NewTimer(timeout)
	defer timer.Stop()

	select {
	case p.tasks <- task:
		return nil
	case <-timer.C():
		return types.ErrPoolFull
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// Stop cancels the workers and waits for them to exit.
// Tasks still queued stay queued and run after a later Start.
func (p *FixedPool) Stop() error {
	p.mu.RLock()
	running := atomic.LoadInt32(&p.state) == stateRunning
	cancel := p.cancel
	p.mu.RUnlock()
	if !running {
		return ErrPoolNotRunning
	}

	// release submitters blocked on a full queue before taking the write lock
	cancel()

	p.mu.Lock()
	if atomic.LoadInt32(&p.state) != stateRunning {
		p.mu.Unlock()
		return ErrPoolNotRunning
	}
	atomic.StoreInt32(&p.state, stateStopped)
	workers := p.workers
	p.mu.Unlock()

	timeout := p.config.Clock.After(10 * time.Second)
	for _, w := range workers {
		select {
		case <-w.Done():
		case <-timeout:
			return fmt.Errorf("timeout waiting for worker %d to stop", w.ID())
		}
	}
	p.config.Logger.Debug("worker pool stopped")
	return nil
}

// Close stops the pool for good
func (p *FixedPool) Close() error {
	var err error
	p.closeOnce.Do(func() {
		if atomic.LoadInt32(&p.state) == stateRunning {
			err = p.Stop()
		}
		p.mu.Lock()
		atomic.StoreInt32(&p.state, stateClosed)
		close(p.tasks)
		p.mu.Unlock()
	})
	return err
}

// Size returns the number of workers
func (p *FixedPool) Size() int {
	return p.config.Size
}

// IsRunning reports whether the pool accepts tasks
func (p *FixedPool) IsRunning() bool {
	return atomic.LoadInt32(&p.state) == stateRunning
}

// Stats returns pool statistics
func (p *FixedPool) Stats() types.WorkerPoolStats {
	p.mu.RLock()
	workers := p.workers
	p.mu.RUnlock()

	active := 0
	for _, w := range workers {
		if w.State() == WorkerStateWorking {
			active++
		}
	}
	return types.WorkerPoolStats{
		PoolSize:      p.config.Size,
		ActiveWorkers: active,
		QueueSize:     len(p.tasks),
		QueueCapacity: p.config.QueueSize,
		Completed:     atomic.LoadInt64(&p.completed),
		Failed:        atomic.LoadInt64(&p.failed),
	}
}

// WorkerStats returns per-worker statistics
func (p *FixedPool) WorkerStats() []WorkerStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	stats := make([]WorkerStats, len(p.workers))
	for i, w := range p.workers {
		stats[i] = w.Stats()
	}
	return stats
}

// Executor returns a types.Executor backed by the pool.
// Go never blocks: without queue space the function runs on its own goroutine.
func (p *FixedPool) Executor() types.Executor {
	return types.ExecutorFunc(func(fn func()) {
		task := NewBasicTask(func(context.Context) error {
			fn()
			return nil
		})
		if err := p.SubmitWithTimeout(task, 0); err != nil {
			p.config.Logger.Debug("executor fallback to goroutine", zap.Error(err))
			go fn()
		}
	})
}
