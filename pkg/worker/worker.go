package worker

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jzx17/httptask/pkg/types"
)

// WorkerState defines the state of a Worker
type WorkerState int32

const (
	// WorkerStateIdle represents idle worker state
	WorkerStateIdle WorkerState = iota
	// WorkerStateWorking represents working worker state
	WorkerStateWorking
	// WorkerStateStopped represents stopped worker state
	WorkerStateStopped
)

// String returns the string representation of WorkerState
func (ws WorkerState) String() string {
	switch ws {
	case WorkerStateIdle:
		return "idle"
	case WorkerStateWorking:
		return "working"
	case WorkerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// PanicError is returned for a task that panicked
type PanicError struct {
	TaskID string
	Value  interface{}
	Stack  []byte
}

// Error implements the error interface
func (e *PanicError) Error() string {
	return fmt.Sprintf("task %s panicked: %v", e.TaskID, e.Value)
}

// Worker executes tasks from a shared queue on its own goroutine
type Worker struct {
	id     int
	state  int32
	tasks  <-chan types.Task
	done   chan struct{}
	clock  types.Clock
	logger *zap.Logger

	processed int64
	failed    int64
	lastTask  int64

	onComplete func(failed bool)
}

// NewWorker creates a worker reading from tasks
func NewWorker(id int, tasks <-chan types.Task, clock types.Clock, logger *zap.Logger) *Worker {
	if clock == nil {
		clock = types.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:     id,
		tasks:  tasks,
		done:   make(chan struct{}),
		clock:  clock,
		logger: logger,
	}
}

// ID returns the worker ID
func (w *Worker) ID() int {
	return w.id
}

// State returns the current worker state
func (w *Worker) State() WorkerState {
	return WorkerState(atomic.LoadInt32(&w.state))
}

// Done is closed once the worker has exited
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Run processes tasks until ctx ends or the queue is closed
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	defer atomic.StoreInt32(&w.state, int32(WorkerStateStopped))

	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-w.tasks:
			if !ok {
				return
			}
			w.process(ctx, task)
		}
	}
}

func (w *Worker) process(ctx context.Context, task types.Task) {
	atomic.StoreInt32(&w.state, int32(WorkerStateWorking))
	defer atomic.StoreInt32(&w.state, int32(WorkerStateIdle))

	start := w.clock.Now()
	atomic.StoreInt64(&w.lastTask, start.UnixNano())

	err := w.execute(ctx, task)
	failed := err != nil
	if failed {
		atomic.AddInt64(&w.failed, 1)
		w.logger.Debug("task failed",
			zap.Int("worker", w.id), zap.String("task", task.ID()), zap.Error(err))
	} else {
		atomic.AddInt64(&w.processed, 1)
	}

	w.logger.Debug("task finished",
		zap.Int("worker", w.id), zap.String("task", task.ID()), zap.Duration("elapsed", w.clock.Since(start)))
	if w.onComplete != nil {
		w.onComplete(failed)
	}
}

func (w *Worker) execute(ctx context.Context, task types.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			buf = buf[:runtime.Stack(buf, false)]
			err = &PanicError{TaskID: task.ID(), Value: r, Stack: buf}
			w.logger.Error("task panicked",
				zap.Int("worker", w.id), zap.String("task", task.ID()), zap.Any("panic", r))
		}
	}()
	return task.Execute(ctx)
}

// Stats returns the worker statistics
func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		ID:             w.id,
		State:          w.State(),
		TotalProcessed: atomic.LoadInt64(&w.processed),
		TotalFailed:    atomic.LoadInt64(&w.failed),
		LastTaskTime:   time.Unix(0, atomic.LoadInt64(&w.lastTask)),
	}
}

// WorkerStats defines worker statistics
type WorkerStats struct {
	ID             int
	State          WorkerState
	TotalProcessed int64
	TotalFailed    int64
	LastTaskTime   time.Time
}

// SuccessRate returns the fraction of tasks that succeeded
func (ws WorkerStats) SuccessRate() float64 {
	total := ws.TotalProcessed + ws.TotalFailed
	if total == 0 {
		return 0
	}
	return float64(ws.TotalProcessed) / float64(total)
}
