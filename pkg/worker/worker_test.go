package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jzx17/httptask/internal/testutils"
	"github.com/jzx17/httptask/pkg/types"
)

func TestWorkerState_String(t *testing.T) {
	assert.Equal(t, "idle", WorkerStateIdle.String())
	assert.Equal(t, "working", WorkerStateWorking.String())
	assert.Equal(t, "stopped", WorkerStateStopped.String())
	assert.Equal(t, "unknown", WorkerState(42).String())
}

func TestWorker_ProcessesUntilQueueClosed(t *testing.T) {
	tasks := make(chan types.Task, 3)
	w := NewWorker(7, tasks, testutils.NewClockWrapper(testutils.NewMockClock(t)), zaptest.NewLogger(t))

	var outcomes []bool
	w.onComplete = func(failed bool) { outcomes = append(outcomes, failed) }

	tasks <- NewBasicTaskWithID("ok", func(context.Context) error { return nil })
	tasks <- NewBasicTaskWithID("bad", func(context.Context) error { return errors.New("bad") })
	tasks <- NewBasicTaskWithID("empty", nil)
	close(tasks)

	w.Run(context.Background())

	assert.Equal(t, WorkerStateStopped, w.State())
	assert.Equal(t, []bool{false, true, true}, outcomes)

	stats := w.Stats()
	assert.Equal(t, 7, stats.ID)
	assert.Equal(t, int64(1), stats.TotalProcessed)
	assert.Equal(t, int64(2), stats.TotalFailed)
}

func TestWorker_RecoversPanics(t *testing.T) {
	w := NewWorker(1, nil, nil, nil)

	err := w.execute(context.Background(), NewBasicTaskWithID("p", func(context.Context) error {
		panic("kaboom")
	}))

	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "p", pe.TaskID)
	assert.Equal(t, "kaboom", pe.Value)
	assert.NotEmpty(t, pe.Stack)
	assert.Contains(t, pe.Error(), "task p panicked")
}

func TestWorker_StopsOnContext(t *testing.T) {
	w := NewWorker(1, make(chan types.Task), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	cancel()
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestBasicTask(t *testing.T) {
	a := NewBasicTask(func(context.Context) error { return nil })
	b := NewBasicTask(func(context.Context) error { return nil })
	assert.NotEqual(t, a.ID(), b.ID())
	assert.NoError(t, a.Execute(context.Background()))

	named := NewBasicTaskWithID("custom", nil)
	assert.Equal(t, "custom", named.ID())
	assert.Error(t, named.Execute(context.Background()))
}
