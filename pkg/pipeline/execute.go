package pipeline

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/jzx17/httptask/pkg/stage"
	"github.com/jzx17/httptask/pkg/types"
	"github.com/jzx17/httptask/pkg/worker"
)

func (p *Pipeline) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.settings.timeout > 0 {
		return context.WithTimeout(ctx, p.settings.timeout)
	}
	return context.WithCancel(ctx)
}

// Execute pulls one outcome through the pipeline.
// When ctx ends first the subscription is cancelled and ctx.Err is returned.
func (p *Pipeline) Execute(ctx context.Context) (*types.Response, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	start := p.settings.clock.Now()
	resp, err := stage.Await[*types.Response](ctx, p.tail)
	if err != nil {
		p.settings.logger.Debug("pipeline failed",
			zap.String("url", p.source.CurrentRequest().URL),
			zap.Duration("elapsed", p.settings.clock.Since(start)),
			zap.Error(err))
		return nil, err
	}
	return resp, nil
}

// ExecuteAsync runs Execute on its own goroutine and delivers exactly one result
func (p *Pipeline) ExecuteAsync(ctx context.Context) <-chan types.Result[*types.Response] {
	results := make(chan types.Result[*types.Response], 1)

	go func() {
		defer close(results)

		start := p.settings.clock.Now()
		resp, err := p.Execute(ctx)
		results <- types.Result[*types.Response]{
			Value:    resp,
			Error:    err,
			Duration: p.settings.clock.Since(start),
		}
	}()

	return results
}

// ExecuteBatch executes every pipeline and streams results tagged with their index.
// Pipelines run as tasks on pool; a nil pool runs each on its own goroutine.
// The channel is closed once every pipeline has reported.
func ExecuteBatch(ctx context.Context, pool types.WorkerPool, pipelines ...*Pipeline) <-chan types.BatchResult[*types.Response] {
	results := make(chan types.BatchResult[*types.Response], len(pipelines))

	var wg sync.WaitGroup
	for i, p := range pipelines {
		wg.Add(1)
		index, pl := i, p
		run := func(ctx context.Context) error {
			defer wg.Done()
			start := pl.settings.clock.Now()
			resp, err := pl.Execute(ctx)
			results <- types.BatchResult[*types.Response]{
				Index:    index,
				Value:    resp,
				Error:    err,
				Duration: pl.settings.clock.Since(start),
			}
			return err
		}

		if pool == nil {
			go func() { _ = run(ctx) }()
			continue
		}

		task := worker.NewBasicTaskWithID(fmt.Sprintf("pipeline-%d", index), func(context.Context) error {
			return run(ctx)
		})
		if err := pool.Submit(task); err != nil {
			results <- types.BatchResult[*types.Response]{Index: index, Error: fmt.Errorf("submit pipeline %d: %w", index, err)}
			wg.Done()
		}
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// Decoding is a pipeline whose outcome is decoded into T
type Decoding[T any] struct {
	pipeline *Pipeline
	stage    *stage.DecodeStage[T]
}

// Decode appends a decode stage to p
func Decode[T any](p *Pipeline, decoder types.Decoder[T]) *Decoding[T] {
	return &Decoding[T]{
		pipeline: p,
		stage:    stage.NewDecodeStage[T](p.tail, decoder, p.settings.stageOptions()...),
	}
}

// Stage returns the decode stage
func (d *Decoding[T]) Stage() types.Stage[types.Decoded[T]] {
	return d.stage
}

// Execute pulls one decoded value through the pipeline
func (d *Decoding[T]) Execute(ctx context.Context) (T, error) {
	ctx, cancel := d.pipeline.bound(ctx)
	defer cancel()

	decoded, err := stage.Await[types.Decoded[T]](ctx, d.stage)
	return decoded.Value, err
}

// ExecuteDecoded is like Execute but also returns the response the value came from
func (d *Decoding[T]) ExecuteDecoded(ctx context.Context) (types.Decoded[T], error) {
	ctx, cancel := d.pipeline.bound(ctx)
	defer cancel()

	return stage.Await[types.Decoded[T]](ctx, d.stage)
}
