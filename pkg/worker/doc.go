/*
Package worker provides a fixed-size worker pool.

The pool runs asynchronous stage work when a pipeline is given one as its executor,
and runs whole pipelines in parallel for batch execution.

# Components

  - FixedPool: a fixed number of workers reading from a bounded queue
  - Worker: a single goroutine executing tasks with panic recovery
  - BasicTask: a Task built from a function

# Usage

	pool, err := worker.NewFixedPool(worker.DefaultPoolConfig())
	if err != nil {
		return err
	}
	if err := pool.Start(ctx); err != nil {
		return err
	}
	defer pool.Close()

	src := stage.NewSource(transport, req, stage.WithExecutor(pool.Executor()))

Executor never blocks the caller: when the queue is full or the pool is stopped the
work runs on its own goroutine instead.
*/
package worker
