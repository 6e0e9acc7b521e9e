package push

import "context"

// WorkerFactory creates the background execution context for a schedule.
// supervisor.Supervisor satisfies it.
type WorkerFactory interface {
	Go(name string, fn func(ctx context.Context) error)
}

// WorkerFunc adapts a function to WorkerFactory.
type WorkerFunc func(name string, fn func(ctx context.Context) error)

func (f WorkerFunc) Go(name string, fn func(ctx context.Context) error) { f(name, fn) }

// DefaultWorkerFactory runs each worker on a plain goroutine.
var DefaultWorkerFactory WorkerFactory = WorkerFunc(func(_ string, fn func(ctx context.Context) error) {
	go func() { _ = fn(context.Background()) }()
})
