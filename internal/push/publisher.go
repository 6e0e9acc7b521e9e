package push

import "context"

// Publisher serializes and transmits accumulated metrics.
//
// Publish may return any error or panic; both are contained by the Guard.
// It must be safe to call repeatedly, and is never called concurrently with
// itself by one Registry.
type Publisher interface {
	// Name identifies the exporter in logs.
	Name() string
	Publish(ctx context.Context) error
}

type funcPublisher struct {
	name string
	fn   func(ctx context.Context) error
}

func (p funcPublisher) Name() string                      { return p.name }
func (p funcPublisher) Publish(ctx context.Context) error { return p.fn(ctx) }

// NewPublisher adapts fn to Publisher.
func NewPublisher(name string, fn func(ctx context.Context) error) Publisher {
	return funcPublisher{name: name, fn: fn}
}
