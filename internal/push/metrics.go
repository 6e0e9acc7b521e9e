package push

import "time"

// Metrics receives publish lifecycle signals from a Guard.
// Implementations must be safe for concurrent use.
type Metrics interface {
	PublishStarted()
	PublishFinished(took time.Duration, err error)
	PublishSkipped()
}

type nopMetrics struct{}

func (nopMetrics) PublishStarted()                      {}
func (nopMetrics) PublishFinished(time.Duration, error) {}
func (nopMetrics) PublishSkipped()                      {}
