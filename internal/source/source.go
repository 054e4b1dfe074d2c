package source

import (
	"context"

	"dcollect/internal/event"
)

// Source is a lazy, unbounded pull sequence of metric events.
// A source is single-consumer; restarting consumption requires a fresh
// instance.
// Params: ctx bounds each pull.
// Returns: next event or error (including ctx cancellation).
type Source interface {
	Next(ctx context.Context) (event.Event, error)
}
