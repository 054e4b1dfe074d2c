package event

import (
	"fmt"
	"time"
)

// Event is one telemetry data point delivered to the remote collector.
// Params: origin/type identity, numeric value, timestamp, and optional scalar metadata.
// Returns: one immutable metric event payload.
type Event struct {
	Origin    string         `json:"origin"`
	Type      string         `json:"metric_type"`
	Value     float64        `json:"value"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Normalize returns a copy with a stamped timestamp and scalar-only metadata.
// Params: e raw event from a source; now fallback timestamp for zero values.
// Returns: normalized event safe for serialization.
func Normalize(e Event, now time.Time) Event {
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}

	if len(e.Metadata) == 0 {
		return e
	}

	cleaned := make(map[string]any, len(e.Metadata))
	for key, value := range e.Metadata {
		if !IsScalar(value) {
			continue
		}
		cleaned[key] = value
	}
	e.Metadata = cleaned
	return e
}

// IsScalar reports whether value is an allowed metadata scalar.
// Params: value metadata entry.
// Returns: true for strings, booleans, integers, and floats.
func IsScalar(value any) bool {
	switch value.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}

// Validate checks event invariants before it enters the pipeline.
// Params: e normalized event.
// Returns: error describing the first violated invariant.
func Validate(e Event) error {
	if e.Origin == "" {
		return fmt.Errorf("event origin is empty")
	}
	if e.Type == "" {
		return fmt.Errorf("event metric_type is empty")
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("event timestamp is not set")
	}
	return nil
}
