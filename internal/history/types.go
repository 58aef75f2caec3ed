package history

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/gray-logic-things/internal/thing"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// ErrInvalidQuery is returned for history lookups without a Thing or member name.
var ErrInvalidQuery = errors.New("history: thing and member name are required")

// PropertyEntry is one recorded property change.
type PropertyEntry struct {
	ID         int64     `json:"id"`
	Thing      string    `json:"thing"`
	Property   string    `json:"property"`
	Value      any       `json:"value"`
	OldValue   any       `json:"old_value,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// EventEntry is one recorded event emission.
type EventEntry struct {
	ID        int64     `json:"id"`
	Thing     string    `json:"thing"`
	Event     string    `json:"event"`
	Data      any       `json:"data,omitempty"`
	EmittedAt time.Time `json:"emitted_at"`
}

// Sink receives every recorded change. Implementations must be safe for
// use from the Recorder's worker goroutine.
type Sink interface {
	Record(ctx context.Context, c thing.Change) error
}

// Store answers history queries.
type Store interface {
	PropertyHistory(ctx context.Context, thingName, property string, limit int) ([]PropertyEntry, error)
	EventHistory(ctx context.Context, thingName, event string, limit int) ([]EventEntry, error)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}
