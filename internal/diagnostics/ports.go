package diagnostics

import (
	"context"
	"errors"
)

// ErrNoReader is returned when the configured backend cannot list events.
var ErrNoReader = errors.New("diagnostics backend does not support reading events")

// Sink receives one event per calculation. Implementations must be safe for
// concurrent use.
type Sink interface {
	Record(ctx context.Context, ev Event) error
	Close() error
}

// Reader lists recorded events, newest first. A limit of zero or less means
// the implementation's default.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]Event, error)
}

// DefaultRecentLimit caps Recent when the caller passes no limit.
const DefaultRecentLimit = 50

// NormalizeLimit clamps a caller supplied limit to [1, max].
func NormalizeLimit(limit, max int) int {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if max > 0 && limit > max {
		limit = max
	}
	return limit
}
