package journal

import (
	"time"

	"github.com/google/uuid"
)

// Config holds journal settings.
type Config struct {
	Instance      string        // Written with every row
	Endpoint      string        // Written with every row
	BatchSize     int           // Rows per insert batch
	FlushInterval time.Duration // Max time a row waits in the batch
	BufferSize    int           // Pending events before new ones are dropped
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    10000,
	}
}

// Kind is the event kind stored in link_events.kind.
type Kind string

const (
	KindOpen  Kind = "open"
	KindClose Kind = "close"
	KindError Kind = "error"
)

// Entry is a single connection event.
type Entry struct {
	Kind    Kind
	Session uuid.UUID // uuid.Nil when no channel was open
	Reason  string    // close reason or error kind
	Error   string
	Attempt uint32
	At      time.Time
}

// row is an Entry ready for insertion.
type row struct {
	ID       uuid.UUID
	Instance string
	Endpoint string
	Session  any // nil or uuid string
	Kind     string
	Reason   any // nil or string
	Error    any // nil or string
	Attempt  int64
	At       time.Time
}

// Metrics contains journal statistics.
type Metrics struct {
	Recorded int64
	Inserts  int64
	Dropped  int64
	Errors   int64
	Flushes  int64
}
