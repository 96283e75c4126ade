package router

import (
	"time"

	"github.com/google/uuid"
)

// RouterConfig holds configuration for the Router.
type RouterConfig struct {
	BufferSize int      // Initial mailbox capacity. Default: 1000
	BatchSize  int      // Messages taken from the mailbox per wake-up. Default: 100
	Ignore     []string // Types dropped without counting as unknown
}

// DefaultRouterConfig returns default configuration.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		BufferSize: 1000,
		BatchSize:  100,
		Ignore:     []string{"pong", "subscribed", "unsubscribed"},
	}
}

// Envelope is an inbound message with its type resolved.
type Envelope struct {
	Type       string
	Data       []byte // Full raw payload
	Session    uuid.UUID
	ReceivedAt time.Time
}

// Handler consumes envelopes of one type. Handlers run on the router
// goroutine, one at a time.
type Handler func(Envelope)

// RouterStats contains runtime statistics.
type RouterStats struct {
	MessagesReceived int64
	MessagesRouted   int64
	ParseErrors      int64
	UnknownMessages  int64
	HandlerPanics    int64
	ByType           map[string]int64
	Mailbox          MailboxStats
}

// messageEnvelope is used for fast type extraction.
type messageEnvelope struct {
	Type string `json:"type"`
}
