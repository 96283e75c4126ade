package connection

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrManagerClosed = errors.New("manager closed")
	ErrInvalidConfig = errors.New("invalid config")
	ErrProbeTimeout  = errors.New("no traffic after liveness probe")
	ErrRemoteClosed  = errors.New("channel closed by remote")
)

// State is the connection lifecycle state.
type State uint8

const (
	// StateIdle indicates no channel and no pending retry.
	StateIdle State = iota

	// StateConnecting indicates a dial is in flight.
	StateConnecting

	// StateOpen indicates a live channel.
	StateOpen

	// StateClosing indicates the channel is being closed on request.
	StateClosing

	// StateWaitingToRetry indicates a retry timer is pending.
	StateWaitingToRetry
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateWaitingToRetry:
		return "WAITING_TO_RETRY"
	default:
		return "UNKNOWN"
	}
}

// CloseReason explains why a channel was closed.
type CloseReason string

const (
	ReasonManual    CloseReason = "manual"    // Stop or process shutdown
	ReasonSuspended CloseReason = "suspended" // environment went to background
	ReasonLost      CloseReason = "lost"      // remote close, read error, probe failure
	ReasonReconnect CloseReason = "reconnect" // Reconnect forced a fresh channel
)

// ErrorKind classifies errors reported through OnError.
type ErrorKind string

const (
	ErrorTransient ErrorKind = "transient" // will be retried
	ErrorExhausted ErrorKind = "exhausted" // retry budget spent, manager is dormant
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// Message is an inbound payload delivered to OnMessage.
type Message struct {
	Data       []byte
	ReceivedAt time.Time
	Session    uuid.UUID // session of the channel that received it
}

// OpenEvent is delivered to OnOpen.
type OpenEvent struct {
	Session  uuid.UUID
	Endpoint string
	Attempt  uint32 // retries it took to open (0 = first try)
	At       time.Time
}

// CloseEvent is delivered to OnClose.
type CloseEvent struct {
	Session uuid.UUID // uuid.Nil if no channel was open
	Reason  CloseReason
	Err     error // cause for ReasonLost, nil otherwise
	At      time.Time
}

// ErrorEvent is delivered to OnError.
type ErrorEvent struct {
	Kind    ErrorKind
	Err     error
	Attempt uint32
	At      time.Time
}

// Subscription is the set of callbacks a Manager reports to. Nil fields are skipped.
//
// Callbacks run on a dedicated goroutine in event order. They must not
// block for long; offload heavy work.
type Subscription struct {
	OnOpen    func(OpenEvent)
	OnMessage func(Message)
	OnClose   func(CloseEvent)
	OnError   func(ErrorEvent)
}

// Stats is a point-in-time view of a Manager.
type Stats struct {
	State      State
	Attempt    uint32
	Session    uuid.UUID
	NextDelay  time.Duration
	Suspended  bool
	Dials      int64
	Opens      int64
	Failures   int64
	Messages   int64
	ProbesSent int64
	LastError  string
}
