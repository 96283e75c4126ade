package connection

import (
	"fmt"
	"math"
	"net/http"
	"time"
)

// Manager defaults.
const (
	DefaultHeartbeatInterval  = 25 * time.Second
	DefaultBackoffBase        = 300 * time.Millisecond
	DefaultBackoffMax         = 20 * time.Second
	DefaultBackoffCapExponent = 6
	DefaultMaxAttempts        = 20
	DefaultCloseTimeout       = 2 * time.Second
	DefaultShutdownTimeout    = 5 * time.Second
)

// UnlimitedAttempts disables the retry budget.
const UnlimitedAttempts uint32 = math.MaxUint32

// DefaultProbePayload is the liveness probe sent on every heartbeat.
var DefaultProbePayload = []byte(`{"type":"ping"}`)

// Config configures a Manager.
type Config struct {
	Endpoint           string        // WebSocket URL (ws:// or wss://)
	HeartbeatInterval  time.Duration // Interval between liveness probes while open
	BackoffBase        time.Duration // First retry delay
	BackoffMax         time.Duration // Upper bound on any retry delay
	BackoffCapExponent uint32        // Attempts beyond this stop doubling the delay
	Jitter             float64       // Extra random delay as a fraction of the computed delay (0 = none)
	MaxAttempts        uint32        // Consecutive failed dials before giving up (UnlimitedAttempts = never)
	PongTimeout        time.Duration // Inbound traffic deadline after a probe (0 = send success is enough)
	CloseTimeout       time.Duration // Max wait for a channel close to complete
	ShutdownTimeout    time.Duration // Max wait for teardown on a shutdown signal
	ProbePayload       []byte        // Liveness probe payload
}

// DefaultConfig returns sensible defaults for endpoint.
func DefaultConfig(endpoint string) Config {
	return Config{
		Endpoint:           endpoint,
		HeartbeatInterval:  DefaultHeartbeatInterval,
		BackoffBase:        DefaultBackoffBase,
		BackoffMax:         DefaultBackoffMax,
		BackoffCapExponent: DefaultBackoffCapExponent,
		MaxAttempts:        DefaultMaxAttempts,
		CloseTimeout:       DefaultCloseTimeout,
		ShutdownTimeout:    DefaultShutdownTimeout,
		ProbePayload:       DefaultProbePayload,
	}
}

// withDefaults fills zero fields. A zero BackoffCapExponent or MaxAttempts
// takes its default; use BackoffMax == BackoffBase for a flat delay.
func (c Config) withDefaults() Config {
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffMax == 0 {
		c.BackoffMax = DefaultBackoffMax
	}
	if c.BackoffCapExponent == 0 {
		c.BackoffCapExponent = DefaultBackoffCapExponent
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.CloseTimeout == 0 {
		c.CloseTimeout = DefaultCloseTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if len(c.ProbePayload) == 0 {
		c.ProbePayload = DefaultProbePayload
	}
	return c
}

func (c Config) validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", ErrInvalidConfig)
	}
	if c.HeartbeatInterval < 0 {
		return fmt.Errorf("%w: heartbeat interval must be positive, got %v", ErrInvalidConfig, c.HeartbeatInterval)
	}
	if c.BackoffBase < 0 {
		return fmt.Errorf("%w: backoff base must be positive, got %v", ErrInvalidConfig, c.BackoffBase)
	}
	if c.BackoffMax < c.BackoffBase {
		return fmt.Errorf("%w: backoff max (%v) cannot be below base (%v)", ErrInvalidConfig, c.BackoffMax, c.BackoffBase)
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		return fmt.Errorf("%w: jitter must be between 0 and 1, got %v", ErrInvalidConfig, c.Jitter)
	}
	if c.PongTimeout < 0 {
		return fmt.Errorf("%w: pong timeout must not be negative, got %v", ErrInvalidConfig, c.PongTimeout)
	}
	if c.CloseTimeout < 0 || c.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalidConfig)
	}
	return nil
}

// HeaderFunc returns extra handshake headers. It runs before every dial.
type HeaderFunc func() (http.Header, error)

// ClientConfig configures the WebSocket Dialer.
type ClientConfig struct {
	HandshakeTimeout time.Duration // Max time for the opening handshake
	WriteTimeout     time.Duration // Write deadline for sends
	ReadLimit        int64         // Max inbound frame size in bytes (0 = unlimited)
	BufferSize       int           // Message channel buffer size
	Header           HeaderFunc    // Optional handshake headers (auth)
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadLimit:        16 << 20,
		BufferSize:       1000,
	}
}
