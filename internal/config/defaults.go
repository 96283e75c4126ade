package config

import (
	"time"

	"github.com/rickgao/wslink/internal/connection"
)

// Default values for optional configuration fields.
const (
	DefaultHeartbeatInterval  = connection.DefaultHeartbeatInterval
	DefaultBackoffBase        = connection.DefaultBackoffBase
	DefaultBackoffMax         = connection.DefaultBackoffMax
	DefaultBackoffCapExponent = connection.DefaultBackoffCapExponent
	DefaultMaxAttempts        = connection.DefaultMaxAttempts
	DefaultHandshakeTimeout   = 10 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultCloseTimeout       = connection.DefaultCloseTimeout
	DefaultShutdownTimeout    = connection.DefaultShutdownTimeout
	DefaultReadLimit          = 16 << 20
	DefaultLinkBufferSize     = 1000
	DefaultProbePayload       = `{"type":"ping"}`
	DefaultHeaderPrefix       = "LINK"
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 4
	DefaultMinConns           = 1
	DefaultBatchSize          = 500
	DefaultFlushInterval      = 1 * time.Second
	DefaultBufferSize         = 10000
	DefaultHealthPort         = 8080
	DefaultHealthPath         = "/health"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
	DefaultStatsInterval      = 30 * time.Second
)

func (c *LinkdConfig) applyDefaults() {
	// Link defaults
	if c.Link.HeartbeatInterval == 0 {
		c.Link.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Link.BackoffBase == 0 {
		c.Link.BackoffBase = DefaultBackoffBase
	}
	if c.Link.BackoffMax == 0 {
		c.Link.BackoffMax = DefaultBackoffMax
	}
	if c.Link.BackoffCapExponent == 0 {
		c.Link.BackoffCapExponent = DefaultBackoffCapExponent
	}
	if c.Link.MaxAttempts == 0 {
		c.Link.MaxAttempts = DefaultMaxAttempts
	}
	if c.Link.HandshakeTimeout == 0 {
		c.Link.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Link.WriteTimeout == 0 {
		c.Link.WriteTimeout = DefaultWriteTimeout
	}
	if c.Link.CloseTimeout == 0 {
		c.Link.CloseTimeout = DefaultCloseTimeout
	}
	if c.Link.ShutdownTimeout == 0 {
		c.Link.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Link.ReadLimit == 0 {
		c.Link.ReadLimit = DefaultReadLimit
	}
	if c.Link.BufferSize == 0 {
		c.Link.BufferSize = DefaultLinkBufferSize
	}
	if c.Link.ProbePayload == "" {
		c.Link.ProbePayload = DefaultProbePayload
	}

	// Auth defaults
	if c.Auth.HeaderPrefix == "" {
		c.Auth.HeaderPrefix = DefaultHeaderPrefix
	}

	// Journal defaults
	applyDBDefaults(&c.Journal.Database)
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultFlushInterval
	}
	if c.Journal.BufferSize == 0 {
		c.Journal.BufferSize = DefaultBufferSize
	}

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
	if c.Health.Path == "" {
		c.Health.Path = DefaultHealthPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	if c.Log.StatsInterval == 0 {
		c.Log.StatsInterval = DefaultStatsInterval
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
