package config

import "time"

// LinkdConfig is the root configuration for a linkd instance.
type LinkdConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Link     LinkConfig     `yaml:"link"`
	Auth     AuthConfig     `yaml:"auth"`
	Journal  JournalConfig  `yaml:"journal"`
	Health   HealthConfig   `yaml:"health"`
	Log      LogConfig      `yaml:"log"`
}

// InstanceConfig identifies this instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
	AZ string `yaml:"az"`
}

// LinkConfig holds connection manager settings.
type LinkConfig struct {
	Endpoint           string        `yaml:"endpoint"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
	BackoffBase        time.Duration `yaml:"backoff_base"`
	BackoffMax         time.Duration `yaml:"backoff_max"`
	BackoffCapExponent uint32        `yaml:"backoff_cap_exponent"`
	Jitter             float64       `yaml:"jitter"`
	MaxAttempts        int           `yaml:"max_attempts"` // negative = unlimited
	PongTimeout        time.Duration `yaml:"pong_timeout"` // 0 = disabled
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	CloseTimeout       time.Duration `yaml:"close_timeout"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
	ReadLimit          int64         `yaml:"read_limit"`
	BufferSize         int           `yaml:"buffer_size"`
	ProbePayload       string        `yaml:"probe_payload"`
}

// AuthConfig holds handshake signing settings. Signing is disabled when
// KeyID is empty.
type AuthConfig struct {
	KeyID          string `yaml:"key_id"`           // Sent as <prefix>-ACCESS-KEY
	PrivateKeyPath string `yaml:"private_key_path"` // Path to RSA private key PEM file
	HeaderPrefix   string `yaml:"header_prefix"`
	SignPath       string `yaml:"sign_path"` // Request path covered by the signature
}

// JournalConfig holds connection event journal settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// HealthConfig holds the health endpoint settings.
type HealthConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level         string        `yaml:"level"`          // debug, info, warn, error
	Format        string        `yaml:"format"`         // text or json
	StatsInterval time.Duration `yaml:"stats_interval"` // periodic stats record
}
