package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *LinkdConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if err := c.Link.validate(); err != nil {
		return err
	}

	if c.Auth.KeyID != "" && c.Auth.PrivateKeyPath == "" {
		return errors.New("auth.private_key_path is required when auth.key_id is set")
	}

	if c.Journal.Enabled {
		if err := c.Journal.Database.validate("journal.database"); err != nil {
			return err
		}
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
		if c.Journal.BufferSize < 1 {
			return errors.New("journal.buffer_size must be >= 1")
		}
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}
	if !strings.HasPrefix(c.Health.Path, "/") || c.Health.Path == "/reconnect" {
		return fmt.Errorf("health.path must start with / and not be /reconnect, got %q", c.Health.Path)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Log.StatsInterval < 0 {
		return fmt.Errorf("log.stats_interval cannot be negative, got %v", c.Log.StatsInterval)
	}

	return nil
}

func (l *LinkConfig) validate() error {
	if l.Endpoint == "" {
		return errors.New("link.endpoint is required")
	}
	u, err := url.Parse(l.Endpoint)
	if err != nil {
		return fmt.Errorf("link.endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("link.endpoint must use ws or wss, got %q", u.Scheme)
	}
	if l.BackoffMax < l.BackoffBase {
		return fmt.Errorf("link.backoff_max (%v) cannot be below backoff_base (%v)", l.BackoffMax, l.BackoffBase)
	}
	if l.Jitter < 0 || l.Jitter > 1 {
		return fmt.Errorf("link.jitter must be between 0 and 1, got %v", l.Jitter)
	}
	if l.PongTimeout < 0 {
		return errors.New("link.pong_timeout must be >= 0")
	}
	if l.BufferSize < 1 {
		return errors.New("link.buffer_size must be >= 1")
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
