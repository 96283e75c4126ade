package config

import (
	"net/url"

	"github.com/rickgao/wslink/internal/connection"
)

// ManagerConfig maps the link section onto a connection.Config.
func (l LinkConfig) ManagerConfig() connection.Config {
	maxAttempts := connection.UnlimitedAttempts
	if l.MaxAttempts >= 0 {
		maxAttempts = uint32(l.MaxAttempts) // 0 takes the manager default
	}

	return connection.Config{
		Endpoint:           l.Endpoint,
		HeartbeatInterval:  l.HeartbeatInterval,
		BackoffBase:        l.BackoffBase,
		BackoffMax:         l.BackoffMax,
		BackoffCapExponent: l.BackoffCapExponent,
		Jitter:             l.Jitter,
		MaxAttempts:        maxAttempts,
		PongTimeout:        l.PongTimeout,
		CloseTimeout:       l.CloseTimeout,
		ShutdownTimeout:    l.ShutdownTimeout,
		ProbePayload:       []byte(l.ProbePayload),
	}
}

// ClientConfig maps the link section onto a connection.ClientConfig.
// Header is left for the caller to set.
func (l LinkConfig) ClientConfig() connection.ClientConfig {
	return connection.ClientConfig{
		HandshakeTimeout: l.HandshakeTimeout,
		WriteTimeout:     l.WriteTimeout,
		ReadLimit:        l.ReadLimit,
		BufferSize:       l.BufferSize,
	}
}

// HandshakePath returns the request path covered by the handshake
// signature. It falls back to the endpoint's path.
func (c *LinkdConfig) HandshakePath() string {
	if c.Auth.SignPath != "" {
		return c.Auth.SignPath
	}
	u, err := url.Parse(c.Link.Endpoint)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}
