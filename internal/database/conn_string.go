package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/wslink/internal/config"
)

// defaultSSLMode applies when the config leaves ssl_mode empty.
const defaultSSLMode = "prefer"

// BuildConnString renders cfg as a postgres:// URL. User and password are
// escaped as URL userinfo; IPv6 hosts are bracketed.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = defaultSSLMode
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}
