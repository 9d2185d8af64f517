package mongodb

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/config"
)

const (
	defaultPort                   = 27017
	defaultServerSelectionTimeout = 10 * time.Second
)

// Config contains MongoDB connection options. Either URI or Host must be set.
type Config struct {
	URI        string
	Host       string
	Port       int
	User       string
	Password   string
	AuthSource string
	Database   string
	TLS        bool

	ServerSelectionTimeout time.Duration
}

// FromMap creates a Config from a source's connection map.
func FromMap(m map[string]any) (*Config, error) {
	cfg := &Config{
		Port:                   defaultPort,
		ServerSelectionTimeout: defaultServerSelectionTimeout,
	}

	cfg.URI, _ = m["uri"].(string)
	cfg.Host, _ = m["host"].(string)
	if cfg.URI == "" && cfg.Host == "" {
		return nil, fmt.Errorf("uri or host is required")
	}

	if port, ok := datasource.AsInt64(m["port"]); ok {
		cfg.Port = int(port)
	}

	cfg.User, _ = m["user"].(string)
	cfg.Password, _ = m["password"].(string)
	cfg.AuthSource, _ = m["auth_source"].(string)
	if tls, ok := m["tls"].(bool); ok {
		cfg.TLS = tls
	}

	database, ok := m["database"].(string)
	if !ok || database == "" {
		return nil, fmt.Errorf("database is required")
	}
	cfg.Database = database

	return cfg, nil
}

// ConnectionURI returns URI verbatim when set, otherwise builds one from the
// discrete fields with credentials escaped.
func (c *Config) ConnectionURI() string {
	if c.URI != "" {
		return c.URI
	}

	u := &url.URL{
		Scheme: "mongodb",
		Host:   net.JoinHostPort(config.ResolveHostForDocker(c.Host), strconv.Itoa(c.Port)),
		Path:   "/",
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}

	q := url.Values{}
	if c.AuthSource != "" {
		q.Set("authSource", c.AuthSource)
	}
	if c.TLS {
		q.Set("tls", "true")
	}
	u.RawQuery = q.Encode()
	return u.String()
}
