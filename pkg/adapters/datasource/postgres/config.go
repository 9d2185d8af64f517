package postgres

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/config"
)

// Config contains PostgreSQL-specific connection options.
type Config struct {
	Host           string
	Port           int
	User           string
	Password       string
	Database       string
	SSLMode        string // "disable", "require", "verify-ca", "verify-full"
	ConnectTimeout int    // seconds
	MaxConns       int32
}

const (
	defaultPort           = 5432
	defaultSSLMode        = "require"
	defaultConnectTimeout = 10
	defaultMaxConns       = 2
	applicationName       = "ekaya-metagraph"
)

// FromMap creates a Config from a source's connection map.
func FromMap(m map[string]any) (*Config, error) {
	cfg := &Config{
		Port:           defaultPort,
		SSLMode:        defaultSSLMode,
		ConnectTimeout: defaultConnectTimeout,
		MaxConns:       defaultMaxConns,
	}

	host, ok := m["host"].(string)
	if !ok || host == "" {
		return nil, fmt.Errorf("host is required")
	}
	cfg.Host = host

	if port, ok := datasource.AsInt64(m["port"]); ok {
		cfg.Port = int(port)
	}

	user, ok := m["user"].(string)
	if !ok || user == "" {
		return nil, fmt.Errorf("user is required")
	}
	cfg.User = user

	if password, ok := m["password"].(string); ok {
		cfg.Password = password
	}

	database, ok := m["database"].(string)
	if !ok || database == "" {
		return nil, fmt.Errorf("database is required")
	}
	cfg.Database = database

	if sslMode, ok := m["ssl_mode"].(string); ok {
		cfg.SSLMode = sslMode
	}

	if timeout, ok := datasource.AsInt64(m["connect_timeout"]); ok {
		cfg.ConnectTimeout = int(timeout)
	}

	return cfg, nil
}

// ConnectionString builds a PostgreSQL URL with every user-provided field
// escaped so passwords containing @, / or # survive URL parsing. Localhost
// is rewritten to host.docker.internal when running inside Docker.
func (c *Config) ConnectionString() string {
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	q.Set("connect_timeout", strconv.Itoa(c.ConnectTimeout))
	q.Set("application_name", applicationName)

	u := url.URL{
		Scheme:   "postgresql",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", config.ResolveHostForDocker(c.Host), c.Port),
		Path:     "/" + c.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}
