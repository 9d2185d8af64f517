package oracle

import (
	"fmt"

	go_ora "github.com/sijms/go-ora/v2"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/config"
)

const defaultPort = 1521

// Config contains Oracle connection options.
type Config struct {
	Host     string
	Port     int
	Service  string
	User     string
	Password string
	SSL      bool
	// Schema is the owner whose objects are crawled. Empty means the
	// session's current schema.
	Schema string
}

// FromMap creates a Config from a source's connection map. "database" is
// accepted as an alias for "service".
func FromMap(m map[string]any) (*Config, error) {
	cfg := &Config{Port: defaultPort}

	host, ok := m["host"].(string)
	if !ok || host == "" {
		return nil, fmt.Errorf("host is required")
	}
	cfg.Host = host

	if port, ok := datasource.AsInt64(m["port"]); ok {
		cfg.Port = int(port)
	}

	if service, ok := m["service"].(string); ok && service != "" {
		cfg.Service = service
	} else if database, ok := m["database"].(string); ok && database != "" {
		cfg.Service = database
	} else {
		return nil, fmt.Errorf("service is required")
	}

	user, ok := m["user"].(string)
	if !ok || user == "" {
		return nil, fmt.Errorf("user is required")
	}
	cfg.User = user
	cfg.Password, _ = m["password"].(string)
	cfg.Schema, _ = m["schema"].(string)

	if ssl, ok := m["ssl"].(bool); ok {
		cfg.SSL = ssl
	}

	return cfg, nil
}

// URL renders the go-ora connection URL.
func (c *Config) URL() string {
	options := map[string]string{}
	if c.SSL {
		options["SSL"] = "true"
	}
	return go_ora.BuildUrl(config.ResolveHostForDocker(c.Host), c.Port, c.Service, c.User, c.Password, options)
}
