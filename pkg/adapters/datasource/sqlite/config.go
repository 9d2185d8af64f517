package sqlite

import (
	"fmt"
	"net/url"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource"
)

// Config points at a SQLite database file. Sources are always opened read-only.
type Config struct {
	Path          string
	BusyTimeoutMS int
}

// FromMap creates a Config from a source's connection map.
func FromMap(m map[string]any) (*Config, error) {
	cfg := &Config{BusyTimeoutMS: 5000}

	path, ok := m["path"].(string)
	if !ok || path == "" {
		return nil, fmt.Errorf("path is required")
	}
	cfg.Path = path

	if timeout, ok := datasource.AsInt64(m["busy_timeout_ms"]); ok {
		cfg.BusyTimeoutMS = int(timeout)
	}

	return cfg, nil
}

// DSN returns a file: URI with mode=ro so the driver itself refuses writes.
func (c *Config) DSN() string {
	q := url.Values{}
	q.Set("mode", "ro")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", c.BusyTimeoutMS))
	return "file:" + c.Path + "?" + q.Encode()
}
