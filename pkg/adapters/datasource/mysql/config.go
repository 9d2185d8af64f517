package mysql

import (
	"fmt"
	"net"
	"strconv"
	"time"

	driver "github.com/go-sql-driver/mysql"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/config"
)

// Config contains MySQL/MariaDB connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	TLS      string // "false", "true", "skip-verify", "preferred"
	Timeout  time.Duration
}

// FromMap creates a Config from a source's connection map.
func FromMap(m map[string]any) (*Config, error) {
	cfg := &Config{
		Port:    3306,
		TLS:     "preferred",
		Timeout: 10 * time.Second,
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

	if tls, ok := m["tls"].(string); ok {
		cfg.TLS = tls
	} else if tls, ok := m["tls"].(bool); ok {
		cfg.TLS = strconv.FormatBool(tls)
	}

	return cfg, nil
}

// DSN renders the go-sql-driver data source name.
func (c *Config) DSN() string {
	dc := driver.NewConfig()
	dc.User = c.User
	dc.Passwd = c.Password
	dc.Net = "tcp"
	dc.Addr = net.JoinHostPort(config.ResolveHostForDocker(c.Host), strconv.Itoa(c.Port))
	dc.DBName = c.Database
	dc.TLSConfig = c.TLS
	dc.Timeout = c.Timeout
	dc.ParseTime = true
	return dc.FormatDSN()
}
