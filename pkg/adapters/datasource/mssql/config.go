package mssql

import (
	"fmt"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource"
)

// Auth methods supported by the SQL Server adapter.
const (
	AuthSQL              = "sql"
	AuthServicePrincipal = "service_principal"
)

// Config contains SQL Server-specific connection options.
type Config struct {
	Host     string
	Port     int
	Database string

	// AuthMethod is "sql" or "service_principal".
	AuthMethod string

	// SQL Authentication
	Username string
	Password string

	// Service Principal (Azure AD)
	TenantID     string
	ClientID     string
	ClientSecret string

	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int
}

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// DefaultConnectionTimeout returns the default connection timeout in seconds.
func DefaultConnectionTimeout() int {
	return 30
}

// FromMap creates a Config from a source's connection map. When auth_method
// is absent it is inferred from the credentials present.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		Port:              DefaultPort(),
		Encrypt:           true,
		ConnectionTimeout: DefaultConnectionTimeout(),
	}

	if host, ok := config["host"].(string); ok && host != "" {
		cfg.Host = host
	} else {
		return nil, fmt.Errorf("host is required")
	}

	if port, ok := datasource.AsInt64(config["port"]); ok {
		cfg.Port = int(port)
	}

	if database, ok := config["database"].(string); ok && database != "" {
		cfg.Database = database
	} else {
		return nil, fmt.Errorf("database is required")
	}

	// "strict" is the TDS 8.0 mode and implies encryption.
	if mode, _ := config["encrypt"].(string); mode == "strict" {
		cfg.Encrypt = true
	} else if encrypt, ok := datasource.AsBool(config["encrypt"]); ok {
		cfg.Encrypt = encrypt
	}

	if trust, ok := datasource.AsBool(config["trust_server_certificate"]); ok {
		cfg.TrustServerCertificate = trust
	}

	if timeout, ok := datasource.AsInt64(config["connection_timeout"]); ok {
		cfg.ConnectionTimeout = int(timeout)
	}

	if authMethod, ok := config["auth_method"].(string); ok && authMethod != "" {
		cfg.AuthMethod = authMethod
	} else if _, hasClientID := config["client_id"].(string); hasClientID {
		cfg.AuthMethod = AuthServicePrincipal
	} else if user, _ := config["user"].(string); user != "" {
		cfg.AuthMethod = AuthSQL
	} else if username, _ := config["username"].(string); username != "" {
		cfg.AuthMethod = AuthSQL
	} else {
		return nil, fmt.Errorf("could not infer auth method; no credentials provided")
	}

	switch cfg.AuthMethod {
	case AuthSQL:
		if user, ok := config["user"].(string); ok {
			cfg.Username = user
		} else if username, ok := config["username"].(string); ok {
			cfg.Username = username
		}
		cfg.Password, _ = config["password"].(string)
	case AuthServicePrincipal:
		cfg.TenantID, _ = config["tenant_id"].(string)
		cfg.ClientID, _ = config["client_id"].(string)
		cfg.ClientSecret, _ = config["client_secret"].(string)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields required by the selected auth method.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	switch c.AuthMethod {
	case AuthSQL:
		if c.Username == "" {
			return fmt.Errorf("username is required for SQL authentication")
		}
	case AuthServicePrincipal:
		if c.TenantID == "" {
			return fmt.Errorf("tenant_id is required for service principal")
		}
		if c.ClientID == "" {
			return fmt.Errorf("client_id is required for service principal")
		}
		if c.ClientSecret == "" {
			return fmt.Errorf("client_secret is required for service principal")
		}
	default:
		return fmt.Errorf("invalid auth method: %s (must be sql or service_principal)", c.AuthMethod)
	}

	return nil
}
