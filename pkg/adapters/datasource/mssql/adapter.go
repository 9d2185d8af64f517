package mssql

import (
	"database/sql"
	"fmt"
	"net/url"
	"strconv"

	_ "github.com/microsoft/go-mssqldb"         // SQL Server driver
	_ "github.com/microsoft/go-mssqldb/azuread" // Azure AD support
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/config"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/models"
)

// Adapter provides read-only SQL Server and Azure SQL access.
type Adapter struct {
	*datasource.SQLDBAdapter
	config *Config
}

// NewAdapter creates a SQL Server adapter. It does not connect.
func NewAdapter(cfg *Config, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		SQLDBAdapter: datasource.NewSQLDBAdapter(models.SourceKindRelationalSQLVariant, Dialect{}, func() (*sql.DB, error) {
			return openConnection(cfg)
		}, logger.Named("mssql")),
		config: cfg,
	}
}

func openConnection(cfg *Config) (*sql.DB, error) {
	switch cfg.AuthMethod {
	case AuthSQL:
		return sql.Open("sqlserver", sqlAuthConnectionString(cfg))
	case AuthServicePrincipal:
		return sql.Open("azuresql", servicePrincipalConnectionString(cfg))
	default:
		return nil, fmt.Errorf("unsupported auth method: %s", cfg.AuthMethod)
	}
}

func baseQuery(cfg *Config) url.Values {
	query := url.Values{}
	query.Add("database", cfg.Database)
	query.Add("encrypt", strconv.FormatBool(cfg.Encrypt))
	query.Add("app name", "ekaya-metagraph")
	if cfg.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if cfg.ConnectionTimeout > 0 {
		query.Add("connection timeout", strconv.Itoa(cfg.ConnectionTimeout))
	}
	return query
}

// sqlAuthConnectionString builds a sqlserver:// URL with SQL Server authentication.
func sqlAuthConnectionString(cfg *Config) string {
	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", config.ResolveHostForDocker(cfg.Host), cfg.Port),
		RawQuery: baseQuery(cfg).Encode(),
	}
	return u.String()
}

// servicePrincipalConnectionString uses the fedauth parameter understood by
// the azuresql driver.
func servicePrincipalConnectionString(cfg *Config) string {
	query := baseQuery(cfg)
	query.Add("fedauth", "ActiveDirectoryServicePrincipal")
	query.Add("user id", cfg.ClientID+"@"+cfg.TenantID)
	query.Add("password", cfg.ClientSecret)

	u := &url.URL{
		Scheme:   "sqlserver",
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		RawQuery: query.Encode(),
	}
	return u.String()
}

var _ datasource.RelationalAdapter = (*Adapter)(nil)
