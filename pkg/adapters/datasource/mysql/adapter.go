package mysql

import (
	"database/sql"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/models"
)

// Adapter provides read-only MySQL and MariaDB access.
type Adapter struct {
	*datasource.SQLDBAdapter
	config *Config
}

// NewAdapter creates a MySQL adapter. It does not connect.
func NewAdapter(cfg *Config, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	open := func() (*sql.DB, error) {
		return sql.Open("mysql", cfg.DSN())
	}
	return &Adapter{
		SQLDBAdapter: datasource.NewSQLDBAdapter(models.SourceKindRelationalSQLVariant, Dialect{}, open, logger.Named("mysql")),
		config:       cfg,
	}
}

var _ datasource.RelationalAdapter = (*Adapter)(nil)
