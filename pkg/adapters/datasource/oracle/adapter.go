package oracle

import (
	"database/sql"

	_ "github.com/sijms/go-ora/v2"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/models"
)

// Adapter provides read-only Oracle access through the pure-Go go-ora driver.
type Adapter struct {
	*datasource.SQLDBAdapter
	config *Config
}

// NewAdapter creates an Oracle adapter. It does not connect.
func NewAdapter(cfg *Config, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	open := func() (*sql.DB, error) {
		return sql.Open("oracle", cfg.URL())
	}
	return &Adapter{
		SQLDBAdapter: datasource.NewSQLDBAdapter(models.SourceKindRelationalSQLVariant, Dialect{Owner: cfg.Schema}, open, logger.Named("oracle")),
		config:       cfg,
	}
}

var _ datasource.RelationalAdapter = (*Adapter)(nil)
