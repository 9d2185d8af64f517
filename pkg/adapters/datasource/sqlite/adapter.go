package sqlite

import (
	"database/sql"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/models"
)

// Adapter provides read-only access to a local SQLite file through the
// pure-Go modernc driver.
type Adapter struct {
	*datasource.SQLDBAdapter
	config *Config
}

// NewAdapter creates a SQLite adapter. It does not open the file.
func NewAdapter(cfg *Config, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	open := func() (*sql.DB, error) {
		return sql.Open("sqlite", cfg.DSN())
	}
	a := &Adapter{
		SQLDBAdapter: datasource.NewSQLDBAdapter(models.SourceKindEmbeddedAnalytical, Dialect{}, open, logger.Named("sqlite")),
		config:       cfg,
	}
	a.MaxOpenConns = 1
	return a
}

var _ datasource.RelationalAdapter = (*Adapter)(nil)
