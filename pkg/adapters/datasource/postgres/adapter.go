package postgres

import (
	"context"
	"database/sql/driver"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/logging"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/models"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/retry"
)

// Adapter provides read-only PostgreSQL access over a pgx pool.
// The pool is created on first use and owned until Close.
type Adapter struct {
	config  *Config
	dialect Dialect
	logger  *zap.Logger

	mu     sync.Mutex
	pool   *pgxpool.Pool
	closed bool
}

// NewAdapter creates a PostgreSQL adapter. It does not connect.
func NewAdapter(cfg *Config, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		config: cfg,
		logger: logger.Named("postgres"),
	}
}

func (a *Adapter) Kind() models.SourceKind { return models.SourceKindRelationalSQL }

func (a *Adapter) Dialect() datasource.Dialect { return a.dialect }

// getPool returns the pool, creating it on first call.
func (a *Adapter) getPool(ctx context.Context) (*pgxpool.Pool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, fmt.Errorf("postgres adapter is closed")
	}
	if a.pool != nil {
		return a.pool, nil
	}

	poolCfg, err := pgxpool.ParseConfig(a.config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse connection config: %s", logging.SanitizeError(err))
	}
	poolCfg.MaxConns = a.config.MaxConns
	poolCfg.MinConns = 0

	pool, err := retry.DoWithResult(ctx, nil, func() (*pgxpool.Pool, error) {
		return pgxpool.NewWithConfig(ctx, poolCfg)
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %s", logging.SanitizeError(err))
	}

	a.pool = pool
	a.logger.Debug("Created connection pool",
		zap.String("dsn", logging.SanitizeConnectionString(a.config.ConnectionString())),
		zap.Int32("max_conns", a.config.MaxConns))
	return pool, nil
}

// HealthCheck verifies the server answers and that we are connected to the
// configured database rather than a default one.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	pool, err := a.getPool(ctx)
	if err != nil {
		return err
	}

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var currentDB string
	if err := pool.QueryRow(ctx, "SELECT current_database()").Scan(&currentDB); err != nil {
		return fmt.Errorf("failed to get current database name: %w", err)
	}
	if !strings.EqualFold(currentDB, a.config.Database) {
		return fmt.Errorf("connected to wrong database: expected %q but connected to %q", a.config.Database, currentDB)
	}

	return nil
}

// Query validates the statement against the read-only policy, checks out a
// pooled connection and runs it. The connection is released on every path.
func (a *Adapter) Query(ctx context.Context, statement string, params ...any) (*datasource.QueryResult, error) {
	normalized, err := a.dialect.Guard().ValidateReadOnly(statement, params...)
	if err != nil {
		return nil, err
	}

	pool, err := a.getPool(ctx)
	if err != nil {
		return nil, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, normalized, params...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	result := &datasource.QueryResult{Columns: columns}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		row := make(datasource.Row, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return result, nil
}

// normalizeValue converts pgx-specific types into plain Go values.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case [16]byte:
		return uuid.UUID(val).String()
	case []byte:
		return string(val)
	case driver.Valuer:
		// pgtype.Numeric, pgtype.Interval and friends
		dv, err := val.Value()
		if err != nil {
			return nil
		}
		return dv
	}
	return v
}

// Close releases the pool. Safe to call more than once.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closed = true
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	return nil
}

// Ensure Adapter implements RelationalAdapter at compile time.
var _ datasource.RelationalAdapter = (*Adapter)(nil)
