package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/logging"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/models"
)

// SQLDBAdapter implements RelationalAdapter over database/sql. Drivers for
// MySQL, SQL Server, Oracle and SQLite embed it and supply an opener and a
// Dialect. The *sql.DB is created on first use and owned until Close.
type SQLDBAdapter struct {
	kind    models.SourceKind
	dialect Dialect
	open    func() (*sql.DB, error)
	logger  *zap.Logger

	// MaxOpenConns bounds the pool; probes are sequential so a crawl needs one.
	MaxOpenConns int

	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// NewSQLDBAdapter creates an adapter that opens its pool with open on first use.
func NewSQLDBAdapter(kind models.SourceKind, dialect Dialect, open func() (*sql.DB, error), logger *zap.Logger) *SQLDBAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLDBAdapter{
		kind:         kind,
		dialect:      dialect,
		open:         open,
		logger:       logger,
		MaxOpenConns: 2,
	}
}

func (a *SQLDBAdapter) Kind() models.SourceKind { return a.kind }

func (a *SQLDBAdapter) Dialect() Dialect { return a.dialect }

// conn returns the pool, opening it on first call.
func (a *SQLDBAdapter) conn() (*sql.DB, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, fmt.Errorf("%s adapter is closed", a.dialect.Name())
	}
	if a.db != nil {
		return a.db, nil
	}

	db, err := a.open()
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %s", a.dialect.Name(), logging.SanitizeError(err))
	}
	db.SetMaxOpenConns(a.MaxOpenConns)
	db.SetMaxIdleConns(a.MaxOpenConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	a.db = db
	a.logger.Debug("Opened connection pool", zap.String("dialect", a.dialect.Name()))
	return db, nil
}

// HealthCheck pings the store and runs a trivial query.
func (a *SQLDBAdapter) HealthCheck(ctx context.Context) error {
	db, err := a.conn()
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// Query validates the statement against the read-only policy, then runs it
// on a pooled connection. The rows and the connection are released on every path.
func (a *SQLDBAdapter) Query(ctx context.Context, statement string, params ...any) (*QueryResult, error) {
	normalized, err := a.dialect.Guard().ValidateReadOnly(statement, params...)
	if err != nil {
		return nil, err
	}

	db, err := a.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, normalized, params...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	return ScanSQLRows(rows)
}

// Close releases the pool. Safe to call more than once.
func (a *SQLDBAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closed = true
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

// ScanSQLRows reads every row into a QueryResult. Byte slices are copied to
// strings because drivers reuse their buffers between rows.
func ScanSQLRows(rows *sql.Rows) (*QueryResult, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	result := &QueryResult{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return result, nil
}

// Ensure SQLDBAdapter implements RelationalAdapter at compile time.
var _ RelationalAdapter = (*SQLDBAdapter)(nil)
