package datasource

import (
	"context"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/models"
)

// Adapter is the capability surface shared by every source binding.
// Connections are established lazily on first use and kept until Close.
type Adapter interface {
	// Kind reports how the source is crawled.
	Kind() models.SourceKind

	// HealthCheck opens the connection if needed and verifies the store answers.
	HealthCheck(ctx context.Context) error

	// Close releases the connection or pool. Safe to call more than once.
	Close() error
}

// RelationalAdapter runs read-only SQL against a relational store.
type RelationalAdapter interface {
	Adapter

	// Query validates statement against the read-only policy and runs it.
	// A rejected statement returns an error wrapping apperrors.ErrUnsafeQuery
	// without touching the network.
	Query(ctx context.Context, statement string, params ...any) (*QueryResult, error)

	// Dialect returns the catalog queries and quoting rules for this store.
	Dialect() Dialect
}

// DocumentAdapter reads collections from a document store.
type DocumentAdapter interface {
	Adapter

	// Database is the name of the database being crawled.
	Database() string

	// ListCollections returns the collection names in the database.
	ListCollections(ctx context.Context) ([]string, error)

	// Aggregate runs an aggregation pipeline against one collection.
	// Documents are normalized: nested documents are map[string]any, arrays
	// are []any, object ids are ObjectID and timestamps are time.Time.
	Aggregate(ctx context.Context, collection string, pipeline []map[string]any) ([]map[string]any, error)
}

// ObjectID is a document-store object identifier rendered as hex.
type ObjectID string

func (id ObjectID) String() string { return string(id) }

// Binary is an opaque binary value from a document store.
type Binary []byte

// QueryResult contains the rows of a SQL query.
type QueryResult struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Row maps column names to driver values.
type Row map[string]any

// Get looks up a column case-insensitively. Oracle reports unquoted aliases
// in upper case, so catalog queries cannot rely on exact keys.
func (r Row) Get(name string) (any, bool) {
	if v, ok := r[name]; ok {
		return v, true
	}
	for k, v := range r {
		if equalFold(k, name) {
			return v, true
		}
	}
	return nil, false
}
