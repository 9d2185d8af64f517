package crawler

import (
	"context"
	"database/sql"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource/sqlite"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/models"
)

// fakeFactory hands out a prepared adapter.
type fakeFactory struct {
	adapter datasource.Adapter
	err     error
}

func (f *fakeFactory) Open(*models.Source) (datasource.Adapter, error) {
	return f.adapter, f.err
}

func (f *fakeFactory) ListTypes() []datasource.AdapterInfo { return nil }

// failingAdapter wraps a real relational adapter and fails statements
// matched by fail.
type failingAdapter struct {
	datasource.RelationalAdapter
	fail func(statement string) error
}

func (a *failingAdapter) Query(ctx context.Context, statement string, params ...any) (*datasource.QueryResult, error) {
	if a.fail != nil {
		if err := a.fail(statement); err != nil {
			return nil, err
		}
	}
	return a.RelationalAdapter.Query(ctx, statement, params...)
}

func failWhenContains(substr string, err error) func(string) error {
	return func(statement string) error {
		if strings.Contains(statement, substr) {
			return err
		}
		return nil
	}
}

// scriptedAdapter answers queries from a table of canned results, keyed by
// the dialect query that produced them. Unknown statements fail.
type scriptedAdapter struct {
	dialect    datasource.Dialect
	healthErr  error
	results    map[string]*datasource.QueryResult
	errs       map[string]error
	closed     bool
	statements []string
}

func newScriptedAdapter() *scriptedAdapter {
	return &scriptedAdapter{
		dialect: sqlite.Dialect{},
		results: map[string]*datasource.QueryResult{},
		errs:    map[string]error{},
	}
}

func (a *scriptedAdapter) Kind() models.SourceKind               { return models.SourceKindRelationalSQL }
func (a *scriptedAdapter) Dialect() datasource.Dialect           { return a.dialect }
func (a *scriptedAdapter) HealthCheck(ctx context.Context) error { return a.healthErr }
func (a *scriptedAdapter) Close() error                          { a.closed = true; return nil }

func (a *scriptedAdapter) Query(ctx context.Context, statement string, params ...any) (*datasource.QueryResult, error) {
	a.statements = append(a.statements, statement)
	if err, ok := a.errs[statement]; ok {
		return nil, err
	}
	if res, ok := a.results[statement]; ok {
		return res, nil
	}
	return nil, errUnscripted
}

type scriptError string

func (e scriptError) Error() string { return string(e) }

const errUnscripted = scriptError("no such table: unscripted")

// openSQLiteFixture creates a database file from stmts and returns a
// read-only adapter over it.
func openSQLiteFixture(t *testing.T, stmts ...string) datasource.RelationalAdapter {
	t.Helper()

	path := filepath.Join(t.TempDir(), "source.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err, s)
	}
	require.NoError(t, db.Close())

	a := sqlite.NewAdapter(&sqlite.Config{Path: path, BusyTimeoutMS: 1000}, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = a.Close() })
	return a
}

// fakeDocumentAdapter serves documents from memory.
type fakeDocumentAdapter struct {
	database    string
	collections map[string][]map[string]any
	listErr     error
	// failing maps a collection to the error returned for any pipeline on it.
	failing map[string]error
	// failingStage maps a stage operator ("$sample", "$count") to an error.
	failingStage map[string]error
	healthErr    error
}

func (a *fakeDocumentAdapter) Kind() models.SourceKind               { return models.SourceKindDocument }
func (a *fakeDocumentAdapter) HealthCheck(ctx context.Context) error { return a.healthErr }
func (a *fakeDocumentAdapter) Close() error                          { return nil }
func (a *fakeDocumentAdapter) Database() string                      { return a.database }

func (a *fakeDocumentAdapter) ListCollections(ctx context.Context) ([]string, error) {
	if a.listErr != nil {
		return nil, a.listErr
	}
	names := make([]string, 0, len(a.collections))
	for name := range a.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (a *fakeDocumentAdapter) Aggregate(ctx context.Context, collection string, pipeline []map[string]any) ([]map[string]any, error) {
	if err, ok := a.failing[collection]; ok {
		return nil, err
	}
	docs := a.collections[collection]
	for _, stage := range pipeline {
		for op, arg := range stage {
			if err, ok := a.failingStage[op]; ok {
				return nil, err
			}
			switch op {
			case "$sample":
				size := arg.(map[string]any)["size"].(int)
				if len(docs) > size {
					docs = docs[:size]
				}
			case "$count":
				if len(docs) == 0 {
					return nil, nil
				}
				return []map[string]any{{arg.(string): int64(len(docs))}}, nil
			}
		}
	}
	return docs, nil
}
