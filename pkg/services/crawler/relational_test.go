package crawler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource/sqlite"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/models"
)

var accountsFixture = []string{
	`CREATE TABLE accounts (id INTEGER NOT NULL, name VARCHAR NULL)`,
	`INSERT INTO accounts (id, name) VALUES (1, 'a'), (2, 'b'), (3, NULL), (4, 'd'), (5, 'e')`,
}

func crawlRelational(t *testing.T, adapter datasource.Adapter) *models.CrawlResult {
	t.Helper()
	svc := NewService(&fakeFactory{adapter: adapter}, nil, zaptest.NewLogger(t))
	source := &models.Source{ID: "src1", Type: "sqlite", Kind: models.SourceKindEmbeddedAnalytical}
	return svc.Crawl(context.Background(), source, DefaultOptions())
}

func relationalSnapshot(t *testing.T, result *models.CrawlResult) *models.RelationalSnapshot {
	t.Helper()
	snap, ok := result.Data.(*models.RelationalSnapshot)
	require.True(t, ok, "expected relational snapshot, got %T", result.Data)
	return snap
}

func findProfile(t *testing.T, table models.Table, column string) models.ColumnProfile {
	t.Helper()
	for _, p := range table.Profiles {
		if p.Column == column {
			return p
		}
	}
	t.Fatalf("no profile for column %s", column)
	return models.ColumnProfile{}
}

func TestCrawl_AccountsScenario(t *testing.T) {
	result := crawlRelational(t, openSQLiteFixture(t, accountsFixture...))

	assert.True(t, result.Reachable)
	assert.False(t, result.HasWarning(models.FeatureSchema, models.WarningLevelError))

	snap := relationalSnapshot(t, result)
	require.Len(t, snap.Tables, 1)

	table := snap.Tables[0]
	assert.Equal(t, "main", table.Schema)
	assert.Equal(t, "accounts", table.Name)
	assert.Equal(t, models.TableKindTable, table.Kind)
	require.Len(t, table.Columns, 2)

	assert.Equal(t, "id", table.Columns[0].Name)
	assert.False(t, table.Columns[0].Nullable)
	assert.Equal(t, 1, table.Columns[0].OrdinalPosition)
	assert.Equal(t, "name", table.Columns[1].Name)
	assert.True(t, table.Columns[1].Nullable)

	require.NotNil(t, table.RowCount)
	assert.Equal(t, int64(5), *table.RowCount)
	assert.True(t, result.AvailableFeatures.HasRowCounts)
	assert.True(t, result.AvailableFeatures.HasStatistics)
	assert.False(t, result.AvailableFeatures.HasComments)
	assert.Empty(t, snap.ForeignKeys)
}

func TestCrawl_NullFraction(t *testing.T) {
	result := crawlRelational(t, openSQLiteFixture(t, accountsFixture...))
	table := relationalSnapshot(t, result).Tables[0]

	prof := findProfile(t, table, "name")
	require.NotNil(t, prof.SampleCount)
	require.NotNil(t, prof.NullFraction)
	assert.Equal(t, int64(5), *prof.SampleCount)
	assert.Equal(t, int64(1), *prof.NullCount)
	assert.InDelta(t, 0.2, *prof.NullFraction, 1e-9)
	assert.Equal(t, int64(4), *prof.DistinctCount)
	assert.Equal(t, "a", *prof.Min)
	assert.Equal(t, "e", *prof.Max)

	id := findProfile(t, table, "id")
	assert.InDelta(t, 0.0, *id.NullFraction, 1e-9)
	assert.InDelta(t, 1.0, *id.DistinctFraction, 1e-9)
	assert.Equal(t, "1", *id.Min)
	assert.Equal(t, "5", *id.Max)
}

func TestCrawl_EmptyTableProfileHasNilFractions(t *testing.T) {
	result := crawlRelational(t, openSQLiteFixture(t, `CREATE TABLE empty (v TEXT)`))
	table := relationalSnapshot(t, result).Tables[0]

	prof := findProfile(t, table, "v")
	require.NotNil(t, prof.SampleCount)
	assert.Equal(t, int64(0), *prof.SampleCount)
	assert.Nil(t, prof.NullFraction)
	assert.Nil(t, prof.DistinctFraction)
	assert.Nil(t, prof.Min)
}

func TestCrawl_PartialProfilingFailure(t *testing.T) {
	adapter := &failingAdapter{
		RelationalAdapter: openSQLiteFixture(t, accountsFixture...),
		fail:              failWhenContains(`"name" AS v`, errors.New("unsupported aggregate for type")),
	}

	result := crawlRelational(t, adapter)
	table := relationalSnapshot(t, result).Tables[0]

	failed := findProfile(t, table, "name")
	assert.Nil(t, failed.SampleCount)
	assert.Nil(t, failed.NullCount)
	assert.Nil(t, failed.NullFraction)
	assert.Nil(t, failed.DistinctCount)
	assert.Nil(t, failed.Min)
	assert.True(t, result.HasWarning(models.FeatureStatistics, models.WarningLevelWarning))

	sibling := findProfile(t, table, "id")
	require.NotNil(t, sibling.SampleCount)
	assert.Equal(t, int64(5), *sibling.SampleCount)
	assert.True(t, result.AvailableFeatures.HasStatistics)
}

func TestCrawl_ProfileFallsBackWithoutMinMax(t *testing.T) {
	adapter := &failingAdapter{
		RelationalAdapter: openSQLiteFixture(t, accountsFixture...),
		fail:              failWhenContains("MIN(s.v)", errors.New("function min(jsonb) does not exist")),
	}

	result := crawlRelational(t, adapter)
	prof := findProfile(t, relationalSnapshot(t, result).Tables[0], "name")

	require.NotNil(t, prof.NullFraction)
	assert.InDelta(t, 0.2, *prof.NullFraction, 1e-9)
	assert.Nil(t, prof.Min)
	assert.Nil(t, prof.Max)
	assert.False(t, result.HasWarning(models.FeatureStatistics, models.WarningLevelWarning))

	require.True(t, result.HasWarning(models.FeatureStatistics, models.WarningLevelInfo))
	var messages []string
	for _, w := range result.Warnings {
		if w.Feature == models.FeatureStatistics {
			messages = append(messages, w.Message)
		}
	}
	assert.Contains(t, messages, "min/max unavailable for main.accounts.name")
}

func TestCrawl_ForeignKeyDegradation(t *testing.T) {
	fixture := append([]string{
		`CREATE TABLE orders (id INTEGER PRIMARY KEY, account_id INTEGER REFERENCES accounts(id))`,
	}, accountsFixture...)

	t.Run("discovered", func(t *testing.T) {
		result := crawlRelational(t, openSQLiteFixture(t, fixture...))
		fks := result.ForeignKeys()
		require.Len(t, fks, 1)
		assert.Equal(t, "orders", fks[0].SourceTable)
		assert.Equal(t, "account_id", fks[0].SourceColumn)
		assert.Equal(t, "accounts", fks[0].TargetTable)
		assert.Equal(t, "id", fks[0].TargetColumn)
	})

	t.Run("catalog denied", func(t *testing.T) {
		adapter := &failingAdapter{
			RelationalAdapter: openSQLiteFixture(t, fixture...),
			fail:              failWhenContains("pragma_foreign_key_list", errors.New("not authorized")),
		}
		result := crawlRelational(t, adapter)

		assert.Empty(t, result.ForeignKeys())
		assert.True(t, result.HasWarning(models.FeatureRelationships, models.WarningLevelInfo))
		assert.False(t, result.HasWarning(models.FeatureRelationships, models.WarningLevelError))
		assert.True(t, result.AvailableFeatures.HasPermissionErrors)

		snap := relationalSnapshot(t, result)
		assert.Len(t, snap.Tables, 2)
		for _, table := range snap.Tables {
			assert.Len(t, table.Columns, 2, table.Name)
		}
	})

	t.Run("transient failure", func(t *testing.T) {
		adapter := &failingAdapter{
			RelationalAdapter: openSQLiteFixture(t, fixture...),
			fail:              failWhenContains("pragma_foreign_key_list", errors.New("read tcp: connection reset by peer")),
		}
		result := crawlRelational(t, adapter)

		assert.Empty(t, result.ForeignKeys())
		assert.True(t, result.HasWarning(models.FeatureRelationships, models.WarningLevelError))
	})
}

func TestCrawl_ForeignKeyTiersAndMalformedRows(t *testing.T) {
	a := newScriptedAdapter()
	d := a.dialect
	a.results[d.TablesQuery()] = &datasource.QueryResult{Rows: []datasource.Row{
		{"table_schema": "public", "table_name": "orders", "table_kind": "table"},
	}}
	a.results[d.ColumnsQuery()] = &datasource.QueryResult{Rows: []datasource.Row{
		{"table_schema": "public", "table_name": "orders", "column_name": "customer_id", "data_type": "int", "is_nullable": "YES", "ordinal_position": int64(1)},
		{"table_schema": "public", "table_name": "ghost", "column_name": "x", "ordinal_position": int64(1)},
		{"table_schema": "public", "table_name": "orders", "column_name": nil},
	}}
	a.results[d.ForeignKeyQueries()[0]] = &datasource.QueryResult{Rows: []datasource.Row{
		{"constraint_name": "fk_ok", "source_table": "orders", "source_column": "customer_id", "target_table": "customers", "target_column": "id"},
		{"constraint_name": "fk_null_target", "source_table": "orders", "source_column": "customer_id", "target_table": "customers", "target_column": nil},
		{"constraint_name": "fk_empty_source", "source_table": "", "source_column": "x", "target_table": "t", "target_column": "id"},
		{"constraint_name": "fk_schemas", "source_schema": "public", "source_table": "orders", "source_column": "customer_id", "target_schema": "public", "target_table": "customers", "target_column": "id"},
		{"constraint_name": "fk_null_target_schema", "source_schema": "public", "source_table": "orders", "source_column": "customer_id", "target_schema": nil, "target_table": "customers", "target_column": "id"},
	}}
	a.results[d.RowEstimateQuery()] = &datasource.QueryResult{Rows: []datasource.Row{
		{"table_schema": "public", "table_name": "orders", "row_estimate": int64(42)},
	}}

	result := crawlRelational(t, a)
	snap := relationalSnapshot(t, result)

	require.Len(t, snap.Tables, 1)
	require.Len(t, snap.Tables[0].Columns, 1, "ghost-table and nameless columns are skipped")
	assert.True(t, snap.Tables[0].Columns[0].Nullable)

	require.Len(t, snap.ForeignKeys, 2)
	assert.Equal(t, "fk_ok", snap.ForeignKeys[0].ConstraintName)
	assert.Equal(t, "fk_schemas", snap.ForeignKeys[1].ConstraintName)
	assert.Equal(t, "public", snap.ForeignKeys[1].TargetSchema)

	require.NotNil(t, snap.Tables[0].RowCount)
	assert.Equal(t, int64(42), *snap.Tables[0].RowCount)
	assert.NotContains(t, a.statements, d.ExactCountQuery("public", "orders"))
	assert.True(t, a.closed)
}

func TestCrawl_RowCountFallsBackToExactCount(t *testing.T) {
	a := newScriptedAdapter()
	d := a.dialect
	a.results[d.TablesQuery()] = &datasource.QueryResult{Rows: []datasource.Row{
		{"table_schema": "public", "table_name": "fresh", "table_kind": "table"},
		{"table_schema": "public", "table_name": "locked", "table_kind": "table"},
		{"table_schema": "public", "table_name": "recent", "table_kind": "view"},
	}}
	a.results[d.ColumnsQuery()] = &datasource.QueryResult{}
	a.results[d.RowEstimateQuery()] = &datasource.QueryResult{Rows: []datasource.Row{
		{"table_schema": "public", "table_name": "fresh", "row_estimate": int64(-1)},
	}}
	a.results[d.ExactCountQuery("public", "fresh")] = &datasource.QueryResult{Rows: []datasource.Row{{"row_count": int64(7)}}}
	a.errs[d.ExactCountQuery("public", "locked")] = errors.New("permission denied for table locked")

	result := crawlRelational(t, a)
	snap := relationalSnapshot(t, result)

	require.NotNil(t, snap.Tables[0].RowCount)
	assert.Equal(t, int64(7), *snap.Tables[0].RowCount)
	assert.Nil(t, snap.Tables[1].RowCount)
	assert.Nil(t, snap.Tables[2].RowCount)
	assert.True(t, result.HasWarning(models.FeatureRowCounts, models.WarningLevelWarning))
	assert.True(t, result.AvailableFeatures.HasRowCounts)
	assert.True(t, result.AvailableFeatures.HasPermissionErrors)
}

func TestCrawl_TableListingFailure(t *testing.T) {
	a := newScriptedAdapter()
	a.errs[a.dialect.TablesQuery()] = errors.New("permission denied for schema public")

	result := crawlRelational(t, a)

	assert.True(t, result.Reachable)
	assert.True(t, result.HasWarning(models.FeatureSchema, models.WarningLevelError))
	assert.True(t, result.Data.IsEmpty())
	for _, w := range result.Warnings {
		if w.Feature == models.FeatureSchema {
			assert.NotEmpty(t, w.Suggestion)
		}
	}
}

func TestCrawl_ColumnListingFailureKeepsTables(t *testing.T) {
	a := newScriptedAdapter()
	d := a.dialect
	a.results[d.TablesQuery()] = &datasource.QueryResult{Rows: []datasource.Row{
		{"table_schema": "main", "table_name": "t1", "table_kind": "table"},
	}}
	a.errs[d.ColumnsQuery()] = errors.New("no such function: pragma_table_info")

	result := crawlRelational(t, a)
	snap := relationalSnapshot(t, result)

	require.Len(t, snap.Tables, 1)
	assert.NotNil(t, snap.Tables[0].Columns)
	assert.Empty(t, snap.Tables[0].Columns)
	assert.True(t, result.HasWarning(models.FeatureColumns, models.WarningLevelWarning))
}

func TestCrawl_Unreachable(t *testing.T) {
	a := newScriptedAdapter()
	a.healthErr = errors.New("password authentication failed for user \"crawler\"")

	result := crawlRelational(t, a)

	assert.False(t, result.Reachable)
	assert.True(t, result.Data.IsEmpty())
	assert.True(t, result.HasWarning(models.FeatureConnection, models.WarningLevelError))
	assert.Empty(t, a.statements)
	assert.True(t, a.closed)
	assert.False(t, result.FinishedAt.Before(result.StartedAt))
}

func TestCrawl_OpenFailure(t *testing.T) {
	svc := NewService(&fakeFactory{err: errors.New("unsupported source type: cassandra")}, nil, zaptest.NewLogger(t))
	result := svc.Crawl(context.Background(), &models.Source{ID: "c", Type: "cassandra", Kind: models.SourceKindDocument}, Options{})

	assert.False(t, result.Reachable)
	_, ok := result.Data.(*models.DocumentSnapshot)
	assert.True(t, ok)
	assert.True(t, result.HasWarning(models.FeatureConnection, models.WarningLevelError))
}

func TestCrawl_ViewsAreListedButNotCounted(t *testing.T) {
	result := crawlRelational(t, openSQLiteFixture(t, append(accountsFixture,
		`CREATE VIEW named_accounts AS SELECT * FROM accounts WHERE name IS NOT NULL`)...))
	snap := relationalSnapshot(t, result)

	require.Len(t, snap.Tables, 2)
	view := snap.Tables[1]
	assert.Equal(t, "named_accounts", view.Name)
	assert.Equal(t, models.TableKindView, view.Kind)
	assert.Len(t, view.Columns, 2)
	assert.Nil(t, view.RowCount)
}

// commentingDialect reports comment support so HasComments depends on the
// catalog rows alone.
type commentingDialect struct {
	sqlite.Dialect
}

func (commentingDialect) SupportsComments() bool { return true }

func TestCrawl_HasCommentsNeedsAComment(t *testing.T) {
	crawlTables := func(rows ...datasource.Row) *models.CrawlResult {
		a := newScriptedAdapter()
		a.dialect = commentingDialect{}
		a.results[a.dialect.TablesQuery()] = &datasource.QueryResult{Rows: rows}
		a.results[a.dialect.ColumnsQuery()] = &datasource.QueryResult{}
		return crawlRelational(t, a)
	}

	result := crawlTables(
		datasource.Row{"table_schema": "main", "table_name": "a", "table_kind": "table"},
		datasource.Row{"table_schema": "main", "table_name": "b", "table_kind": "table", "table_comment": ""},
	)
	assert.False(t, result.AvailableFeatures.HasComments)

	result = crawlTables(
		datasource.Row{"table_schema": "main", "table_name": "a", "table_kind": "table"},
		datasource.Row{"table_schema": "main", "table_name": "b", "table_kind": "table", "table_comment": "billing accounts"},
	)
	assert.True(t, result.AvailableFeatures.HasComments)
}
