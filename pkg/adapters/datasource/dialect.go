package datasource

import (
	"fmt"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/sqlguard"
)

// Column aliases every dialect's catalog queries must return. Crawlers read
// rows through these names so vendor catalogs stay behind the Dialect.
const (
	ColTableSchema     = "table_schema"
	ColTableName       = "table_name"
	ColTableKind       = "table_kind"
	ColTableComment    = "table_comment"
	ColColumnName      = "column_name"
	ColDataType        = "data_type"
	ColIsNullable      = "is_nullable"
	ColOrdinalPosition = "ordinal_position"
	ColIsPrimaryKey    = "is_primary_key"
	ColConstraintName  = "constraint_name"
	ColSourceSchema    = "source_schema"
	ColSourceTable     = "source_table"
	ColSourceColumn    = "source_column"
	ColTargetSchema    = "target_schema"
	ColTargetTable     = "target_table"
	ColTargetColumn    = "target_column"
	ColRowEstimate     = "row_estimate"
	ColSampled         = "sampled"
	ColNullCount       = "null_count"
	ColDistinctCount   = "distinct_count"
	ColMinValue        = "min_value"
	ColMaxValue        = "max_value"
	ColRowCount        = "row_count"
)

// Dialect supplies the catalog queries and identifier quoting of one SQL store.
type Dialect interface {
	// Name is the adapter type, e.g. "postgres".
	Name() string

	// QuoteIdentifier escapes a single identifier for interpolation into SQL.
	QuoteIdentifier(name string) string

	// QualifiedName returns the quoted schema-qualified table reference.
	QualifiedName(schema, table string) string

	// TablesQuery lists tables and views:
	// table_schema, table_name, table_kind ("table"/"view"), table_comment.
	TablesQuery() string

	// ColumnsQuery lists every column ordered by schema, table and ordinal position:
	// table_schema, table_name, column_name, data_type, is_nullable,
	// ordinal_position, is_primary_key.
	ColumnsQuery() string

	// ForeignKeyQueries returns reference catalog queries, richest first:
	// constraint_name, source_schema, source_table, source_column,
	// target_schema, target_table, target_column.
	ForeignKeyQueries() []string

	// RowEstimateQuery returns catalog statistics for every table:
	// table_schema, table_name, row_estimate. Empty if the store keeps none.
	RowEstimateQuery() string

	// ExactCountQuery counts the rows of one table: row_count.
	ExactCountQuery(schema, table string) string

	// SampleQuery selects at most sampleSize values of one column, projected
	// as "v". Profiling wraps it with BuildProfileQuery.
	SampleQuery(schema, table, column string, sampleSize int) string

	// SupportsComments reports whether TablesQuery returns real comments.
	SupportsComments() bool

	// Guard is the lexical policy used by the read-only validator.
	Guard() sqlguard.Policy
}

// BuildProfileQuery wraps a sampling subquery with the aggregates shared by
// all dialects: sampled, null_count, distinct_count, min_value, max_value.
func BuildProfileQuery(sampleSubquery string) string {
	return fmt.Sprintf(`SELECT
	COUNT(*) AS %s,
	SUM(CASE WHEN s.v IS NULL THEN 1 ELSE 0 END) AS %s,
	COUNT(DISTINCT s.v) AS %s,
	MIN(s.v) AS %s,
	MAX(s.v) AS %s
FROM (%s) s`, ColSampled, ColNullCount, ColDistinctCount, ColMinValue, ColMaxValue, sampleSubquery)
}

// BuildProfileCountsQuery is BuildProfileQuery without MIN/MAX, for column
// types that have no ordering (boolean, json, xml, bit).
func BuildProfileCountsQuery(sampleSubquery string) string {
	return fmt.Sprintf(`SELECT
	COUNT(*) AS %s,
	SUM(CASE WHEN s.v IS NULL THEN 1 ELSE 0 END) AS %s,
	COUNT(DISTINCT s.v) AS %s
FROM (%s) s`, ColSampled, ColNullCount, ColDistinctCount, sampleSubquery)
}

// BuildExactCountQuery returns COUNT(*) over a qualified table reference.
func BuildExactCountQuery(qualifiedName string) string {
	return fmt.Sprintf("SELECT COUNT(*) AS %s FROM %s", ColRowCount, qualifiedName)
}
