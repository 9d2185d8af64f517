package mysql

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/sqlguard"
)

// Dialect holds the MySQL catalog queries. Every query is scoped to the
// connection's default database.
type Dialect struct{}

func (Dialect) Name() string { return "mysql" }

func (Dialect) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (d Dialect) QualifiedName(schema, table string) string {
	if schema == "" {
		return d.QuoteIdentifier(table)
	}
	return d.QuoteIdentifier(schema) + "." + d.QuoteIdentifier(table)
}

func (Dialect) TablesQuery() string {
	return `
		SELECT
			t.table_schema AS table_schema,
			t.table_name AS table_name,
			CASE WHEN t.table_type = 'VIEW' THEN 'view' ELSE 'table' END AS table_kind,
			NULLIF(t.table_comment, '') AS table_comment
		FROM information_schema.tables t
		WHERE t.table_schema = DATABASE()
		ORDER BY t.table_name
	`
}

func (Dialect) ColumnsQuery() string {
	return `
		SELECT
			c.table_schema AS table_schema,
			c.table_name AS table_name,
			c.column_name AS column_name,
			c.column_type AS data_type,
			c.is_nullable = 'YES' AS is_nullable,
			c.ordinal_position AS ordinal_position,
			c.column_key = 'PRI' AS is_primary_key
		FROM information_schema.columns c
		WHERE c.table_schema = DATABASE()
		ORDER BY c.table_name, c.ordinal_position
	`
}

// ForeignKeyQueries has a single tier: key_column_usage is readable by any
// role that can see the tables.
func (Dialect) ForeignKeyQueries() []string {
	return []string{`
		SELECT
			k.constraint_name AS constraint_name,
			k.table_schema AS source_schema,
			k.table_name AS source_table,
			k.column_name AS source_column,
			k.referenced_table_schema AS target_schema,
			k.referenced_table_name AS target_table,
			k.referenced_column_name AS target_column
		FROM information_schema.key_column_usage k
		WHERE k.table_schema = DATABASE()
		  AND k.referenced_table_name IS NOT NULL
		ORDER BY k.table_name, k.constraint_name, k.ordinal_position
	`}
}

// RowEstimateQuery reads table_rows, which InnoDB approximates from index
// statistics. Views report NULL and are excluded.
func (Dialect) RowEstimateQuery() string {
	return `
		SELECT
			t.table_schema AS table_schema,
			t.table_name AS table_name,
			t.table_rows AS row_estimate
		FROM information_schema.tables t
		WHERE t.table_schema = DATABASE()
		  AND t.table_type = 'BASE TABLE'
		  AND t.table_rows IS NOT NULL
	`
}

func (d Dialect) ExactCountQuery(schema, table string) string {
	return datasource.BuildExactCountQuery(d.QualifiedName(schema, table))
}

func (d Dialect) SampleQuery(schema, table, column string, sampleSize int) string {
	return fmt.Sprintf("SELECT %s AS v FROM %s LIMIT %d",
		d.QuoteIdentifier(column), d.QualifiedName(schema, table), sampleSize)
}

func (Dialect) SupportsComments() bool { return true }

func (Dialect) Guard() sqlguard.Policy {
	return sqlguard.Policy{
		BacktickIdentifiers: true,
		BackslashEscapes:    true,
		HashComments:        true,
	}
}

var _ datasource.Dialect = Dialect{}
