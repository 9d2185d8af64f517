package sqlite

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/sqlguard"
)

// Dialect holds the SQLite catalog queries. SQLite has a single "main"
// schema for the opened file; attached databases are not crawled.
type Dialect struct{}

func (Dialect) Name() string { return "sqlite" }

func (Dialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
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
			'main' AS table_schema,
			m.name AS table_name,
			m.type AS table_kind,
			NULL AS table_comment
		FROM sqlite_master m
		WHERE m.type IN ('table', 'view')
		  AND m.name NOT LIKE 'sqlite_%'
		ORDER BY m.name
	`
}

func (Dialect) ColumnsQuery() string {
	return `
		SELECT
			'main' AS table_schema,
			m.name AS table_name,
			p.name AS column_name,
			p.type AS data_type,
			CASE WHEN p."notnull" = 0 AND p.pk = 0 THEN 1 ELSE 0 END AS is_nullable,
			p.cid + 1 AS ordinal_position,
			CASE WHEN p.pk > 0 THEN 1 ELSE 0 END AS is_primary_key
		FROM sqlite_master m
		JOIN pragma_table_info(m.name) p
		WHERE m.type IN ('table', 'view')
		  AND m.name NOT LIKE 'sqlite_%'
		ORDER BY m.name, p.cid
	`
}

// ForeignKeyQueries reads pragma_foreign_key_list. A reference to the
// target's primary key leaves "to" NULL; the crawler drops such rows.
func (Dialect) ForeignKeyQueries() []string {
	return []string{`
		SELECT
			'fk_' || m.name || '_' || f.id AS constraint_name,
			'main' AS source_schema,
			m.name AS source_table,
			f."from" AS source_column,
			'main' AS target_schema,
			f."table" AS target_table,
			f."to" AS target_column
		FROM sqlite_master m
		JOIN pragma_foreign_key_list(m.name) f
		WHERE m.type = 'table'
		ORDER BY m.name, f.id, f.seq
	`}
}

// RowEstimateQuery reads sqlite_stat1, which exists only after ANALYZE.
// The first integer of stat is the row count of the index or table.
func (Dialect) RowEstimateQuery() string {
	return `
		SELECT
			'main' AS table_schema,
			s.tbl AS table_name,
			MAX(CAST(substr(s.stat, 1, instr(s.stat || ' ', ' ') - 1) AS INTEGER)) AS row_estimate
		FROM sqlite_stat1 s
		GROUP BY s.tbl
	`
}

func (d Dialect) ExactCountQuery(schema, table string) string {
	return datasource.BuildExactCountQuery(d.QualifiedName(schema, table))
}

func (d Dialect) SampleQuery(schema, table, column string, sampleSize int) string {
	return fmt.Sprintf("SELECT %s AS v FROM %s LIMIT %d",
		d.QuoteIdentifier(column), d.QualifiedName(schema, table), sampleSize)
}

func (Dialect) SupportsComments() bool { return false }

func (Dialect) Guard() sqlguard.Policy { return sqlguard.Standard }

var _ datasource.Dialect = Dialect{}
