package oracle

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/sqlguard"
)

// Dialect holds the Oracle catalog queries, scoped to one owner.
type Dialect struct {
	// Owner is the schema to crawl; empty uses the session's current schema.
	Owner string
}

func (Dialect) Name() string { return "oracle" }

func (Dialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d Dialect) QualifiedName(schema, table string) string {
	if schema == "" {
		return d.QuoteIdentifier(table)
	}
	return d.QuoteIdentifier(schema) + "." + d.QuoteIdentifier(table)
}

// ownerExpr is the SQL expression naming the crawled schema.
func (d Dialect) ownerExpr() string {
	if d.Owner == "" {
		return "SYS_CONTEXT('USERENV', 'CURRENT_SCHEMA')"
	}
	return "'" + strings.ReplaceAll(strings.ToUpper(d.Owner), "'", "''") + "'"
}

func (d Dialect) TablesQuery() string {
	return `
		SELECT
			c.owner AS table_schema,
			c.table_name AS table_name,
			CASE WHEN c.table_type = 'VIEW' THEN 'view' ELSE 'table' END AS table_kind,
			c.comments AS table_comment
		FROM all_tab_comments c
		WHERE c.owner = ` + d.ownerExpr() + `
		  AND c.table_type IN ('TABLE', 'VIEW')
		  AND c.table_name NOT LIKE 'BIN$%'
		ORDER BY c.table_name
	`
}

func (d Dialect) ColumnsQuery() string {
	return `
		SELECT
			t.owner AS table_schema,
			t.table_name AS table_name,
			t.column_name AS column_name,
			t.data_type AS data_type,
			CASE WHEN t.nullable = 'Y' THEN 1 ELSE 0 END AS is_nullable,
			t.column_id AS ordinal_position,
			CASE WHEN p.column_name IS NULL THEN 0 ELSE 1 END AS is_primary_key
		FROM all_tab_columns t
		LEFT JOIN (
			SELECT cc.owner, cc.table_name, cc.column_name
			FROM all_cons_columns cc
			JOIN all_constraints ac
				ON cc.owner = ac.owner
				AND cc.constraint_name = ac.constraint_name
			WHERE ac.constraint_type = 'P'
		) p
			ON p.owner = t.owner
			AND p.table_name = t.table_name
			AND p.column_name = t.column_name
		WHERE t.owner = ` + d.ownerExpr() + `
		ORDER BY t.table_name, t.column_id
	`
}

func (d Dialect) ForeignKeyQueries() []string {
	return []string{`
		SELECT
			c.constraint_name AS constraint_name,
			c.owner AS source_schema,
			c.table_name AS source_table,
			cc.column_name AS source_column,
			r.owner AS target_schema,
			r.table_name AS target_table,
			rcc.column_name AS target_column
		FROM all_constraints c
		JOIN all_cons_columns cc
			ON c.constraint_name = cc.constraint_name
			AND c.owner = cc.owner
		JOIN all_constraints r
			ON c.r_constraint_name = r.constraint_name
			AND c.r_owner = r.owner
		JOIN all_cons_columns rcc
			ON r.constraint_name = rcc.constraint_name
			AND r.owner = rcc.owner
			AND cc.position = rcc.position
		WHERE c.constraint_type = 'R'
		  AND c.owner = ` + d.ownerExpr() + `
		ORDER BY c.table_name, c.constraint_name, cc.position
	`}
}

// RowEstimateQuery reads num_rows, which is NULL until statistics are gathered.
func (d Dialect) RowEstimateQuery() string {
	return `
		SELECT
			t.owner AS table_schema,
			t.table_name AS table_name,
			t.num_rows AS row_estimate
		FROM all_tables t
		WHERE t.owner = ` + d.ownerExpr() + `
		  AND t.num_rows IS NOT NULL
	`
}

func (d Dialect) ExactCountQuery(schema, table string) string {
	return datasource.BuildExactCountQuery(d.QualifiedName(schema, table))
}

func (d Dialect) SampleQuery(schema, table, column string, sampleSize int) string {
	return fmt.Sprintf("SELECT %s AS v FROM %s FETCH FIRST %d ROWS ONLY",
		d.QuoteIdentifier(column), d.QualifiedName(schema, table), sampleSize)
}

func (Dialect) SupportsComments() bool { return true }

func (Dialect) Guard() sqlguard.Policy { return sqlguard.Standard }

var _ datasource.Dialect = Dialect{}
