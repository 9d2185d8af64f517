package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/sqlguard"
)

const systemSchemas = `('pg_catalog', 'information_schema', 'pg_toast')`

// Dialect holds the PostgreSQL catalog queries.
type Dialect struct{}

func (Dialect) Name() string { return "postgres" }

// QuoteIdentifier quotes with pgx's sanitizer, which doubles embedded quotes.
func (Dialect) QuoteIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// QualifiedName returns "schema"."table", or just "table" when schema is empty.
func (Dialect) QualifiedName(schema, table string) string {
	if schema == "" {
		return pgx.Identifier{table}.Sanitize()
	}
	return pgx.Identifier{schema, table}.Sanitize()
}

func (Dialect) TablesQuery() string {
	return `
		SELECT
			n.nspname AS table_schema,
			c.relname AS table_name,
			CASE WHEN c.relkind IN ('v', 'm') THEN 'view' ELSE 'table' END AS table_kind,
			obj_description(c.oid, 'pg_class') AS table_comment
		FROM pg_catalog.pg_class c
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relkind IN ('r', 'p', 'v', 'm', 'f')
		  AND NOT c.relispartition
		  AND n.nspname NOT IN ` + systemSchemas + `
		  AND n.nspname NOT LIKE 'pg_temp%'
		ORDER BY n.nspname, c.relname
	`
}

// ColumnsQuery uses pg_index.indisprimary so primary keys created as unique
// indexes by ORMs are still detected.
func (Dialect) ColumnsQuery() string {
	return `
		SELECT
			c.table_schema,
			c.table_name,
			c.column_name,
			CASE WHEN c.data_type = 'USER-DEFINED' THEN c.udt_name ELSE c.data_type END AS data_type,
			c.is_nullable = 'YES' AS is_nullable,
			c.ordinal_position,
			EXISTS (
				SELECT 1
				FROM pg_catalog.pg_index ix
				JOIN pg_catalog.pg_class t ON t.oid = ix.indrelid
				JOIN pg_catalog.pg_namespace ns ON ns.oid = t.relnamespace
				JOIN pg_catalog.pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
				WHERE ix.indisprimary
				  AND ns.nspname = c.table_schema
				  AND t.relname = c.table_name
				  AND a.attname = c.column_name
			) AS is_primary_key
		FROM information_schema.columns c
		WHERE c.table_schema NOT IN ` + systemSchemas + `
		ORDER BY c.table_schema, c.table_name, c.ordinal_position
	`
}

// ForeignKeyQueries tries pg_constraint first, which pairs composite key
// columns correctly, then falls back to information_schema for roles that
// cannot read the system catalogs.
func (Dialect) ForeignKeyQueries() []string {
	return []string{
		`
		SELECT
			con.conname AS constraint_name,
			sn.nspname AS source_schema,
			st.relname AS source_table,
			sa.attname AS source_column,
			tn.nspname AS target_schema,
			tt.relname AS target_table,
			ta.attname AS target_column
		FROM pg_catalog.pg_constraint con
		CROSS JOIN LATERAL unnest(con.conkey, con.confkey) AS k(src_attnum, dst_attnum)
		JOIN pg_catalog.pg_class st ON st.oid = con.conrelid
		JOIN pg_catalog.pg_namespace sn ON sn.oid = st.relnamespace
		JOIN pg_catalog.pg_attribute sa ON sa.attrelid = con.conrelid AND sa.attnum = k.src_attnum
		JOIN pg_catalog.pg_class tt ON tt.oid = con.confrelid
		JOIN pg_catalog.pg_namespace tn ON tn.oid = tt.relnamespace
		JOIN pg_catalog.pg_attribute ta ON ta.attrelid = con.confrelid AND ta.attnum = k.dst_attnum
		WHERE con.contype = 'f'
		  AND sn.nspname NOT IN ` + systemSchemas + `
		ORDER BY sn.nspname, st.relname, con.conname
		`,
		`
		SELECT
			tc.constraint_name,
			kcu.table_schema AS source_schema,
			kcu.table_name AS source_table,
			kcu.column_name AS source_column,
			ccu.table_schema AS target_schema,
			ccu.table_name AS target_table,
			ccu.column_name AS target_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
			AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema NOT IN ` + systemSchemas + `
		`,
	}
}

// RowEstimateQuery reads pg_class.reltuples, which is -1 for tables that
// have never been vacuumed or analyzed (PostgreSQL 14+).
func (Dialect) RowEstimateQuery() string {
	return `
		SELECT
			n.nspname AS table_schema,
			c.relname AS table_name,
			c.reltuples::bigint AS row_estimate
		FROM pg_catalog.pg_class c
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relkind IN ('r', 'p')
		  AND n.nspname NOT IN ` + systemSchemas + `
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

func (Dialect) Guard() sqlguard.Policy { return sqlguard.Standard }

// Ensure Dialect implements datasource.Dialect at compile time.
var _ datasource.Dialect = Dialect{}
