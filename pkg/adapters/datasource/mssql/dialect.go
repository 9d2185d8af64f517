package mssql

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/sqlguard"
)

// Dialect holds the SQL Server catalog queries.
type Dialect struct{}

func (Dialect) Name() string { return "mssql" }

// QuoteIdentifier mirrors QUOTENAME: square brackets with ] doubled.
func (Dialect) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (d Dialect) QualifiedName(schema, table string) string {
	if schema == "" {
		schema = "dbo"
	}
	return d.QuoteIdentifier(schema) + "." + d.QuoteIdentifier(table)
}

func (Dialect) TablesQuery() string {
	return `
		SELECT
			s.name AS table_schema,
			o.name AS table_name,
			CASE WHEN o.type = 'V' THEN 'view' ELSE 'table' END AS table_kind,
			CAST(ep.value AS NVARCHAR(MAX)) AS table_comment
		FROM sys.objects o
		INNER JOIN sys.schemas s ON o.schema_id = s.schema_id
		LEFT JOIN sys.extended_properties ep
			ON ep.major_id = o.object_id
			AND ep.minor_id = 0
			AND ep.name = 'MS_Description'
		WHERE o.type IN ('U', 'V')
		  AND o.is_ms_shipped = 0
		ORDER BY s.name, o.name
	`
}

func (Dialect) ColumnsQuery() string {
	return `
		SELECT
			c.TABLE_SCHEMA AS table_schema,
			c.TABLE_NAME AS table_name,
			c.COLUMN_NAME AS column_name,
			c.DATA_TYPE AS data_type,
			CASE WHEN c.IS_NULLABLE = 'YES' THEN 1 ELSE 0 END AS is_nullable,
			c.ORDINAL_POSITION AS ordinal_position,
			CASE WHEN pk.COLUMN_NAME IS NULL THEN 0 ELSE 1 END AS is_primary_key
		FROM INFORMATION_SCHEMA.COLUMNS c
		LEFT JOIN (
			SELECT kcu.TABLE_SCHEMA, kcu.TABLE_NAME, kcu.COLUMN_NAME
			FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
			INNER JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
				ON tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME
				AND tc.TABLE_SCHEMA = kcu.TABLE_SCHEMA
			WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
		) pk
			ON pk.TABLE_SCHEMA = c.TABLE_SCHEMA
			AND pk.TABLE_NAME = c.TABLE_NAME
			AND pk.COLUMN_NAME = c.COLUMN_NAME
		ORDER BY c.TABLE_SCHEMA, c.TABLE_NAME, c.ORDINAL_POSITION
	`
}

// ForeignKeyQueries reads sys.foreign_key_columns first. Principals without
// VIEW DEFINITION fall back to the INFORMATION_SCHEMA views.
func (Dialect) ForeignKeyQueries() []string {
	return []string{
		`
		SELECT
			fk.name AS constraint_name,
			SCHEMA_NAME(st.schema_id) AS source_schema,
			st.name AS source_table,
			sc.name AS source_column,
			SCHEMA_NAME(rt.schema_id) AS target_schema,
			rt.name AS target_table,
			rc.name AS target_column
		FROM sys.foreign_keys fk
		INNER JOIN sys.foreign_key_columns fkc ON fk.object_id = fkc.constraint_object_id
		INNER JOIN sys.tables st ON fkc.parent_object_id = st.object_id
		INNER JOIN sys.columns sc ON fkc.parent_object_id = sc.object_id AND fkc.parent_column_id = sc.column_id
		INNER JOIN sys.tables rt ON fkc.referenced_object_id = rt.object_id
		INNER JOIN sys.columns rc ON fkc.referenced_object_id = rc.object_id AND fkc.referenced_column_id = rc.column_id
		WHERE fk.is_ms_shipped = 0
		ORDER BY st.name, fk.name, fkc.constraint_column_id
		`,
		`
		SELECT
			rc.CONSTRAINT_NAME AS constraint_name,
			src.TABLE_SCHEMA AS source_schema,
			src.TABLE_NAME AS source_table,
			src.COLUMN_NAME AS source_column,
			dst.TABLE_SCHEMA AS target_schema,
			dst.TABLE_NAME AS target_table,
			dst.COLUMN_NAME AS target_column
		FROM INFORMATION_SCHEMA.REFERENTIAL_CONSTRAINTS rc
		INNER JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE src
			ON rc.CONSTRAINT_NAME = src.CONSTRAINT_NAME
			AND rc.CONSTRAINT_SCHEMA = src.CONSTRAINT_SCHEMA
		INNER JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE dst
			ON rc.UNIQUE_CONSTRAINT_NAME = dst.CONSTRAINT_NAME
			AND rc.UNIQUE_CONSTRAINT_SCHEMA = dst.CONSTRAINT_SCHEMA
			AND src.ORDINAL_POSITION = dst.ORDINAL_POSITION
		`,
	}
}

// RowEstimateQuery sums partition rows of the heap or clustered index.
func (Dialect) RowEstimateQuery() string {
	return `
		SELECT
			SCHEMA_NAME(t.schema_id) AS table_schema,
			t.name AS table_name,
			SUM(p.rows) AS row_estimate
		FROM sys.tables t
		INNER JOIN sys.partitions p ON t.object_id = p.object_id
		WHERE p.index_id IN (0, 1)
		GROUP BY t.schema_id, t.name
	`
}

func (d Dialect) ExactCountQuery(schema, table string) string {
	return fmt.Sprintf("SELECT COUNT_BIG(*) AS %s FROM %s", datasource.ColRowCount, d.QualifiedName(schema, table))
}

func (d Dialect) SampleQuery(schema, table, column string, sampleSize int) string {
	return fmt.Sprintf("SELECT TOP (%d) %s AS v FROM %s WITH (NOLOCK)",
		sampleSize, d.QuoteIdentifier(column), d.QualifiedName(schema, table))
}

func (Dialect) SupportsComments() bool { return true }

func (Dialect) Guard() sqlguard.Policy {
	return sqlguard.Policy{BracketIdentifiers: true}
}

var _ datasource.Dialect = Dialect{}
