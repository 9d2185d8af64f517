package crawler

import (
	"fmt"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/retry"
)

// Remediation hints attached to warnings, keyed by dialect where the fix is
// vendor-specific.

func catalogSuggestion(dialect string) string {
	switch dialect {
	case "postgres":
		return "Grant USAGE on the schema and SELECT on its tables to the crawl role"
	case "mysql":
		return "Grant SELECT on the database to the crawl user so information_schema lists its objects"
	case "mssql":
		return "Grant VIEW DEFINITION on the database to the crawl login"
	case "oracle":
		return "Grant SELECT ANY DICTIONARY, or SELECT on the ALL_* views, to the crawl user"
	case "sqlite":
		return "Check that the database file is readable and not locked by another writer"
	}
	return "Grant read access to the system catalog"
}

func relationshipSuggestion(dialect string) string {
	switch dialect {
	case "postgres":
		return "Grant SELECT on pg_catalog.pg_constraint or information_schema.table_constraints"
	case "mssql":
		return "Grant VIEW DEFINITION so sys.foreign_keys is visible"
	case "oracle":
		return "Grant SELECT on ALL_CONSTRAINTS and ALL_CONS_COLUMNS"
	}
	return "Declare foreign keys in the schema or grant access to constraint catalogs"
}

func statisticsSuggestion(err error) string {
	if retry.IsPermissionDenied(err) {
		return "Grant SELECT on the table to the crawl role"
	}
	return "The column type may not support MIN/MAX or DISTINCT; other columns are unaffected"
}

func rowCountSuggestion(dialect string) string {
	switch dialect {
	case "postgres":
		return "Run ANALYZE so pg_class.reltuples is populated"
	case "mysql":
		return "Run ANALYZE TABLE to refresh table statistics"
	case "oracle":
		return "Gather statistics with DBMS_STATS.GATHER_SCHEMA_STATS"
	case "sqlite":
		return "Run ANALYZE to create sqlite_stat1"
	}
	return "Refresh the store's table statistics"
}

func connectionSuggestion(err error) string {
	switch {
	case retry.IsPermissionDenied(err):
		return "Check the credentials and that the user may connect to the database"
	case retry.IsTransient(err):
		return "Check that the host is reachable and the port is open, then retry"
	}
	return "Verify the connection settings for this source"
}

func samplingSuggestion(collection string) string {
	return fmt.Sprintf("Grant the read role find/aggregate on collection %q", collection)
}
