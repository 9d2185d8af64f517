// Package migrations holds the graph store schema. Files are applied in
// version order by golang-migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
