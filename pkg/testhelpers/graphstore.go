// Package testhelpers provides utilities for testing ekaya-metagraph components.
package testhelpers

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/database"
)

// NewGraphStore opens a migrated graph store in a temporary directory.
// It is closed when the test ends.
func NewGraphStore(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.NewConnection(context.Background(), &database.Config{
		Path: filepath.Join(t.TempDir(), "graph.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.RunMigrations(db.DB, zaptest.NewLogger(t)))
	return db
}
