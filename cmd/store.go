package cmd

import (
	"context"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/database"
)

// openStore opens the graph store and brings its schema up to date.
func (a *app) openStore(ctx context.Context) (*database.DB, error) {
	db, err := database.NewConnection(ctx, &database.Config{
		Path:          a.cfg.GraphStore.Path,
		BusyTimeoutMS: a.cfg.GraphStore.BusyTimeoutMS,
	})
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(db.DB, a.logger); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
