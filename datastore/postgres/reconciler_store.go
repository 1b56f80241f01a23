package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/remind101/migrate"

	"github.com/purldb/purldb/datastore"
	"github.com/purldb/purldb/datastore/postgres/migrations"
	"github.com/purldb/purldb/reconciler"
)

var _ datastore.ReconcilerV1 = (*ReconcilerStore)(nil)

// InitPostgresReconcilerStore initializes a [datastore.ReconcilerV1] given a
// pgxpool.Pool.
func InitPostgresReconcilerStore(_ context.Context, pool *pgxpool.Pool, doMigration bool, mode reconciler.IdentityMode) (datastore.ReconcilerV1, error) {
	db := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer db.Close()

	// do migrations if requested
	if doMigration {
		migrator := migrate.NewPostgresMigrator(db)
		migrator.Table = migrations.ReconcilerMigrationTable
		err := migrator.Exec(migrate.Up, migrations.ReconcilerMigrations...)
		if err != nil {
			return nil, fmt.Errorf("failed to perform migrations: %w", err)
		}
	}

	return NewReconcilerStore(pool, mode), nil
}

// ReconcilerStore implements the datastore.ReconcilerV1 interface.
//
// All the other exported methods live in their own files.
type ReconcilerStore struct {
	pool *pgxpool.Pool
	mode reconciler.IdentityMode
}

func NewReconcilerStore(pool *pgxpool.Pool, mode reconciler.IdentityMode) *ReconcilerStore {
	return &ReconcilerStore{
		pool: pool,
		mode: mode,
	}
}

func (s *ReconcilerStore) Close(_ context.Context) error {
	s.pool.Close()
	return nil
}
