// Package postgres contains helpers for PostgreSQL-backed tests.
package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/log/testingadapter"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/remind101/migrate"

	"github.com/purldb/purldb/datastore/postgres/migrations"
	"github.com/purldb/purldb/test/integration"
)

// TestReconcilerDB returns a [pgxpool.Pool] connected to a started and
// configured reconciler database.
//
// If any errors are encountered, the test is failed and exited.
func TestReconcilerDB(ctx context.Context, t testing.TB) *pgxpool.Pool {
	return testDB(ctx, t, true)
}

// TestDB returns a [pgxpool.Pool] connected to a started and configured
// database that has not had any migrations run.
//
// If any errors are encountered, the test is failed and exited.
func TestDB(ctx context.Context, t testing.TB) *pgxpool.Pool {
	return testDB(ctx, t, false)
}

func testDB(ctx context.Context, t testing.TB, doMigration bool) *pgxpool.Pool {
	t.Helper()
	db, err := integration.NewDB(ctx, t)
	if err != nil {
		t.Fatalf("unable to create test database: %v", err)
	}
	cfg := db.Config()
	cfg.ConnConfig.Tracer = &tracelog.TraceLog{
		Logger:   testingadapter.NewLogger(t),
		LogLevel: tracelog.LogLevelError,
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to create connpool: %v", err)
	}

	if doMigration {
		dbh := stdlib.OpenDB(*cfg.ConnConfig)
		defer dbh.Close()
		migrator := migrate.NewPostgresMigrator(dbh)
		migrator.Table = migrations.ReconcilerMigrationTable
		if err := migrator.Exec(migrate.Up, migrations.ReconcilerMigrations...); err != nil {
			t.Fatalf("failed to perform migrations: %v", err)
		}
	}

	// The Cleanup method closes over the passed-in Context. Make sure it's not
	// one that is deferred to be canceled, because Cleanup functions run
	// earlier in the stack than any defers inside the test.
	t.Cleanup(func() {
		pool.Close()
		db.Close(ctx, t)
	})

	return pool
}
