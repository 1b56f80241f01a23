package integration

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var rng *rand.Rand

func init() {
	// Seed our rng.
	b := make([]byte, 8)
	if _, err := io.ReadFull(crand.Reader, b); err != nil {
		panic(err)
	}
	seed := rand.NewSource(int64(binary.BigEndian.Uint64(b)))
	rng = rand.New(seed)
}

const (
	createRole      = `CREATE ROLE %s LOGIN;`
	createDatabase  = `CREATE DATABASE %[2]s WITH OWNER %[1]s ENCODING 'UTF8';`
	killConnections = `SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1;`
	dropDatabase    = `DROP DATABASE %s;`
	dropRole        = `DROP ROLE %s;`
)

// NewDB creates a new database on the server configured by DBSetup.
//
// The returned DB is empty. Loading a schema is the caller's responsibility.
func NewDB(ctx context.Context, t testing.TB) (*DB, error) {
	t.Helper()
	database := fmt.Sprintf("db%x", rng.Uint64())
	role := fmt.Sprintf("role%x", rng.Uint64())

	cfg, err := configureDatabase(ctx, pkgConfig, database, role)
	if err != nil {
		return nil, err
	}
	t.Logf("config: database %q, role %q", database, role)
	return &DB{cfg: cfg}, nil
}

func configureDatabase(ctx context.Context, root *pgxpool.Config, database, role string) (*pgxpool.Config, error) {
	conn, err := pgx.ConnectConfig(ctx, root.ConnConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database server: %w", err)
	}
	defer conn.Close(ctx)
	if _, err := conn.Exec(ctx, fmt.Sprintf(createRole, role)); err != nil {
		return nil, fmt.Errorf("unable to create role %q: %w", role, err)
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf(createDatabase, role, database)); err != nil {
		return nil, fmt.Errorf("unable to create database %q: %w", database, err)
	}

	cfg := root.Copy()
	cfg.ConnConfig.Database = database
	cfg.ConnConfig.User = role
	return cfg, nil
}

// DB is a handle for connecting to and cleaning up a created database.
type DB struct {
	cfg *pgxpool.Config
}

// Config returns a pgxpool.Config for the created database.
func (db *DB) Config() *pgxpool.Config {
	return db.cfg.Copy()
}

// Close tears down the created database.
func (db *DB) Close(ctx context.Context, t testing.TB) {
	conn, err := pgx.ConnectConfig(ctx, pkgConfig.ConnConfig)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, killConnections, db.cfg.ConnConfig.Database); err != nil {
		t.Error(err)
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf(dropDatabase, db.cfg.ConnConfig.Database)); err != nil {
		t.Error(err)
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf(dropRole, db.cfg.ConnConfig.User)); err != nil {
		t.Error(err)
	}
	db.cfg = nil
}
