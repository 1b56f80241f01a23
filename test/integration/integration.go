// Package integration is a helper for running integration tests.
package integration

import (
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnvDSN is the environment variable examined for a database server to run
// tests against.
const EnvDSN = `POSTGRES_CONNECTION_STRING`

// DefaultDSN is a dsn for a database server usually set up by the project's
// Makefile.
const DefaultDSN = `host=localhost port=5434 user=purldb dbname=purldb sslmode=disable`

var (
	pkgSetup  sync.Once
	pkgDSN    string
	pkgConfig *pgxpool.Config
)

// Skip will skip the current test or benchmark if this package was built without
// the "integration" build tag.
//
// This should be used as an annotation at the top of the function, like
// (*testing.T).Parallel().
func Skip(t testing.TB) {
	if skip {
		t.Skip("skipping integration test: integration tag not provided")
	}
}

// DBSetup queues up the database server configuration for use by NeedDB and
// NewDB. It's expected to be called from TestMain, and the returned function
// deferred:
//
//	func TestMain(m *testing.M) {
//		var c int
//		defer func() { os.Exit(c) }()
//		defer integration.DBSetup()()
//		c = m.Run()
//	}
func DBSetup() func() {
	pkgSetup.Do(func() {
		dsn := os.Getenv(EnvDSN)
		if dsn == "" {
			dsn = DefaultDSN
		}
		cfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			panic(fmt.Sprintf("integration: bad database dsn %q: %v", dsn, err))
		}
		pkgDSN = dsn
		pkgConfig = cfg
	})
	return func() {}
}

// NeedDB skips the current test or benchmark if the database server is not
// available, and fails it if DBSetup was never called.
func NeedDB(t testing.TB) {
	t.Helper()
	Skip(t)
	if pkgConfig == nil {
		t.Fatal("test needs the database, but DBSetup was not called in TestMain")
	}
}
