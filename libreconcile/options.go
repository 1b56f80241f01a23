package libreconcile

import (
	"github.com/purldb/purldb/datastore"
	"github.com/purldb/purldb/reconciler"
)

// DefaultBatchConcurrency is the number of observations reconciled in
// parallel when a batch is submitted.
const DefaultBatchConcurrency = 10

// Options are dependencies and options for constructing an instance of
// libreconcile.
type Options struct {
	// Store is the interface used to persist and retrieve canonical package
	// records. If nil, a PostgreSQL store is constructed from ConnString.
	Store datastore.ReconcilerV1
	// Locker provides system-wide locks. If the reconciliation work is
	// distributed the lock should be backed by a shared store. If nil,
	// process-local locks are used.
	Locker LockSource
	// ConnString is a PostgreSQL connection string. It's only consulted when
	// Store is nil.
	ConnString string
	// Migrations instructs the constructed store to run database migrations.
	// It's only consulted when Store is nil.
	Migrations bool
	// IdentityMode selects how observations are matched to existing
	// packages. It's only consulted when Store is nil.
	IdentityMode reconciler.IdentityMode
	// BatchConcurrency specifies the number of observations reconciled in
	// parallel by ReconcileBatch.
	BatchConcurrency int
}
