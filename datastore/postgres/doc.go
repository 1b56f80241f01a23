// Package postgres implements the reconciler store on PostgreSQL.
//
// Concurrency safety comes from the database's transaction and uniqueness
// guarantees, not from in-process locking: every Reconcile call runs in one
// transaction, and concurrent creates for the same identity are resolved
// optimistically by catching the unique violation and falling through to the
// merge path.
package postgres
