// Package datastore describes the interfaces for persisting canonical
// package records.
package datastore

import (
	"context"

	"github.com/google/uuid"

	"github.com/purldb/purldb"
	"github.com/purldb/purldb/reconciler"
)

// ReconcilerV1 is the interface
// [github.com/purldb/purldb/libreconcile.Libreconcile] needs to persist and
// query canonical package records.
type ReconcilerV1 interface {
	ReconcilerV1Writer
	ReconcilerV1Querier
	// Close frees any resources associated with the store.
	//
	// Consult the concrete type's documentation on whether any resources
	// passed need to be closed independently or not.
	Close(context.Context) error
}

// ReconcilerV1Writer provides the mutating operations of the reconciliation
// engine.
type ReconcilerV1Writer interface {
	// Reconcile decides whether the observation creates a new canonical
	// package, merges into an existing one, or is rejected.
	//
	// The whole decision (identity resolution, merge, history append, set
	// grouping, related rows) happens inside one transaction: a failure
	// partway must leave no partial writes. Soft rejections are reported
	// in the result's Err field with a nil error return.
	Reconcile(ctx context.Context, obs *purldb.Observation, miningLevel int) (*purldb.ReconcileResult, error)
	// UpdateOrCreateResource upserts a scan-produced resource row, looked
	// up by (package, path). Existing scan fields are overwritten in
	// place; resources carry no merge policy.
	UpdateOrCreateResource(ctx context.Context, pkg *purldb.Package, res *purldb.Resource) (created bool, err error)
	// AddToScanQueue enqueues the package's download URL for scanning.
	// Enqueueing the same uri and pipeline set twice is a no-op.
	AddToScanQueue(ctx context.Context, pkg *purldb.Package, pipelines []string, priority int) error
	// Reindex marks the package's scan-queue entry for rescanning.
	Reindex(ctx context.Context, pkg *purldb.Package) error
	// RelatePackages records a directed, typed edge between two packages.
	RelatePackages(ctx context.Context, from, to *purldb.Package, kind purldb.RelationKind) error
}

// ReconcilerV1Querier provides the read-only operations.
type ReconcilerV1Querier interface {
	// ResolveIdentity returns the existing package an observation
	// corresponds to, or nil when there is none. "Not found" is not an
	// error; only storage failures are.
	ResolveIdentity(ctx context.Context, obs *purldb.Observation, mode reconciler.IdentityMode) (*purldb.Package, error)
	// PackageByUUID fetches one package with its related rows.
	PackageByUUID(ctx context.Context, id uuid.UUID) (*purldb.Package, error)
	// PackageByPURL resolves a Package URL string to a package.
	PackageByPURL(ctx context.Context, purl string) (*purldb.Package, error)
	// History returns the package's ledger, oldest-first.
	History(ctx context.Context, pkg *purldb.Package) ([]purldb.HistoryEntry, error)
	// PackageSets returns the sets the package belongs to.
	PackageSets(ctx context.Context, pkg *purldb.Package) ([]purldb.PackageSet, error)
	// EnhancedPackage returns a copy of pkg with missing descriptive and
	// license fields backfilled from peers in its package sets. It's a
	// view: nothing is written and no locks are taken.
	EnhancedPackage(ctx context.Context, pkg *purldb.Package) (*purldb.Package, error)
}
