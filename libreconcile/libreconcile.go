// Package libreconcile exposes the package record reconciliation engine
// behind a single constructor.
package libreconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/quay/zlog"

	"github.com/purldb/purldb"
	"github.com/purldb/purldb/datastore"
	"github.com/purldb/purldb/datastore/postgres"
	"github.com/purldb/purldb/locksource"
)

// LockSource abstracts over how locks are implemented.
//
// An online system needs distributed locks, offline use cases can use
// process-local locks.
type LockSource interface {
	TryLock(context.Context, string) (context.Context, context.CancelFunc)
	Lock(context.Context, string) (context.Context, context.CancelFunc)
}

// Libreconcile implements the method set for turning package observations
// into canonical package records.
type Libreconcile struct {
	// holds dependencies for creating a libreconcile instance
	*Options
	// a store implementation shared between all operations
	store datastore.ReconcilerV1
	// Locker provides system-wide locks.
	locker LockSource
}

// New creates a new instance of libreconcile.
//
// Either Options.Store or Options.ConnString must be provided.
func New(ctx context.Context, opts *Options) (*Libreconcile, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "libreconcile/New")
	if opts.Store == nil {
		if opts.ConnString == "" {
			return nil, fmt.Errorf("either field Store or field ConnString must be provided")
		}
		pool, err := postgres.Connect(ctx, opts.ConnString, "libreconcile")
		if err != nil {
			return nil, fmt.Errorf("failed to create database pool: %w", err)
		}
		store, err := postgres.InitPostgresReconcilerStore(ctx, pool, opts.Migrations, opts.IdentityMode)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to initialize store: %w", err)
		}
		opts.Store = store
	}
	if opts.Locker == nil {
		opts.Locker = &locksource.Local{}
	}
	if opts.BatchConcurrency < 1 {
		opts.BatchConcurrency = DefaultBatchConcurrency
	}

	l := &Libreconcile{
		Options: opts,
		store:   opts.Store,
		locker:  opts.Locker,
	}
	zlog.Info(ctx).Msg("libreconcile initialized")
	return l, nil
}

// Close releases held resources.
func (l *Libreconcile) Close(ctx context.Context) error {
	return l.store.Close(ctx)
}

// Reconcile submits a single observation to the engine.
//
// Observations for the same download URL are serialized via the configured
// locker. A rejected observation is not an error: the rejection reason is
// reported in the result.
func (l *Libreconcile) Reconcile(ctx context.Context, obs *purldb.Observation, miningLevel int) (*purldb.ReconcileResult, error) {
	ctx = zlog.ContextWithValues(ctx,
		"component", "libreconcile/Libreconcile.Reconcile",
		"download_url", obs.DownloadURL)
	zlog.Debug(ctx).Msg("reconcile request start")
	defer zlog.Debug(ctx).Msg("reconcile request done")

	if obs.DownloadURL != "" {
		lc, done := l.locker.Lock(ctx, obs.DownloadURL)
		defer done()
		// The process may have waited on the lock, so check that the context
		// is still active.
		if err := lc.Err(); !errors.Is(err, nil) {
			return nil, err
		}
		ctx = lc
	}
	res, err := l.store.Reconcile(ctx, obs, miningLevel)
	switch {
	case err != nil:
		reconcileCounter.WithLabelValues("error").Inc()
	case res.Created:
		reconcileCounter.WithLabelValues("created").Inc()
	case res.Merged:
		reconcileCounter.WithLabelValues("merged").Inc()
	default:
		reconcileCounter.WithLabelValues("rejected").Inc()
	}
	return res, err
}

// PackageByUUID retrieves a package record, if it exists.
//
// A missing package is reported as a nil package, not an error.
func (l *Libreconcile) PackageByUUID(ctx context.Context, id uuid.UUID) (*purldb.Package, error) {
	return l.store.PackageByUUID(ctx, id)
}

// PackageByPURL resolves a Package URL string to a package record, if one
// exists.
func (l *Libreconcile) PackageByPURL(ctx context.Context, purl string) (*purldb.Package, error) {
	return l.store.PackageByPURL(ctx, purl)
}

// EnhancedPackage returns the package with missing descriptive fields
// backfilled from its package set peers.
func (l *Libreconcile) EnhancedPackage(ctx context.Context, pkg *purldb.Package) (*purldb.Package, error) {
	return l.store.EnhancedPackage(ctx, pkg)
}

// History returns the package's reconciliation ledger, oldest-first.
func (l *Libreconcile) History(ctx context.Context, pkg *purldb.Package) ([]purldb.HistoryEntry, error) {
	return l.store.History(ctx, pkg)
}

// PackageSets returns the sets the package belongs to.
func (l *Libreconcile) PackageSets(ctx context.Context, pkg *purldb.Package) ([]purldb.PackageSet, error) {
	return l.store.PackageSets(ctx, pkg)
}

// Reindex marks the package for rescanning.
func (l *Libreconcile) Reindex(ctx context.Context, pkg *purldb.Package) error {
	return l.store.Reindex(ctx, pkg)
}
