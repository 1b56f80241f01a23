package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/quay/zlog"

	"github.com/purldb/purldb"
)

var (
	reconcileCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "purldb",
			Subsystem: "reconciler",
			Name:      "reconcile_total",
			Help:      "Total number of reconcile calls, by outcome.",
		},
		[]string{"outcome"},
	)

	reconcileDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "purldb",
			Subsystem: "reconciler",
			Name:      "reconcile_duration_seconds",
			Help:      "The duration of reconcile calls, by outcome.",
		},
		[]string{"outcome"},
	)
)

// Reconcile decides whether the observation creates a new canonical package,
// merges into an existing one, or is rejected.
//
// The whole decision runs in one transaction. A create that loses a race to
// a concurrent reconcile surfaces as a unique violation on the composite
// key; the violation is contained in a savepoint, identity is re-resolved
// and the call falls through to the merge path, so the caller sees a merge,
// not an error.
func (s *ReconcilerStore) Reconcile(ctx context.Context, obs *purldb.Observation, miningLevel int) (*purldb.ReconcileResult, error) {
	const op = `datastore/postgres/Reconcile`
	ctx = zlog.ContextWithValues(ctx, "component", op)
	start := time.Now()

	if err := obs.Validate(); err != nil {
		return nil, err
	}
	if err := obs.Normalize(); err != nil {
		return nil, err
	}
	if obs.DownloadURL == "" {
		zlog.Debug(ctx).
			Str("type", obs.Type).
			Str("name", obs.Name).
			Str("version", obs.Version).
			Msg("rejecting observation with no download_url")
		reconcileCounter.WithLabelValues("rejected").Add(1)
		reconcileDuration.WithLabelValues("rejected").Observe(time.Since(start).Seconds())
		return &purldb.ReconcileResult{Err: "no download_url: cannot create or update a package"}, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, &purldb.Error{
			Op:      op,
			Kind:    purldb.ErrTransient,
			Message: "failed to create transaction",
			Inner:   err,
		}
	}
	defer tx.Rollback(ctx)

	res := &purldb.ReconcileResult{}
	pkg, err := s.resolveIdentity(ctx, tx, obs, s.mode)
	if err != nil {
		return nil, err
	}

	if pkg == nil {
		// Optimistic create: the insert runs inside a savepoint so a
		// unique violation doesn't poison the enclosing transaction.
		sp, err := tx.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create savepoint: %w", err)
		}
		pkg, err = s.createPackage(ctx, sp, obs, miningLevel)
		switch {
		case err == nil:
			if err := sp.Commit(ctx); err != nil {
				return nil, fmt.Errorf("failed to release savepoint: %w", err)
			}
			res.Package, res.Created = pkg, true
		case isUniqueViolation(err):
			if err := sp.Rollback(ctx); err != nil {
				return nil, fmt.Errorf("failed to roll back savepoint: %w", err)
			}
			zlog.Debug(ctx).
				Str("download_url", obs.DownloadURL).
				Msg("lost create race, falling through to merge")
			pkg, err = s.resolveIdentity(ctx, tx, obs, s.mode)
			if err != nil {
				return nil, err
			}
			if pkg == nil {
				return nil, &purldb.Error{
					Op:      op,
					Kind:    purldb.ErrInternal,
					Message: "unique violation on create but identity resolves to nothing",
				}
			}
		default:
			return nil, err
		}
	}

	if !res.Created {
		if err := s.mergePackage(ctx, tx, pkg, obs, miningLevel); err != nil {
			return nil, err
		}
		res.Package, res.Merged = pkg, true
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, &purldb.Error{
			Op:      op,
			Kind:    purldb.ErrTransient,
			Message: "failed to commit transaction",
			Inner:   err,
		}
	}
	outcome := "merged"
	if res.Created {
		outcome = "created"
	}
	reconcileCounter.WithLabelValues(outcome).Add(1)
	reconcileDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return res, nil
}
