package libreconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/quay/zlog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/purldb/purldb"
)

// ReconcileBatch submits a batch of observations, reconciling up to
// BatchConcurrency of them in parallel.
//
// Results are returned in submission order. Rejections and conflicts are
// reported per-item in the result's Err field; the returned error is reserved
// for failures that abort the whole batch, such as a lost database
// connection.
func (l *Libreconcile) ReconcileBatch(ctx context.Context, obss []*purldb.Observation, miningLevel int) ([]*purldb.ReconcileResult, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "libreconcile/Libreconcile.ReconcileBatch")
	zlog.Info(ctx).
		Int("count", len(obss)).
		Msg("batch start")
	defer zlog.Info(ctx).Msg("batch done")

	sem := semaphore.NewWeighted(int64(l.BatchConcurrency))
	results := make([]*purldb.ReconcileResult, len(obss))
	errGrp, eCtx := errgroup.WithContext(ctx)
	for i := range obss {
		ii := i

		do := func() error {
			defer sem.Release(1)
			if err := eCtx.Err(); err != nil {
				return err
			}
			res, err := l.Reconcile(eCtx, obss[ii], miningLevel)
			switch {
			case errors.Is(err, nil):
			case errors.Is(err, purldb.ErrConflict), errors.Is(err, purldb.ErrPrecondition):
				// Per-item failures don't abort the batch.
				res = &purldb.ReconcileResult{Err: err.Error()}
			default:
				return err
			}
			results[ii] = res
			return nil
		}

		// Acquire the sem before starting the goroutine for bounded
		// parallelism.
		if err := sem.Acquire(eCtx, 1); err != nil {
			return nil, err
		}
		errGrp.Go(do)
	}
	if err := errGrp.Wait(); err != nil {
		return nil, fmt.Errorf("batch reconcile failed: %w", err)
	}
	return results, nil
}
