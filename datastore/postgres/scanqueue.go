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
	scanQueueCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "purldb",
			Subsystem: "reconciler",
			Name:      "scanqueue_total",
			Help:      "Total number of database queries issued in the scan queue methods.",
		},
		[]string{"query"},
	)

	scanQueueDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "purldb",
			Subsystem: "reconciler",
			Name:      "scanqueue_duration_seconds",
			Help:      "The duration of all queries issued in the scan queue methods",
		},
		[]string{"query"},
	)
)

// AddToScanQueue enqueues the package's download URL for the scan pipeline.
//
// Enqueueing the same uri and pipeline set twice is a no-op; the scan
// subsystem owns dequeueing.
func (s *ReconcilerStore) AddToScanQueue(ctx context.Context, pkg *purldb.Package, pipelines []string, priority int) error {
	const insertQueue = `
	INSERT INTO scan_queue (package_uuid, uri, pipelines, priority, requested_date)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (uri, pipelines) DO NOTHING;
	`

	ctx = zlog.ContextWithValues(ctx, "component", "datastore/postgres/AddToScanQueue")
	if len(pipelines) == 0 {
		return &purldb.Error{
			Op:      "datastore/postgres/AddToScanQueue",
			Kind:    purldb.ErrPrecondition,
			Message: "no pipelines requested",
		}
	}

	start := time.Now()
	_, err := s.pool.Exec(ctx, insertQueue, pkg.UUID, pkg.DownloadURL, pipelines, priority, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to enqueue package for scanning: %w", err)
	}
	scanQueueCounter.WithLabelValues("insertQueue").Add(1)
	scanQueueDuration.WithLabelValues("insertQueue").Observe(time.Since(start).Seconds())
	return nil
}

// DefaultPipelines is the pipeline set used when reindexing a package that
// was never enqueued.
var DefaultPipelines = []string{"scan_single_package"}

// Reindex marks the package's scan-queue entry for rescanning, creating the
// entry if the package was never enqueued.
//
// Failure to mark is recorded on the package's index_error column; the
// package row itself is never deleted.
func (s *ReconcilerStore) Reindex(ctx context.Context, pkg *purldb.Package) error {
	const (
		markRescan = `
		UPDATE scan_queue
		SET rescan = true
		WHERE package_uuid = $1;
		`
		markError = `
		UPDATE package
		SET index_error = $2, last_modified_date = $3
		WHERE id = $1;
		`
	)

	ctx = zlog.ContextWithValues(ctx, "component", "datastore/postgres/Reindex")

	start := time.Now()
	tag, err := s.pool.Exec(ctx, markRescan, pkg.UUID)
	if err != nil {
		if _, merr := s.pool.Exec(ctx, markError, pkg.ID, err.Error(), time.Now().UTC()); merr != nil {
			zlog.Warn(ctx).Err(merr).Msg("failed to record index error")
		}
		return fmt.Errorf("failed to mark package for rescan: %w", err)
	}
	scanQueueCounter.WithLabelValues("markRescan").Add(1)
	scanQueueDuration.WithLabelValues("markRescan").Observe(time.Since(start).Seconds())

	if tag.RowsAffected() == 0 {
		return s.AddToScanQueue(ctx, pkg, DefaultPipelines, 0)
	}
	return nil
}
