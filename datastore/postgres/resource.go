package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/quay/zlog"

	"github.com/purldb/purldb"
)

var (
	resourceCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "purldb",
			Subsystem: "reconciler",
			Name:      "resource_total",
			Help:      "Total number of database queries issued in the UpdateOrCreateResource method.",
		},
		[]string{"query"},
	)

	resourceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "purldb",
			Subsystem: "reconciler",
			Name:      "resource_duration_seconds",
			Help:      "The duration of all queries issued in the UpdateOrCreateResource method",
		},
		[]string{"query"},
	)
)

// UpdateOrCreateResource upserts a scan-produced resource row, looked up by
// (package, path).
//
// Resources carry no merge policy: they're not re-derived from multiple
// trust levels, so a re-scan simply overwrites the scan fields in place.
func (s *ReconcilerStore) UpdateOrCreateResource(ctx context.Context, pkg *purldb.Package, res *purldb.Resource) (bool, error) {
	const upsertResource = `
	INSERT INTO package_resource (
		package_id, path, is_file, size, md5, sha1, sha256,
		detected_license_expression, copyright, extra_data
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (package_id, path) DO UPDATE
	SET is_file = EXCLUDED.is_file,
		size = EXCLUDED.size,
		md5 = EXCLUDED.md5,
		sha1 = EXCLUDED.sha1,
		sha256 = EXCLUDED.sha256,
		detected_license_expression = EXCLUDED.detected_license_expression,
		copyright = EXCLUDED.copyright,
		extra_data = EXCLUDED.extra_data
	RETURNING id, (xmax = 0) AS inserted;
	`

	ctx = zlog.ContextWithValues(ctx, "component", "datastore/postgres/UpdateOrCreateResource")
	if res.Path == "" {
		return false, &purldb.Error{
			Op:      "datastore/postgres/UpdateOrCreateResource",
			Kind:    purldb.ErrPrecondition,
			Message: "resource has no path",
		}
	}

	extra, err := json.Marshal(res.ExtraData)
	if err != nil {
		return false, fmt.Errorf("failed to encode resource extra_data: %w", err)
	}

	start := time.Now()
	var created bool
	err = s.pool.QueryRow(ctx, upsertResource,
		pkg.ID, res.Path, res.IsFile, res.Size, res.MD5, res.SHA1, res.SHA256,
		res.DetectedLicenseExpression, res.Copyright, extra,
	).Scan(&res.ID, &created)
	if err != nil {
		return false, fmt.Errorf("failed to upsert resource: %w", err)
	}
	res.PackageID = pkg.ID
	resourceCounter.WithLabelValues("upsertResource").Add(1)
	resourceDuration.WithLabelValues("upsertResource").Observe(time.Since(start).Seconds())
	return created, nil
}
