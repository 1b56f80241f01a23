package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/quay/zlog"

	"github.com/purldb/purldb"
	"github.com/purldb/purldb/reconciler"
)

var (
	resolveIdentityCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "purldb",
			Subsystem: "reconciler",
			Name:      "resolveidentity_total",
			Help:      "Total number of database queries issued in the ResolveIdentity method.",
		},
		[]string{"query"},
	)

	resolveIdentityDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "purldb",
			Subsystem: "reconciler",
			Name:      "resolveidentity_duration_seconds",
			Help:      "The duration of all queries issued in the ResolveIdentity method",
		},
		[]string{"query"},
	)
)

// ResolveIdentity determines whether an observation corresponds to an
// existing package.
//
// The observation must be normalized; qualifiers are compared only in their
// canonical encoded form.
func (s *ReconcilerStore) ResolveIdentity(ctx context.Context, obs *purldb.Observation, mode reconciler.IdentityMode) (*purldb.Package, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "datastore/postgres/ResolveIdentity")
	return s.resolveIdentity(ctx, s.pool, obs, mode)
}

func (s *ReconcilerStore) resolveIdentity(ctx context.Context, q queryer, obs *purldb.Observation, mode reconciler.IdentityMode) (*purldb.Package, error) {
	selectByComposite := `
		SELECT ` + packageColumns + `
		FROM package
		WHERE type = $1
		  AND namespace = $2
		  AND name = $3
		  AND version = $4
		  AND qualifiers = $5
		  AND subpath = $6
		  AND download_url = $7;
		`
	selectByDownloadURL := `
		SELECT ` + packageColumns + `
		FROM package
		WHERE download_url = $1
		ORDER BY id
		LIMIT 1;
		`

	if mode == reconciler.PURLThenDownloadURL {
		start := time.Now()
		pkg, err := scanPackage(q.QueryRow(ctx, selectByComposite,
			obs.Type, obs.Namespace, obs.Name, obs.Version, obs.Qualifiers, obs.Subpath, obs.DownloadURL))
		if err != nil {
			return nil, fmt.Errorf("failed to query by composite key: %w", err)
		}
		resolveIdentityCounter.WithLabelValues("selectByComposite").Add(1)
		resolveIdentityDuration.WithLabelValues("selectByComposite").Observe(time.Since(start).Seconds())
		if pkg != nil {
			if err := loadRelated(ctx, q, pkg); err != nil {
				return nil, err
			}
			return pkg, nil
		}
	}

	start := time.Now()
	pkg, err := scanPackage(q.QueryRow(ctx, selectByDownloadURL, obs.DownloadURL))
	if err != nil {
		return nil, fmt.Errorf("failed to query by download_url: %w", err)
	}
	resolveIdentityCounter.WithLabelValues("selectByDownloadURL").Add(1)
	resolveIdentityDuration.WithLabelValues("selectByDownloadURL").Observe(time.Since(start).Seconds())
	if pkg == nil {
		return nil, nil
	}
	if err := loadRelated(ctx, q, pkg); err != nil {
		return nil, err
	}
	return pkg, nil
}
