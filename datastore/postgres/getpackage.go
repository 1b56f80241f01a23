package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/package-url/packageurl-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/quay/zlog"

	"github.com/purldb/purldb"
)

var (
	getPackageCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "purldb",
			Subsystem: "reconciler",
			Name:      "getpackage_total",
			Help:      "Total number of database queries issued in the package lookup methods.",
		},
		[]string{"query"},
	)

	getPackageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "purldb",
			Subsystem: "reconciler",
			Name:      "getpackage_duration_seconds",
			Help:      "The duration of all queries issued in the package lookup methods",
		},
		[]string{"query"},
	)
)

// PackageByUUID fetches one package and its related rows.
//
// A missing package is (nil, nil), not an error.
func (s *ReconcilerStore) PackageByUUID(ctx context.Context, id uuid.UUID) (*purldb.Package, error) {
	selectByUUID := `
		SELECT ` + packageColumns + `
		FROM package
		WHERE uuid = $1;
		`

	ctx = zlog.ContextWithValues(ctx, "component", "datastore/postgres/PackageByUUID")

	start := time.Now()
	pkg, err := scanPackage(s.pool.QueryRow(ctx, selectByUUID, id))
	if err != nil {
		return nil, fmt.Errorf("failed to query package by uuid: %w", err)
	}
	getPackageCounter.WithLabelValues("selectByUUID").Add(1)
	getPackageDuration.WithLabelValues("selectByUUID").Observe(time.Since(start).Seconds())
	if pkg == nil {
		return nil, nil
	}
	if err := loadRelated(ctx, s.pool, pkg); err != nil {
		return nil, err
	}
	return pkg, nil
}

// PackageByPURL resolves a Package URL string to a package.
//
// The purl's fields are compared in their canonical form; when several rows
// share the purl identity but differ in download URL, the oldest row wins.
func (s *ReconcilerStore) PackageByPURL(ctx context.Context, purl string) (*purldb.Package, error) {
	selectByPURL := `
		SELECT ` + packageColumns + `
		FROM package
		WHERE type = $1
		  AND namespace = $2
		  AND name = $3
		  AND version = $4
		  AND qualifiers = $5
		  AND subpath = $6
		ORDER BY id
		LIMIT 1;
		`
	const op = `datastore/postgres/PackageByPURL`

	ctx = zlog.ContextWithValues(ctx, "component", op)
	u, err := packageurl.FromString(purl)
	if err != nil {
		return nil, &purldb.Error{
			Op:      op,
			Kind:    purldb.ErrInvalid,
			Message: fmt.Sprintf("malformed purl %q", purl),
			Inner:   err,
		}
	}
	qualifiers := purldb.NormalizeQualifiers(u.Qualifiers.Map())

	start := time.Now()
	pkg, err := scanPackage(s.pool.QueryRow(ctx, selectByPURL,
		u.Type, u.Namespace, u.Name, u.Version, qualifiers, u.Subpath))
	if err != nil {
		return nil, fmt.Errorf("failed to query package by purl: %w", err)
	}
	getPackageCounter.WithLabelValues("selectByPURL").Add(1)
	getPackageDuration.WithLabelValues("selectByPURL").Observe(time.Since(start).Seconds())
	if pkg == nil {
		return nil, nil
	}
	if err := loadRelated(ctx, s.pool, pkg); err != nil {
		return nil, err
	}
	return pkg, nil
}
