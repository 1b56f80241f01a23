package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	version "github.com/knqyf263/go-deb-version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/quay/zlog"

	"github.com/purldb/purldb"
)

var (
	relateCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "purldb",
			Subsystem: "reconciler",
			Name:      "relatepackages_total",
			Help:      "Total number of database queries issued in the RelatePackages method.",
		},
		[]string{"query"},
	)

	relateDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "purldb",
			Subsystem: "reconciler",
			Name:      "relatepackages_duration_seconds",
			Help:      "The duration of all queries issued in the RelatePackages method",
		},
		[]string{"query"},
	)
)

// RelatePackages records a directed, typed edge between two packages,
// independently of any package set membership.
//
// A source-package edge from a Debian-style binary to its source sibling is
// checked for version comparability first: a binary can't descend from a
// source at an unrelated version.
func (s *ReconcilerStore) RelatePackages(ctx context.Context, from, to *purldb.Package, kind purldb.RelationKind) error {
	const insertRelation = `
	INSERT INTO package_relation (from_package_id, to_package_id, relation)
	VALUES ($1, $2, $3)
	ON CONFLICT DO NOTHING;
	`
	const op = `datastore/postgres/RelatePackages`

	ctx = zlog.ContextWithValues(ctx, "component", op)
	if from.ID == to.ID {
		return &purldb.Error{Op: op, Kind: purldb.ErrPrecondition, Message: "cannot relate a package to itself"}
	}

	if kind == purldb.SourcePackage && from.Type == "deb" {
		// binNMU suffixes on the binary are tolerated.
		bstr := from.Version
		if i := strings.Index(bstr, "+b"); i > 0 {
			bstr = bstr[:i]
		}
		bv, err := version.NewVersion(bstr)
		if err != nil {
			return &purldb.Error{
				Op:      op,
				Kind:    purldb.ErrPrecondition,
				Message: fmt.Sprintf("unparseable debian version %q", from.Version),
				Inner:   err,
			}
		}
		sv, err := version.NewVersion(to.Version)
		if err != nil {
			return &purldb.Error{
				Op:      op,
				Kind:    purldb.ErrPrecondition,
				Message: fmt.Sprintf("unparseable debian version %q", to.Version),
				Inner:   err,
			}
		}
		if !bv.Equal(sv) {
			return &purldb.Error{
				Op:      op,
				Kind:    purldb.ErrConflict,
				Message: fmt.Sprintf("binary version %q does not descend from source version %q", from.Version, to.Version),
			}
		}
	}

	start := time.Now()
	if _, err := s.pool.Exec(ctx, insertRelation, from.ID, to.ID, kind); err != nil {
		return fmt.Errorf("failed to insert package relation: %w", err)
	}
	relateCounter.WithLabelValues("insertRelation").Add(1)
	relateDuration.WithLabelValues("insertRelation").Observe(time.Since(start).Seconds())
	return nil
}
