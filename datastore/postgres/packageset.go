package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/quay/zlog"

	"github.com/purldb/purldb"
)

var (
	packageSetCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "purldb",
			Subsystem: "reconciler",
			Name:      "packageset_total",
			Help:      "Total number of database queries issued in the package set methods.",
		},
		[]string{"query"},
	)

	packageSetDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "purldb",
			Subsystem: "reconciler",
			Name:      "packageset_duration_seconds",
			Help:      "The duration of all queries issued in the package set methods",
		},
		[]string{"query"},
	)
)

// groupNewPackage evaluates package set membership for a freshly created
// package. It runs once per creation, on the creation transaction, and never
// re-runs on merge.
//
// A set only forms once at least two content-kind variants of the same
// nominal package+version exist. A binary package joins exactly one set,
// preferring a set that doesn't already hold a binary member; any other kind
// joins every set its relatives already belong to.
func (s *ReconcilerStore) groupNewPackage(ctx context.Context, tx pgx.Tx, pkg *purldb.Package) error {
	const (
		selectRelated = `
		SELECT id, package_content
		FROM package
		WHERE type = $1
		  AND namespace = $2
		  AND name = $3
		  AND version = $4
		  AND id != $5
		ORDER BY id;
		`
		selectMemberships = `
		SELECT DISTINCT package_set_id
		FROM package_set_member
		WHERE package_id = ANY($1)
		ORDER BY package_set_id;
		`
		selectSetHasBinary = `
		SELECT EXISTS (
			SELECT 1
			FROM package_set_member m
				 JOIN package p ON p.id = m.package_id
			WHERE m.package_set_id = $1
			  AND p.package_content = $2
		);
		`
	)

	ctx = zlog.ContextWithValues(ctx, "component", "datastore/postgres/groupNewPackage")

	start := time.Now()
	rows, err := tx.Query(ctx, selectRelated, pkg.Type, pkg.Namespace, pkg.Name, pkg.Version, pkg.ID)
	if err != nil {
		return fmt.Errorf("failed to query related packages: %w", err)
	}
	var relatedIDs []int64
	for rows.Next() {
		var id int64
		var content purldb.PackageContent
		if err := rows.Scan(&id, &content); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan related package: %w", err)
		}
		relatedIDs = append(relatedIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("related package rows errored: %w", err)
	}
	packageSetCounter.WithLabelValues("selectRelated").Add(1)
	packageSetDuration.WithLabelValues("selectRelated").Observe(time.Since(start).Seconds())

	if len(relatedIDs) == 0 {
		return nil
	}

	start = time.Now()
	rows, err = tx.Query(ctx, selectMemberships, relatedIDs)
	if err != nil {
		return fmt.Errorf("failed to query set memberships: %w", err)
	}
	var setIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan set membership: %w", err)
		}
		setIDs = append(setIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("membership rows errored: %w", err)
	}
	packageSetCounter.WithLabelValues("selectMemberships").Add(1)
	packageSetDuration.WithLabelValues("selectMemberships").Observe(time.Since(start).Seconds())

	if len(setIDs) == 0 {
		// First grouping for this nominal package+version: form a set
		// holding the relatives and the new package.
		setID, err := createSet(ctx, tx)
		if err != nil {
			return err
		}
		for _, id := range relatedIDs {
			if err := addMember(ctx, tx, setID, id); err != nil {
				return err
			}
		}
		return addMember(ctx, tx, setID, pkg.ID)
	}

	if pkg.Content == purldb.ContentBinary {
		// Binary exclusivity: one set only, preferring one without an
		// existing binary member.
		for _, setID := range setIDs {
			var hasBinary bool
			err := tx.QueryRow(ctx, selectSetHasBinary, setID, purldb.ContentBinary).Scan(&hasBinary)
			if err != nil {
				return fmt.Errorf("failed to check set for binary member: %w", err)
			}
			if !hasBinary {
				return addMember(ctx, tx, setID, pkg.ID)
			}
		}
		setID, err := createSet(ctx, tx)
		if err != nil {
			return err
		}
		return addMember(ctx, tx, setID, pkg.ID)
	}

	for _, setID := range setIDs {
		if err := addMember(ctx, tx, setID, pkg.ID); err != nil {
			return err
		}
	}
	return nil
}

func createSet(ctx context.Context, tx pgx.Tx) (int64, error) {
	const insertSet = `INSERT INTO package_set (uuid) VALUES ($1) RETURNING id;`

	start := time.Now()
	var id int64
	if err := tx.QueryRow(ctx, insertSet, uuid.New()).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to create package set: %w", err)
	}
	packageSetCounter.WithLabelValues("insertSet").Add(1)
	packageSetDuration.WithLabelValues("insertSet").Observe(time.Since(start).Seconds())
	return id, nil
}

func addMember(ctx context.Context, tx pgx.Tx, setID, packageID int64) error {
	const insertMember = `
	INSERT INTO package_set_member (package_set_id, package_id)
	VALUES ($1, $2)
	ON CONFLICT DO NOTHING;
	`

	start := time.Now()
	if _, err := tx.Exec(ctx, insertMember, setID, packageID); err != nil {
		return fmt.Errorf("failed to add package to set: %w", err)
	}
	packageSetCounter.WithLabelValues("insertMember").Add(1)
	packageSetDuration.WithLabelValues("insertMember").Observe(time.Since(start).Seconds())
	return nil
}

// PackageSets returns the sets the package belongs to, with membership
// populated.
func (s *ReconcilerStore) PackageSets(ctx context.Context, pkg *purldb.Package) ([]purldb.PackageSet, error) {
	const (
		selectSets = `
		SELECT s.id, s.uuid
		FROM package_set s
			 JOIN package_set_member m ON m.package_set_id = s.id
		WHERE m.package_id = $1
		ORDER BY s.id;
		`
		selectMembers = `
		SELECT p.uuid
		FROM package p
			 JOIN package_set_member m ON m.package_id = p.id
		WHERE m.package_set_id = $1
		ORDER BY p.id;
		`
	)

	ctx = zlog.ContextWithValues(ctx, "component", "datastore/postgres/PackageSets")

	rows, err := s.pool.Query(ctx, selectSets, pkg.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query package sets: %w", err)
	}
	var sets []purldb.PackageSet
	for rows.Next() {
		var ps purldb.PackageSet
		if err := rows.Scan(&ps.ID, &ps.UUID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan package set: %w", err)
		}
		sets = append(sets, ps)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("package set rows errored: %w", err)
	}

	for i := range sets {
		rows, err := s.pool.Query(ctx, selectMembers, sets[i].ID)
		if err != nil {
			return nil, fmt.Errorf("failed to query set members: %w", err)
		}
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan set member: %w", err)
			}
			sets[i].MemberUUIDs = append(sets[i].MemberUUIDs, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("set member rows errored: %w", err)
		}
	}
	return sets, nil
}
