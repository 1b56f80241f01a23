package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/quay/zlog"

	"github.com/purldb/purldb"
	"github.com/purldb/purldb/reconciler"
)

var (
	mergePackageCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "purldb",
			Subsystem: "reconciler",
			Name:      "mergepackage_total",
			Help:      "Total number of database queries issued in the mergePackage method.",
		},
		[]string{"query"},
	)

	mergePackageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "purldb",
			Subsystem: "reconciler",
			Name:      "mergepackage_duration_seconds",
			Help:      "The duration of all queries issued in the mergePackage method",
		},
		[]string{"query"},
	)
)

// mergePackage runs the field merge policy against an existing row and
// persists whatever changed, on the provided transaction.
//
// Nothing is written when the merge produced no changes and the mining level
// did not move: reconciling the same observation twice is a no-op the second
// time.
func (s *ReconcilerStore) mergePackage(ctx context.Context, tx pgx.Tx, pkg *purldb.Package, obs *purldb.Observation, miningLevel int) error {
	ctx = zlog.ContextWithValues(ctx, "component", "datastore/postgres/mergePackage")

	replace := reconciler.ReplaceFor(pkg.MiningLevel, miningLevel)
	changes, err := reconciler.Merge(pkg, obs, replace)
	if err != nil {
		// A checksum conflict aborts the whole transaction via the
		// caller's rollback; the stored package is untouched.
		return err
	}

	raised := miningLevel > pkg.MiningLevel
	if raised {
		pkg.MiningLevel = miningLevel
	}
	if len(changes) == 0 && !raised {
		return nil
	}

	now := time.Now().UTC()
	pkg.LastModifiedDate = now
	if len(changes) != 0 {
		source := obs.Source
		if source == "" {
			source = "new data"
		}
		pkg.History.Append(
			fmt.Sprintf("Package field values updated based on %s.", source),
			reconciler.HistoryData(changes),
		)
	}

	if err := updatePackageRow(ctx, tx, pkg); err != nil {
		return err
	}

	for _, c := range changes {
		switch c.Field {
		case "parties":
			if err := replaceParties(ctx, tx, pkg); err != nil {
				return err
			}
		case "dependencies":
			if err := replaceDependencies(ctx, tx, pkg); err != nil {
				return err
			}
		}
	}

	zlog.Debug(ctx).
		Str("package", pkg.UUID.String()).
		Int("changed", len(changes)).
		Bool("replace", replace).
		Msg("merged observation into existing package")
	return nil
}

func updatePackageRow(ctx context.Context, tx pgx.Tx, pkg *purldb.Package) error {
	const updatePackage = `
	UPDATE package
	SET primary_language = $2,
		description = $3,
		keywords = $4,
		homepage_url = $5,
		size = $6,
		release_date = $7,
		md5 = $8,
		sha1 = $9,
		sha256 = $10,
		sha512 = $11,
		bug_tracking_url = $12,
		code_view_url = $13,
		vcs_url = $14,
		copyright = $15,
		holder = $16,
		declared_license_expression = $17,
		other_license_expression = $18,
		extracted_license_statement = $19,
		notice_text = $20,
		repository_homepage_url = $21,
		repository_download_url = $22,
		api_data_url = $23,
		mining_level = $24,
		package_content = $25,
		extra_data = $26,
		history = $27,
		last_modified_date = $28
	WHERE id = $1;
	`

	extra, err := json.Marshal(pkg.ExtraData)
	if err != nil {
		return fmt.Errorf("failed to encode extra_data: %w", err)
	}
	hist, err := json.Marshal(pkg.History)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	start := time.Now()
	_, err = tx.Exec(ctx, updatePackage,
		pkg.ID,
		pkg.PrimaryLanguage, pkg.Description, pkg.Keywords, pkg.HomepageURL, pkg.Size, pkg.ReleaseDate,
		pkg.MD5, pkg.SHA1, pkg.SHA256, pkg.SHA512,
		pkg.BugTrackingURL, pkg.CodeViewURL, pkg.VCSURL,
		pkg.Copyright, pkg.Holder,
		pkg.DeclaredLicenseExpression, pkg.OtherLicenseExpression,
		pkg.ExtractedLicenseStatement, pkg.NoticeText,
		pkg.RepositoryHomepageURL, pkg.RepositoryDownloadURL, pkg.APIDataURL,
		pkg.MiningLevel, pkg.Content, extra, hist,
		pkg.LastModifiedDate,
	)
	if err != nil {
		return fmt.Errorf("failed to update package: %w", err)
	}
	mergePackageCounter.WithLabelValues("updatePackage").Add(1)
	mergePackageDuration.WithLabelValues("updatePackage").Observe(time.Since(start).Seconds())
	return nil
}

// replaceParties swaps the package's party rows wholesale for the merged
// collection. The merge policy never interleaves: either the whole incoming
// collection was adopted or none of it was.
func replaceParties(ctx context.Context, tx pgx.Tx, pkg *purldb.Package) error {
	const deleteParties = `DELETE FROM package_party WHERE package_id = $1;`

	start := time.Now()
	if _, err := tx.Exec(ctx, deleteParties, pkg.ID); err != nil {
		return fmt.Errorf("failed to delete parties: %w", err)
	}
	for i := range pkg.Parties {
		pt := &pkg.Parties[i]
		pt.PackageID = pkg.ID
		if _, err := tx.Exec(ctx, insertParty, pkg.ID, pt.Role, pt.Name, pt.Email, pt.URL); err != nil {
			return fmt.Errorf("failed to insert party: %w", err)
		}
	}
	mergePackageCounter.WithLabelValues("replaceParties").Add(1)
	mergePackageDuration.WithLabelValues("replaceParties").Observe(time.Since(start).Seconds())
	return nil
}

// replaceDependencies swaps the package's dependency rows wholesale.
func replaceDependencies(ctx context.Context, tx pgx.Tx, pkg *purldb.Package) error {
	const deleteDependencies = `DELETE FROM package_dependency WHERE package_id = $1;`

	start := time.Now()
	if _, err := tx.Exec(ctx, deleteDependencies, pkg.ID); err != nil {
		return fmt.Errorf("failed to delete dependencies: %w", err)
	}
	for i := range pkg.Dependencies {
		d := &pkg.Dependencies[i]
		d.PackageID = pkg.ID
		if !d.IsResolved && d.Pinned() {
			d.IsResolved = true
		}
		_, err := tx.Exec(ctx, insertDependency,
			pkg.ID, d.PURL, d.Requirement, d.Scope, d.IsRuntime, d.IsOptional, d.IsResolved)
		if err != nil {
			return fmt.Errorf("failed to insert dependency: %w", err)
		}
	}
	mergePackageCounter.WithLabelValues("replaceDependencies").Add(1)
	mergePackageDuration.WithLabelValues("replaceDependencies").Observe(time.Since(start).Seconds())
	return nil
}
