package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/purldb/purldb"
	"github.com/purldb/purldb/pkg/microbatch"
)

var (
	createPackageCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "purldb",
			Subsystem: "reconciler",
			Name:      "createpackage_total",
			Help:      "Total number of database queries issued in the createPackage method.",
		},
		[]string{"query"},
	)

	createPackageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "purldb",
			Subsystem: "reconciler",
			Name:      "createpackage_duration_seconds",
			Help:      "The duration of all queries issued in the createPackage method",
		},
		[]string{"query"},
	)
)

const (
	insertParty = `
	INSERT INTO package_party (package_id, role, name, email, url)
	VALUES ($1, $2, $3, $4, $5);
	`
	insertDependency = `
	INSERT INTO package_dependency (package_id, purl, requirement, scope, is_runtime, is_optional, is_resolved)
	VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
)

// createPackage projects the observation onto a new package row and persists
// it with its related rows, all on the provided transaction.
//
// Absent purl identity fields are kept as empty strings, never nulls, so the
// composite uniqueness constraint can hold.
func (s *ReconcilerStore) createPackage(ctx context.Context, tx pgx.Tx, obs *purldb.Observation, miningLevel int) (*purldb.Package, error) {
	const insertPackage = `
	INSERT INTO package (
		uuid, type, namespace, name, version, qualifiers, subpath, download_url,
		primary_language, description, keywords, homepage_url, size, release_date,
		md5, sha1, sha256, sha512,
		bug_tracking_url, code_view_url, vcs_url,
		copyright, holder,
		declared_license_expression, declared_license_expression_spdx,
		other_license_expression, extracted_license_statement, notice_text,
		repository_homepage_url, repository_download_url, api_data_url,
		mining_level, package_content, extra_data, history,
		created_date, last_modified_date
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18,
			$19, $20, $21,
			$22, $23,
			$24, $25,
			$26, $27, $28,
			$29, $30, $31,
			$32, $33, $34, $35,
			$36, $37)
	RETURNING id;
	`

	now := time.Now().UTC()
	pkg := projectObservation(obs, miningLevel)
	pkg.CreatedDate, pkg.LastModifiedDate = now, now

	source := obs.Source
	if source == "" {
		source = "observation"
	}
	pkg.History.Append(fmt.Sprintf("Created package from %s.", source), nil)

	extra, err := json.Marshal(pkg.ExtraData)
	if err != nil {
		return nil, fmt.Errorf("failed to encode extra_data: %w", err)
	}
	hist, err := json.Marshal(pkg.History)
	if err != nil {
		return nil, fmt.Errorf("failed to encode history: %w", err)
	}

	start := time.Now()
	err = tx.QueryRow(ctx, insertPackage,
		pkg.UUID, pkg.Type, pkg.Namespace, pkg.Name, pkg.Version, pkg.Qualifiers, pkg.Subpath, pkg.DownloadURL,
		pkg.PrimaryLanguage, pkg.Description, pkg.Keywords, pkg.HomepageURL, pkg.Size, pkg.ReleaseDate,
		pkg.MD5, pkg.SHA1, pkg.SHA256, pkg.SHA512,
		pkg.BugTrackingURL, pkg.CodeViewURL, pkg.VCSURL,
		pkg.Copyright, pkg.Holder,
		pkg.DeclaredLicenseExpression, pkg.DeclaredLicenseExpressionSPDX,
		pkg.OtherLicenseExpression, pkg.ExtractedLicenseStatement, pkg.NoticeText,
		pkg.RepositoryHomepageURL, pkg.RepositoryDownloadURL, pkg.APIDataURL,
		pkg.MiningLevel, pkg.Content, extra, hist,
		pkg.CreatedDate, pkg.LastModifiedDate,
	).Scan(&pkg.ID)
	if err != nil {
		// The unique-violation case is the caller's to inspect.
		return nil, fmt.Errorf("failed to insert package: %w", err)
	}
	createPackageCounter.WithLabelValues("insertPackage").Add(1)
	createPackageDuration.WithLabelValues("insertPackage").Observe(time.Since(start).Seconds())

	if err := insertRelated(ctx, tx, pkg); err != nil {
		return nil, err
	}

	if err := s.groupNewPackage(ctx, tx, pkg); err != nil {
		return nil, err
	}
	return pkg, nil
}

// insertRelated persists the package's parties and dependencies.
func insertRelated(ctx context.Context, tx pgx.Tx, pkg *purldb.Package) error {
	start := time.Now()
	mBatcher := microbatch.NewInsert(tx, 500, time.Minute)
	for i := range pkg.Parties {
		pt := &pkg.Parties[i]
		pt.PackageID = pkg.ID
		if err := mBatcher.Queue(ctx, insertParty, pkg.ID, pt.Role, pt.Name, pt.Email, pt.URL); err != nil {
			return fmt.Errorf("failed to queue party: %w", err)
		}
	}
	for i := range pkg.Dependencies {
		d := &pkg.Dependencies[i]
		d.PackageID = pkg.ID
		if !d.IsResolved && d.Pinned() {
			d.IsResolved = true
		}
		err := mBatcher.Queue(ctx, insertDependency,
			pkg.ID, d.PURL, d.Requirement, d.Scope, d.IsRuntime, d.IsOptional, d.IsResolved)
		if err != nil {
			return fmt.Errorf("failed to queue dependency: %w", err)
		}
	}
	if err := mBatcher.Done(ctx); err != nil {
		return fmt.Errorf("final batch insert failed for related rows: %w", err)
	}
	createPackageCounter.WithLabelValues("insertRelated").Add(1)
	createPackageDuration.WithLabelValues("insertRelated").Observe(time.Since(start).Seconds())
	return nil
}

// projectObservation maps an observation onto a fresh package value.
func projectObservation(obs *purldb.Observation, miningLevel int) *purldb.Package {
	return &purldb.Package{
		UUID:        uuid.New(),
		Type:        obs.Type,
		Namespace:   obs.Namespace,
		Name:        obs.Name,
		Version:     obs.Version,
		Qualifiers:  obs.Qualifiers,
		Subpath:     obs.Subpath,
		DownloadURL: obs.DownloadURL,

		PrimaryLanguage: obs.PrimaryLanguage,
		Description:     obs.Description,
		Keywords:        obs.Keywords,
		HomepageURL:     obs.HomepageURL,
		Size:            obs.Size,
		ReleaseDate:     obs.ReleaseDate,

		MD5:    obs.MD5,
		SHA1:   obs.SHA1,
		SHA256: obs.SHA256,
		SHA512: obs.SHA512,

		BugTrackingURL: obs.BugTrackingURL,
		CodeViewURL:    obs.CodeViewURL,
		VCSURL:         obs.VCSURL,

		Copyright:                 obs.Copyright,
		Holder:                    obs.Holder,
		DeclaredLicenseExpression: obs.DeclaredLicenseExpression,
		OtherLicenseExpression:    obs.OtherLicenseExpression,
		ExtractedLicenseStatement: obs.ExtractedLicenseStatement,
		NoticeText:                obs.NoticeText,

		RepositoryHomepageURL: obs.RepositoryHomepageURL,
		RepositoryDownloadURL: obs.RepositoryDownloadURL,
		APIDataURL:            obs.APIDataURL,

		MiningLevel: miningLevel,
		Content:     obs.Content,
		ExtraData:   obs.ExtraData,

		Parties:      obs.Parties,
		Dependencies: obs.Dependencies,
	}
}
