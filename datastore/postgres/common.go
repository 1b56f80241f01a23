package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/purldb/purldb"
)

// queryer is the subset of the pgx API shared by pools and transactions, so
// helpers can run inside or outside an open transaction.
type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// packageColumnList is the canonical column order for reading package rows.
// It must match scanPackage and the table definition.
var packageColumnList = []string{
	"id", "uuid", "type", "namespace", "name", "version", "qualifiers", "subpath", "download_url",
	"primary_language", "description", "keywords", "homepage_url", "size", "release_date",
	"md5", "sha1", "sha256", "sha512",
	"bug_tracking_url", "code_view_url", "vcs_url",
	"copyright", "holder",
	"declared_license_expression", "declared_license_expression_spdx",
	"other_license_expression", "extracted_license_statement", "notice_text",
	"repository_homepage_url", "repository_download_url", "api_data_url",
	"mining_level", "package_content", "extra_data", "history",
	"index_error", "last_indexed_date", "created_date", "last_modified_date",
}

var packageColumns = strings.Join(packageColumnList, ", ")

// scanPackage reads one package row. A missing row is reported as (nil, nil):
// "not found" is not a storage failure.
func scanPackage(row pgx.Row) (*purldb.Package, error) {
	var p purldb.Package
	var extra, hist []byte
	err := row.Scan(
		&p.ID, &p.UUID, &p.Type, &p.Namespace, &p.Name, &p.Version, &p.Qualifiers, &p.Subpath, &p.DownloadURL,
		&p.PrimaryLanguage, &p.Description, &p.Keywords, &p.HomepageURL, &p.Size, &p.ReleaseDate,
		&p.MD5, &p.SHA1, &p.SHA256, &p.SHA512,
		&p.BugTrackingURL, &p.CodeViewURL, &p.VCSURL,
		&p.Copyright, &p.Holder,
		&p.DeclaredLicenseExpression, &p.DeclaredLicenseExpressionSPDX,
		&p.OtherLicenseExpression, &p.ExtractedLicenseStatement, &p.NoticeText,
		&p.RepositoryHomepageURL, &p.RepositoryDownloadURL, &p.APIDataURL,
		&p.MiningLevel, &p.Content, &extra, &hist,
		&p.IndexError, &p.LastIndexedDate, &p.CreatedDate, &p.LastModifiedDate,
	)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to scan package row: %w", err)
	}
	if len(extra) != 0 {
		if err := json.Unmarshal(extra, &p.ExtraData); err != nil {
			return nil, fmt.Errorf("failed to decode extra_data: %w", err)
		}
	}
	if len(hist) != 0 {
		if err := json.Unmarshal(hist, &p.History); err != nil {
			return nil, fmt.Errorf("failed to decode history: %w", err)
		}
	}
	return &p, nil
}

// loadRelated populates the package's exclusively-owned rows.
func loadRelated(ctx context.Context, q queryer, p *purldb.Package) error {
	const (
		selectParties = `
		SELECT id, package_id, role, name, email, url
		FROM package_party
		WHERE package_id = $1
		ORDER BY id;
		`
		selectDependencies = `
		SELECT id, package_id, purl, requirement, scope, is_runtime, is_optional, is_resolved
		FROM package_dependency
		WHERE package_id = $1
		ORDER BY id;
		`
	)

	rows, err := q.Query(ctx, selectParties, p.ID)
	if err != nil {
		return fmt.Errorf("failed to query parties: %w", err)
	}
	p.Parties = p.Parties[:0]
	for rows.Next() {
		var pt purldb.Party
		if err := rows.Scan(&pt.ID, &pt.PackageID, &pt.Role, &pt.Name, &pt.Email, &pt.URL); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan party: %w", err)
		}
		p.Parties = append(p.Parties, pt)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("party rows errored: %w", err)
	}

	rows, err = q.Query(ctx, selectDependencies, p.ID)
	if err != nil {
		return fmt.Errorf("failed to query dependencies: %w", err)
	}
	defer rows.Close()
	p.Dependencies = p.Dependencies[:0]
	for rows.Next() {
		var d purldb.DependentPackage
		err := rows.Scan(&d.ID, &d.PackageID, &d.PURL, &d.Requirement, &d.Scope, &d.IsRuntime, &d.IsOptional, &d.IsResolved)
		if err != nil {
			return fmt.Errorf("failed to scan dependency: %w", err)
		}
		p.Dependencies = append(p.Dependencies, d)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("dependency rows errored: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is the composite-key unique
// violation used for optimistic create-or-merge.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
