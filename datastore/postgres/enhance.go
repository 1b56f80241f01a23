package postgres

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v8"
	_ "github.com/doug-martin/goqu/v8/dialect/postgres"
	"github.com/quay/zlog"

	"github.com/purldb/purldb"
)

// enhanceableFields are the descriptive and license fields the enhancement
// view may backfill from package set peers. Identity fields, checksums and
// bookkeeping are deliberately absent.
var enhanceableFields = []struct {
	name string
	get  func(*purldb.Package) string
	set  func(*purldb.Package, string)
}{
	{"primary_language", func(p *purldb.Package) string { return p.PrimaryLanguage }, func(p *purldb.Package, v string) { p.PrimaryLanguage = v }},
	{"description", func(p *purldb.Package) string { return p.Description }, func(p *purldb.Package, v string) { p.Description = v }},
	{"homepage_url", func(p *purldb.Package) string { return p.HomepageURL }, func(p *purldb.Package, v string) { p.HomepageURL = v }},
	{"bug_tracking_url", func(p *purldb.Package) string { return p.BugTrackingURL }, func(p *purldb.Package, v string) { p.BugTrackingURL = v }},
	{"code_view_url", func(p *purldb.Package) string { return p.CodeViewURL }, func(p *purldb.Package, v string) { p.CodeViewURL = v }},
	{"vcs_url", func(p *purldb.Package) string { return p.VCSURL }, func(p *purldb.Package, v string) { p.VCSURL = v }},
	{"copyright", func(p *purldb.Package) string { return p.Copyright }, func(p *purldb.Package, v string) { p.Copyright = v }},
	{"holder", func(p *purldb.Package) string { return p.Holder }, func(p *purldb.Package, v string) { p.Holder = v }},
	{"declared_license_expression", func(p *purldb.Package) string { return p.DeclaredLicenseExpression }, func(p *purldb.Package, v string) { p.DeclaredLicenseExpression = v }},
	{"other_license_expression", func(p *purldb.Package) string { return p.OtherLicenseExpression }, func(p *purldb.Package, v string) { p.OtherLicenseExpression = v }},
	{"extracted_license_statement", func(p *purldb.Package) string { return p.ExtractedLicenseStatement }, func(p *purldb.Package, v string) { p.ExtractedLicenseStatement = v }},
	{"notice_text", func(p *purldb.Package) string { return p.NoticeText }, func(p *purldb.Package, v string) { p.NoticeText = v }},
	{"repository_homepage_url", func(p *purldb.Package) string { return p.RepositoryHomepageURL }, func(p *purldb.Package, v string) { p.RepositoryHomepageURL = v }},
	{"repository_download_url", func(p *purldb.Package) string { return p.RepositoryDownloadURL }, func(p *purldb.Package, v string) { p.RepositoryDownloadURL = v }},
	{"api_data_url", func(p *purldb.Package) string { return p.APIDataURL }, func(p *purldb.Package, v string) { p.APIDataURL = v }},
}

// buildPeersQuery builds the peer-selection query: every package sharing a
// set with the subject whose content kind outranks (sorts below) the
// subject's, best-ranked first.
func buildPeersQuery(pkg *purldb.Package) (string, []interface{}, error) {
	psql := goqu.Dialect("postgres")
	cols := make([]interface{}, len(packageColumnList))
	for i, c := range packageColumnList {
		cols[i] = goqu.I("p." + c)
	}
	return psql.From(goqu.T("package").As("p")).
		Select(cols...).
		Join(
			goqu.T("package_set_member").As("m"),
			goqu.On(goqu.Ex{"m.package_id": goqu.I("p.id")}),
		).
		Where(
			goqu.I("m.package_set_id").In(
				psql.From("package_set_member").
					Select("package_set_id").
					Where(goqu.Ex{"package_id": pkg.ID}),
			),
			goqu.I("p.id").Neq(pkg.ID),
			goqu.I("p.package_content").Lt(int(pkg.Content)),
		).
		Order(goqu.I("p.package_content").Asc(), goqu.I("p.id").Asc()).
		Prepared(true).
		ToSQL()
}

// EnhancedPackage returns a copy of pkg with missing descriptive and license
// fields backfilled from better-ranked peers in its package sets.
//
// Only binary and source-archive packages are enhanced; anything else is
// returned as-is. Contributions are attributed per field under the
// "enhanced_by" key of the copy's extra data. This is a view: nothing is
// written and no locks are taken, so it tolerates eventually-consistent
// reads.
func (s *ReconcilerStore) EnhancedPackage(ctx context.Context, pkg *purldb.Package) (*purldb.Package, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "datastore/postgres/EnhancedPackage")

	out := *pkg
	out.ExtraData = make(map[string]interface{}, len(pkg.ExtraData)+1)
	for k, v := range pkg.ExtraData {
		out.ExtraData[k] = v
	}
	if pkg.Content != purldb.ContentBinary && pkg.Content != purldb.ContentSourceArchive {
		return &out, nil
	}

	sql, args, err := buildPeersQuery(pkg)
	if err != nil {
		return nil, fmt.Errorf("failed to build peers query: %w", err)
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query set peers: %w", err)
	}
	defer rows.Close()

	enhancedBy := map[string]interface{}{}
	for rows.Next() {
		peer, err := scanPackage(rows)
		if err != nil {
			return nil, err
		}
		for _, f := range enhanceableFields {
			if f.get(&out) != "" {
				continue
			}
			v := f.get(peer)
			if v == "" {
				continue
			}
			f.set(&out, v)
			enhancedBy[f.name] = peer.PURL()
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("peer rows errored: %w", err)
	}

	if len(enhancedBy) != 0 {
		out.ExtraData["enhanced_by"] = enhancedBy
	}
	return &out, nil
}
