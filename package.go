package purldb

import (
	"time"

	"github.com/google/uuid"
	"github.com/package-url/packageurl-go"
)

// Package is the canonical, persisted record for one concrete package
// artifact.
//
// A Package is uniquely keyed by the composite (download_url, type,
// namespace, name, version, qualifiers, subpath). The purl identity fields
// are stored lowercased with empty strings, never nulls, so the composite
// uniqueness constraint holds for partially-identified artifacts.
//
// A Package is created on first reconciliation of an Observation that
// matches nothing, mutated in place on every later Observation that resolves
// to it, and never hard-deleted by the reconciliation engine.
type Package struct {
	// ID is the store-assigned row id.
	ID int64 `json:"-"`
	// UUID is the globally unique synthetic identifier.
	UUID uuid.UUID `json:"uuid"`

	// PURL identity fields. Type, Namespace, Name, Qualifiers and Subpath
	// are lowercased on write; Qualifiers holds the canonical encoded
	// key=value string, sorted by key.
	Type       string `json:"type"`
	Namespace  string `json:"namespace"`
	Name       string `json:"name"`
	Version    string `json:"version"`
	Qualifiers string `json:"qualifiers"`
	Subpath    string `json:"subpath"`

	// DownloadURL is the stable external identifier for the concrete
	// artifact. It is never empty.
	DownloadURL string `json:"download_url"`

	PrimaryLanguage string   `json:"primary_language,omitempty"`
	Description     string   `json:"description,omitempty"`
	Keywords        []string `json:"keywords,omitempty"`
	HomepageURL     string   `json:"homepage_url,omitempty"`
	Size            int64    `json:"size,omitempty"`
	// ReleaseDate is the upstream publication date, when the registry
	// exposes one.
	ReleaseDate *time.Time `json:"release_date,omitempty"`

	MD5    string `json:"md5,omitempty"`
	SHA1   string `json:"sha1,omitempty"`
	SHA256 string `json:"sha256,omitempty"`
	SHA512 string `json:"sha512,omitempty"`

	BugTrackingURL string `json:"bug_tracking_url,omitempty"`
	CodeViewURL    string `json:"code_view_url,omitempty"`
	VCSURL         string `json:"vcs_url,omitempty"`

	Copyright                 string `json:"copyright,omitempty"`
	Holder                    string `json:"holder,omitempty"`
	DeclaredLicenseExpression string `json:"declared_license_expression,omitempty"`
	// DeclaredLicenseExpressionSPDX is a cache derived from
	// DeclaredLicenseExpression. It is recomputed, never merged.
	DeclaredLicenseExpressionSPDX string `json:"declared_license_expression_spdx,omitempty"`
	OtherLicenseExpression        string `json:"other_license_expression,omitempty"`
	ExtractedLicenseStatement     string `json:"extracted_license_statement,omitempty"`
	NoticeText                    string `json:"notice_text,omitempty"`

	RepositoryHomepageURL string `json:"repository_homepage_url,omitempty"`
	RepositoryDownloadURL string `json:"repository_download_url,omitempty"`
	APIDataURL            string `json:"api_data_url,omitempty"`

	// MiningLevel records how deep the most authoritative collection that
	// contributed to this record was. Higher means more trusted.
	MiningLevel int `json:"mining_level"`
	// Content classifies what the artifact physically is. Zero means
	// unknown.
	Content PackageContent `json:"package_content,omitempty"`

	// ExtraData is a free-form bag carried along from collectors. The
	// enhancement API also writes its attribution under the "enhanced_by"
	// key here.
	ExtraData map[string]interface{} `json:"extra_data,omitempty"`

	// History is the append-only ledger of creation and merge events.
	History History `json:"history"`

	// IndexError holds the most recent indexing failure, empty when the
	// last index succeeded. Failure is marked, never deleted.
	IndexError      string     `json:"index_error,omitempty"`
	LastIndexedDate *time.Time `json:"last_indexed_date,omitempty"`

	CreatedDate      time.Time `json:"created_date"`
	LastModifiedDate time.Time `json:"last_modified_date"`

	// Parties and Dependencies are exclusively owned related rows, loaded
	// on demand by the store.
	Parties      []Party            `json:"parties,omitempty"`
	Dependencies []DependentPackage `json:"dependencies,omitempty"`
	Resources    []Resource         `json:"-"`
}

// PURL derives the canonical Package URL string for the record.
func (p *Package) PURL() string {
	qs := packageurl.Qualifiers{}
	if p.Qualifiers != "" {
		if m, err := ParseQualifiers(p.Qualifiers); err == nil {
			qs = packageurl.QualifiersFromMap(m)
		}
	}
	u := packageurl.NewPackageURL(p.Type, p.Namespace, p.Name, p.Version, qs, p.Subpath)
	return u.ToString()
}

// SetsWith reports whether other shares the nominal (type, namespace, name,
// version) identity used for package set grouping.
func (p *Package) SetsWith(other *Package) bool {
	return p.Type == other.Type &&
		p.Namespace == other.Namespace &&
		p.Name == other.Name &&
		p.Version == other.Version
}
