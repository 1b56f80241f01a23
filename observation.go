package purldb

import (
	"strings"
	"time"
)

// Observation is a transient, collector-produced record describing one
// package artifact as seen from one registry at one point in time.
//
// Observations are created per collector invocation and discarded after
// reconciliation; they are never persisted.
type Observation struct {
	// PURL identity fields. Qualifiers may arrive as a raw mapping in
	// QualifierMap or an encoded string in Qualifiers; Normalize folds both
	// into the canonical encoded form.
	Type         string            `json:"type"`
	Namespace    string            `json:"namespace,omitempty"`
	Name         string            `json:"name"`
	Version      string            `json:"version,omitempty"`
	Qualifiers   string            `json:"qualifiers,omitempty"`
	QualifierMap map[string]string `json:"qualifier_map,omitempty"`
	Subpath      string            `json:"subpath,omitempty"`

	// DownloadURL must be non-empty for the observation to be considered
	// at all.
	DownloadURL string `json:"download_url"`

	PrimaryLanguage string     `json:"primary_language,omitempty"`
	Description     string     `json:"description,omitempty"`
	Keywords        []string   `json:"keywords,omitempty"`
	HomepageURL     string     `json:"homepage_url,omitempty"`
	Size            int64      `json:"size,omitempty"`
	ReleaseDate     *time.Time `json:"release_date,omitempty"`

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
	OtherLicenseExpression    string `json:"other_license_expression,omitempty"`
	ExtractedLicenseStatement string `json:"extracted_license_statement,omitempty"`
	NoticeText                string `json:"notice_text,omitempty"`

	RepositoryHomepageURL string `json:"repository_homepage_url,omitempty"`
	RepositoryDownloadURL string `json:"repository_download_url,omitempty"`
	APIDataURL            string `json:"api_data_url,omitempty"`

	// MiningLevel describes how authoritative and deep this observation
	// is. Higher always means more trusted for merge purposes.
	MiningLevel int `json:"mining_level,omitempty"`
	// Content classifies the observed artifact.
	Content PackageContent `json:"package_content,omitempty"`

	ExtraData map[string]interface{} `json:"extra_data,omitempty"`

	Parties      []Party            `json:"parties,omitempty"`
	Dependencies []DependentPackage `json:"dependencies,omitempty"`

	// Source attributes the observation to its collector or harvest item
	// for the history ledger.
	Source string `json:"source,omitempty"`
}

// Normalize canonicalizes the observation in place: identity fields are
// lowercased and the qualifiers are folded into their canonical encoded
// string form.
func (o *Observation) Normalize() error {
	o.Type = strings.ToLower(o.Type)
	o.Namespace = strings.ToLower(o.Namespace)
	o.Name = strings.ToLower(o.Name)
	o.Subpath = strings.ToLower(o.Subpath)
	switch {
	case len(o.QualifierMap) != 0:
		o.Qualifiers = NormalizeQualifiers(o.QualifierMap)
	case o.Qualifiers != "":
		q, err := CanonicalQualifiers(strings.ToLower(o.Qualifiers))
		if err != nil {
			return &Error{
				Op:      "Observation.Normalize",
				Kind:    ErrPrecondition,
				Message: "malformed qualifiers",
				Inner:   err,
			}
		}
		o.Qualifiers = q
	}
	return nil
}

// Validate checks the observation against its schema contract. A violation
// indicates a collector bug and is reported as [ErrPrecondition] before any
// store interaction.
//
// A missing DownloadURL is deliberately not checked here: that is a soft
// rejection owned by the reconcile path, not a contract violation.
func (o *Observation) Validate() error {
	const op = "Observation.Validate"
	if o == nil {
		return &Error{Op: op, Kind: ErrPrecondition, Message: "nil observation"}
	}
	if o.Type == "" || o.Name == "" {
		return &Error{Op: op, Kind: ErrPrecondition, Message: "observation missing type or name"}
	}
	if o.MiningLevel < 0 {
		return &Error{Op: op, Kind: ErrPrecondition, Message: "negative mining level"}
	}
	if o.Content != 0 && !o.Content.Known() {
		return &Error{Op: op, Kind: ErrPrecondition, Message: "unknown package content"}
	}
	for i := range o.Parties {
		if o.Parties[i].Name == "" && o.Parties[i].Email == "" {
			return &Error{Op: op, Kind: ErrPrecondition, Message: "party with neither name nor email"}
		}
	}
	return nil
}
