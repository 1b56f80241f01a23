package reconciler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/purldb/purldb"
)

// Strategy is the merge behavior assigned to one field of the canonical
// schema.
//
// Every mergeable column is enumerated in the merge table with exactly one
// strategy; there is no reflective field walk.
type Strategy uint8

const (
	// Skip fields are never merged: identity fields, caches that are
	// recomputed, and bookkeeping owned by the store.
	Skip Strategy = iota
	// Scalar fields follow the replace-or-preserve policy: an empty
	// incoming value never destroys data, an empty existing value is
	// always filled, and a non-empty existing value is overwritten only
	// when the incoming data outranks it.
	Scalar
	// Checksum fields additionally treat a non-empty, differing pair as a
	// hard integrity conflict: two observations disagreeing on a digest
	// for the same identity are lying about being the same artifact.
	Checksum
	// Collection fields (parties, dependencies) are replaced or adopted
	// wholesale, never partially interleaved.
	Collection
)

// FieldChange records one field adopted or replaced during a merge.
type FieldChange struct {
	Field string
	Old   interface{}
	New   interface{}
}

type rule struct {
	name     string
	strategy Strategy
	incoming func(*purldb.Observation) interface{}
	current  func(*purldb.Package) interface{}
	assign   func(*purldb.Package, *purldb.Observation)
}

// mergeTable enumerates every column of the canonical schema. Columns not
// eligible for merging are listed with Skip so the table stays the single
// authority on per-field behavior.
var mergeTable = []rule{
	{name: "type", strategy: Skip},
	{name: "namespace", strategy: Skip},
	{name: "name", strategy: Skip},
	{name: "version", strategy: Skip},
	{name: "qualifiers", strategy: Skip},
	{name: "subpath", strategy: Skip},
	{name: "download_url", strategy: Skip},
	{name: "uuid", strategy: Skip},
	{name: "mining_level", strategy: Skip},
	{name: "history", strategy: Skip},
	{name: "index_error", strategy: Skip},
	{name: "last_indexed_date", strategy: Skip},
	{name: "created_date", strategy: Skip},
	{name: "last_modified_date", strategy: Skip},
	// Recomputed from declared_license_expression, never merged.
	{name: "declared_license_expression_spdx", strategy: Skip},

	{
		name: "primary_language", strategy: Scalar,
		incoming: func(o *purldb.Observation) interface{} { return o.PrimaryLanguage },
		current:  func(p *purldb.Package) interface{} { return p.PrimaryLanguage },
		assign:   func(p *purldb.Package, o *purldb.Observation) { p.PrimaryLanguage = o.PrimaryLanguage },
	},
	{
		name: "description", strategy: Scalar,
		incoming: func(o *purldb.Observation) interface{} { return o.Description },
		current:  func(p *purldb.Package) interface{} { return p.Description },
		assign:   func(p *purldb.Package, o *purldb.Observation) { p.Description = o.Description },
	},
	{
		name: "keywords", strategy: Scalar,
		incoming: func(o *purldb.Observation) interface{} { return o.Keywords },
		current:  func(p *purldb.Package) interface{} { return p.Keywords },
		assign:   func(p *purldb.Package, o *purldb.Observation) { p.Keywords = o.Keywords },
	},
	{
		name: "homepage_url", strategy: Scalar,
		incoming: func(o *purldb.Observation) interface{} { return o.HomepageURL },
		current:  func(p *purldb.Package) interface{} { return p.HomepageURL },
		assign:   func(p *purldb.Package, o *purldb.Observation) { p.HomepageURL = o.HomepageURL },
	},
	{
		name: "size", strategy: Scalar,
		incoming: func(o *purldb.Observation) interface{} { return o.Size },
		current:  func(p *purldb.Package) interface{} { return p.Size },
		assign:   func(p *purldb.Package, o *purldb.Observation) { p.Size = o.Size },
	},
	{
		name: "release_date", strategy: Scalar,
		incoming: func(o *purldb.Observation) interface{} { return o.ReleaseDate },
		current:  func(p *purldb.Package) interface{} { return p.ReleaseDate },
		assign:   func(p *purldb.Package, o *purldb.Observation) { p.ReleaseDate = o.ReleaseDate },
	},

	{
		name: "md5", strategy: Checksum,
		incoming: func(o *purldb.Observation) interface{} { return o.MD5 },
		current:  func(p *purldb.Package) interface{} { return p.MD5 },
		assign:   func(p *purldb.Package, o *purldb.Observation) { p.MD5 = o.MD5 },
	},
	{
		name: "sha1", strategy: Checksum,
		incoming: func(o *purldb.Observation) interface{} { return o.SHA1 },
		current:  func(p *purldb.Package) interface{} { return p.SHA1 },
		assign:   func(p *purldb.Package, o *purldb.Observation) { p.SHA1 = o.SHA1 },
	},
	{
		name: "sha256", strategy: Checksum,
		incoming: func(o *purldb.Observation) interface{} { return o.SHA256 },
		current:  func(p *purldb.Package) interface{} { return p.SHA256 },
		assign:   func(p *purldb.Package, o *purldb.Observation) { p.SHA256 = o.SHA256 },
	},
	{
		name: "sha512", strategy: Checksum,
		incoming: func(o *purldb.Observation) interface{} { return o.SHA512 },
		current:  func(p *purldb.Package) interface{} { return p.SHA512 },
		assign:   func(p *purldb.Package, o *purldb.Observation) { p.SHA512 = o.SHA512 },
	},

	{
		name: "bug_tracking_url", strategy: Scalar,
		incoming: func(o *purldb.Observation) interface{} { return o.BugTrackingURL },
		current:  func(p *purldb.Package) interface{} { return p.BugTrackingURL },
		assign:   func(p *purldb.Package, o *purldb.Observation) { p.BugTrackingURL = o.BugTrackingURL },
	},
	{
		name: "code_view_url", strategy: Scalar,
		incoming: func(o *purldb.Observation) interface{} { return o.CodeViewURL },
		current:  func(p *purldb.Package) interface{} { return p.CodeViewURL },
		assign:   func(p *purldb.Package, o *purldb.Observation) { p.CodeViewURL = o.CodeViewURL },
	},
	{
		name: "vcs_url", strategy: Scalar,
		incoming: func(o *purldb.Observation) interface{} { return o.VCSURL },
		current:  func(p *purldb.Package) interface{} { return p.VCSURL },
		assign:   func(p *purldb.Package, o *purldb.Observation) { p.VCSURL = o.VCSURL },
	},
	{
		name: "copyright", strategy: Scalar,
		incoming: func(o *purldb.Observation) interface{} { return o.Copyright },
		current:  func(p *purldb.Package) interface{} { return p.Copyright },
		assign:   func(p *purldb.Package, o *purldb.Observation) { p.Copyright = o.Copyright },
	},
	{
		name: "holder", strategy: Scalar,
		incoming: func(o *purldb.Observation) interface{} { return o.Holder },
		current:  func(p *purldb.Package) interface{} { return p.Holder },
		assign:   func(p *purldb.Package, o *purldb.Observation) { p.Holder = o.Holder },
	},
	{
		name: "declared_license_expression", strategy: Scalar,
		incoming: func(o *purldb.Observation) interface{} { return o.DeclaredLicenseExpression },
		current:  func(p *purldb.Package) interface{} { return p.DeclaredLicenseExpression },
		assign: func(p *purldb.Package, o *purldb.Observation) {
			p.DeclaredLicenseExpression = o.DeclaredLicenseExpression
		},
	},
	{
		name: "other_license_expression", strategy: Scalar,
		incoming: func(o *purldb.Observation) interface{} { return o.OtherLicenseExpression },
		current:  func(p *purldb.Package) interface{} { return p.OtherLicenseExpression },
		assign: func(p *purldb.Package, o *purldb.Observation) {
			p.OtherLicenseExpression = o.OtherLicenseExpression
		},
	},
	{
		name: "extracted_license_statement", strategy: Scalar,
		incoming: func(o *purldb.Observation) interface{} { return o.ExtractedLicenseStatement },
		current:  func(p *purldb.Package) interface{} { return p.ExtractedLicenseStatement },
		assign: func(p *purldb.Package, o *purldb.Observation) {
			p.ExtractedLicenseStatement = o.ExtractedLicenseStatement
		},
	},
	{
		name: "notice_text", strategy: Scalar,
		incoming: func(o *purldb.Observation) interface{} { return o.NoticeText },
		current:  func(p *purldb.Package) interface{} { return p.NoticeText },
		assign:   func(p *purldb.Package, o *purldb.Observation) { p.NoticeText = o.NoticeText },
	},

	{
		name: "repository_homepage_url", strategy: Scalar,
		incoming: func(o *purldb.Observation) interface{} { return o.RepositoryHomepageURL },
		current:  func(p *purldb.Package) interface{} { return p.RepositoryHomepageURL },
		assign: func(p *purldb.Package, o *purldb.Observation) {
			p.RepositoryHomepageURL = o.RepositoryHomepageURL
		},
	},
	{
		name: "repository_download_url", strategy: Scalar,
		incoming: func(o *purldb.Observation) interface{} { return o.RepositoryDownloadURL },
		current:  func(p *purldb.Package) interface{} { return p.RepositoryDownloadURL },
		assign: func(p *purldb.Package, o *purldb.Observation) {
			p.RepositoryDownloadURL = o.RepositoryDownloadURL
		},
	},
	{
		name: "api_data_url", strategy: Scalar,
		incoming: func(o *purldb.Observation) interface{} { return o.APIDataURL },
		current:  func(p *purldb.Package) interface{} { return p.APIDataURL },
		assign:   func(p *purldb.Package, o *purldb.Observation) { p.APIDataURL = o.APIDataURL },
	},
	{
		name: "package_content", strategy: Scalar,
		incoming: func(o *purldb.Observation) interface{} { return o.Content },
		current:  func(p *purldb.Package) interface{} { return p.Content },
		assign:   func(p *purldb.Package, o *purldb.Observation) { p.Content = o.Content },
	},
	{
		name: "extra_data", strategy: Scalar,
		incoming: func(o *purldb.Observation) interface{} { return o.ExtraData },
		current:  func(p *purldb.Package) interface{} { return p.ExtraData },
		assign:   func(p *purldb.Package, o *purldb.Observation) { p.ExtraData = o.ExtraData },
	},

	{
		name: "parties", strategy: Collection,
		incoming: func(o *purldb.Observation) interface{} { return o.Parties },
		current:  func(p *purldb.Package) interface{} { return p.Parties },
		assign:   func(p *purldb.Package, o *purldb.Observation) { p.Parties = o.Parties },
	},
	{
		name: "dependencies", strategy: Collection,
		incoming: func(o *purldb.Observation) interface{} { return o.Dependencies },
		current:  func(p *purldb.Package) interface{} { return p.Dependencies },
		assign:   func(p *purldb.Package, o *purldb.Observation) { p.Dependencies = o.Dependencies },
	},
}

// Merge applies the field merge policy to pkg in place and reports the
// changed fields, in merge-table order.
//
// When replace is false, incoming data only fills empty fields; when true it
// overwrites. In both modes an empty incoming value never destroys existing
// data, and a checksum disagreement between two non-empty values returns an
// [purldb.ErrConflict] error with pkg left unmodified for that and all
// subsequent fields. Callers must discard pkg after a conflict.
func Merge(pkg *purldb.Package, obs *purldb.Observation, replace bool) ([]FieldChange, error) {
	// Checksums are verified up front so a conflict can't leave a
	// half-applied diff behind.
	for _, r := range mergeTable {
		if r.strategy != Checksum {
			continue
		}
		in, cur := r.incoming(obs), r.current(pkg)
		if isEmpty(in) || isEmpty(cur) {
			continue
		}
		if !eq(cur, in) {
			return nil, &purldb.Error{
				Op:      "reconciler/Merge",
				Kind:    purldb.ErrConflict,
				Message: fmt.Sprintf("checksum mismatch on %s: have %v, observed %v", r.name, cur, in),
			}
		}
	}

	var changes []FieldChange
	for _, r := range mergeTable {
		switch r.strategy {
		case Skip:
			continue
		case Scalar, Checksum, Collection:
			in := r.incoming(obs)
			if isEmpty(in) {
				continue
			}
			cur := r.current(pkg)
			if !isEmpty(cur) && !replace {
				continue
			}
			if r.strategy == Checksum && !isEmpty(cur) {
				// Verified equal above.
				continue
			}
			if eq(cur, in) {
				continue
			}
			r.assign(pkg, obs)
			changes = append(changes, FieldChange{Field: r.name, Old: cur, New: in})
		}
	}
	return changes, nil
}

// Fields returns the names enumerated in the merge table, in order.
func Fields() []string {
	ns := make([]string, len(mergeTable))
	for i, r := range mergeTable {
		ns[i] = r.name
	}
	return ns
}

// StrategyOf reports the strategy assigned to a field name, or Skip and
// false for names not in the table.
func StrategyOf(field string) (Strategy, bool) {
	for _, r := range mergeTable {
		if r.name == field {
			return r.strategy, true
		}
	}
	return Skip, false
}

// UpdatedFields projects a change list to its field names.
func UpdatedFields(changes []FieldChange) []string {
	ns := make([]string, len(changes))
	for i, c := range changes {
		ns[i] = c.Field
	}
	return ns
}

// HistoryData shapes a change list for a history ledger entry.
func HistoryData(changes []FieldChange) map[string]interface{} {
	return map[string]interface{}{
		"updated_fields": UpdatedFields(changes),
	}
}

func isEmpty(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case int:
		return x == 0
	case int64:
		return x == 0
	case purldb.PackageContent:
		return x == 0
	case *time.Time:
		return x == nil
	case []string:
		return len(x) == 0
	case []purldb.Party:
		return len(x) == 0
	case []purldb.DependentPackage:
		return len(x) == 0
	case map[string]interface{}:
		return len(x) == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.Len() == 0
	case reflect.Ptr:
		return rv.IsNil()
	}
	return false
}

// eq compares a current and an incoming value for merge purposes.
//
// Stored rows come back with store-assigned IDs and jsonb numbers decode as
// float64, neither of which an incoming observation carries; both are
// ignored so that re-reconciling identical data compares equal.
func eq(a, b interface{}) bool {
	switch at := a.(type) {
	case *time.Time:
		bt, ok := b.(*time.Time)
		if !ok {
			return false
		}
		switch {
		case at == nil && bt == nil:
			return true
		case at == nil || bt == nil:
			return false
		}
		return at.Equal(*bt)
	case []purldb.Party:
		bt, ok := b.([]purldb.Party)
		if !ok || len(at) != len(bt) {
			return false
		}
		for i := range at {
			if !sameParty(at[i], bt[i]) {
				return false
			}
		}
		return true
	case []purldb.DependentPackage:
		bt, ok := b.([]purldb.DependentPackage)
		if !ok || len(at) != len(bt) {
			return false
		}
		for i := range at {
			if !sameDependency(at[i], bt[i]) {
				return false
			}
		}
		return true
	case map[string]interface{}:
		bt, ok := b.(map[string]interface{})
		if !ok {
			return false
		}
		return jsonEq(at, bt)
	}
	return reflect.DeepEqual(a, b)
}

func sameParty(a, b purldb.Party) bool {
	return a.Role == b.Role &&
		a.Name == b.Name &&
		a.Email == b.Email &&
		a.URL == b.URL
}

func sameDependency(a, b purldb.DependentPackage) bool {
	return a.PURL == b.PURL &&
		a.Requirement == b.Requirement &&
		a.Scope == b.Scope &&
		a.IsRuntime == b.IsRuntime &&
		a.IsOptional == b.IsOptional &&
		a.IsResolved == b.IsResolved
}

// jsonEq compares two free-form mappings by their canonical JSON encoding,
// collapsing the int-versus-float64 numeric distinction.
func jsonEq(a, b map[string]interface{}) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
