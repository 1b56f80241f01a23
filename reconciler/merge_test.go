package reconciler

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/purldb/purldb"
)

func TestMergeFillsEmptyFields(t *testing.T) {
	pkg := &purldb.Package{
		Type:        "pypi",
		Name:        "requests",
		Version:     "2.31.0",
		DownloadURL: "https://example.com/requests-2.31.0.tar.gz",
	}
	obs := &purldb.Observation{
		Type:            "pypi",
		Name:            "requests",
		Version:         "2.31.0",
		DownloadURL:     "https://example.com/requests-2.31.0.tar.gz",
		Description:     "Python HTTP for Humans.",
		HomepageURL:     "https://requests.readthedocs.io",
		PrimaryLanguage: "Python",
		SHA256:          "deadbeef",
	}

	changes, err := Merge(pkg, obs, false)
	if err != nil {
		t.Fatal(err)
	}
	got := UpdatedFields(changes)
	want := []string{"primary_language", "description", "homepage_url", "sha256"}
	if !cmp.Equal(got, want) {
		t.Error(cmp.Diff(got, want))
	}
	if pkg.Description != obs.Description {
		t.Errorf("description not adopted: %q", pkg.Description)
	}
	if pkg.SHA256 != obs.SHA256 {
		t.Errorf("sha256 not adopted: %q", pkg.SHA256)
	}
}

func TestMergeIdempotent(t *testing.T) {
	pkg := &purldb.Package{Type: "npm", Name: "lodash", Version: "4.17.21"}
	obs := &purldb.Observation{
		Type:        "npm",
		Name:        "lodash",
		Version:     "4.17.21",
		Description: "A modern JavaScript utility library.",
		Keywords:    []string{"util", "functional"},
		Parties:     []purldb.Party{{Role: "author", Name: "jdalton"}},
	}

	first, err := Merge(pkg, obs, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) == 0 {
		t.Fatal("expected changes on first merge")
	}
	second, err := Merge(pkg, obs, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 0 {
		t.Errorf("second merge reported changes: %v", UpdatedFields(second))
	}
}

// TestMergeIdempotentAgainstStoredRows re-reconciles an observation whose
// data already sits in the store. Stored rows carry store-assigned IDs and
// jsonb numbers decode as float64; neither may register as a change.
func TestMergeIdempotentAgainstStoredRows(t *testing.T) {
	pkg := &purldb.Package{
		Type:    "npm",
		Name:    "lodash",
		Version: "4.17.21",
		Parties: []purldb.Party{
			{ID: 7, PackageID: 3, Role: "author", Name: "jdalton"},
		},
		Dependencies: []purldb.DependentPackage{
			{ID: 11, PackageID: 3, PURL: "pkg:npm/minimist", Requirement: "^1.2.0", Scope: "install", IsRuntime: true},
		},
		ExtraData: map[string]interface{}{"stars": float64(12), "archived": false},
	}
	obs := &purldb.Observation{
		Type:    "npm",
		Name:    "lodash",
		Version: "4.17.21",
		Parties: []purldb.Party{
			{Role: "author", Name: "jdalton"},
		},
		Dependencies: []purldb.DependentPackage{
			{PURL: "pkg:npm/minimist", Requirement: "^1.2.0", Scope: "install", IsRuntime: true},
		},
		ExtraData: map[string]interface{}{"stars": 12, "archived": false},
	}

	changes, err := Merge(pkg, obs, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 0 {
		t.Errorf("re-observation of identical data reported changes: %v", UpdatedFields(changes))
	}
	if pkg.Parties[0].ID != 7 || pkg.Dependencies[0].ID != 11 {
		t.Error("stored rows were replaced by rows without IDs")
	}
}

func TestMergeTrustOrdering(t *testing.T) {
	const (
		existing = "description from the registry API"
		incoming = "description from the package manifest"
	)
	t.Run("Preserve", func(t *testing.T) {
		pkg := &purldb.Package{Description: existing}
		obs := &purldb.Observation{Description: incoming}
		changes, err := Merge(pkg, obs, false)
		if err != nil {
			t.Fatal(err)
		}
		if len(changes) != 0 {
			t.Errorf("unexpected changes: %v", UpdatedFields(changes))
		}
		if pkg.Description != existing {
			t.Errorf("existing value destroyed: %q", pkg.Description)
		}
	})
	t.Run("Replace", func(t *testing.T) {
		pkg := &purldb.Package{Description: existing}
		obs := &purldb.Observation{Description: incoming}
		changes, err := Merge(pkg, obs, true)
		if err != nil {
			t.Fatal(err)
		}
		if got := UpdatedFields(changes); !cmp.Equal(got, []string{"description"}) {
			t.Errorf("got changes %v", got)
		}
		if pkg.Description != incoming {
			t.Errorf("incoming value not adopted: %q", pkg.Description)
		}
	})
}

func TestMergeEmptyNeverDestroys(t *testing.T) {
	when := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	pkg := &purldb.Package{
		Description: "kept",
		Size:        1024,
		ReleaseDate: &when,
		Keywords:    []string{"kept"},
		Parties:     []purldb.Party{{Role: "author", Name: "kept"}},
	}
	obs := &purldb.Observation{}

	changes, err := Merge(pkg, obs, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 0 {
		t.Errorf("empty observation caused changes: %v", UpdatedFields(changes))
	}
	if pkg.Description != "kept" || pkg.Size != 1024 || pkg.ReleaseDate == nil || len(pkg.Parties) != 1 {
		t.Error("empty incoming values destroyed existing data")
	}
}

func TestMergeChecksumConflict(t *testing.T) {
	pkg := &purldb.Package{
		Description: "original",
		SHA256:      "aaaaaaaa",
	}
	obs := &purldb.Observation{
		Description: "updated",
		SHA256:      "bbbbbbbb",
	}

	_, err := Merge(pkg, obs, true)
	if !errors.Is(err, purldb.ErrConflict) {
		t.Fatalf("got err %v, want conflict", err)
	}
	// The conflict is detected before any field is applied.
	if pkg.Description != "original" {
		t.Errorf("conflicting merge modified the package: %q", pkg.Description)
	}
}

func TestMergeChecksumAgreement(t *testing.T) {
	pkg := &purldb.Package{SHA1: "cafe"}
	obs := &purldb.Observation{SHA1: "cafe", MD5: "d41d8cd9"}

	changes, err := Merge(pkg, obs, false)
	if err != nil {
		t.Fatal(err)
	}
	if got := UpdatedFields(changes); !cmp.Equal(got, []string{"md5"}) {
		t.Errorf("got changes %v", got)
	}
}

func TestMergeCollectionsReplacedWholesale(t *testing.T) {
	pkg := &purldb.Package{
		Parties: []purldb.Party{{Role: "author", Name: "old"}},
	}
	obs := &purldb.Observation{
		Parties: []purldb.Party{
			{Role: "author", Name: "new"},
			{Role: "maintainer", Name: "other"},
		},
	}

	if _, err := Merge(pkg, obs, true); err != nil {
		t.Fatal(err)
	}
	if !cmp.Equal(pkg.Parties, obs.Parties) {
		t.Error(cmp.Diff(pkg.Parties, obs.Parties))
	}
}

// TestStrategyTable pins the per-field strategy assignment. A schema column
// added without a merge decision shows up here as a missing name.
func TestStrategyTable(t *testing.T) {
	want := map[string]Strategy{
		"type":                             Skip,
		"namespace":                        Skip,
		"name":                             Skip,
		"version":                          Skip,
		"qualifiers":                       Skip,
		"subpath":                          Skip,
		"download_url":                     Skip,
		"uuid":                             Skip,
		"mining_level":                     Skip,
		"history":                          Skip,
		"index_error":                      Skip,
		"last_indexed_date":                Skip,
		"created_date":                     Skip,
		"last_modified_date":               Skip,
		"declared_license_expression_spdx": Skip,
		"primary_language":                 Scalar,
		"description":                      Scalar,
		"keywords":                         Scalar,
		"homepage_url":                     Scalar,
		"size":                             Scalar,
		"release_date":                     Scalar,
		"md5":                              Checksum,
		"sha1":                             Checksum,
		"sha256":                           Checksum,
		"sha512":                           Checksum,
		"bug_tracking_url":                 Scalar,
		"code_view_url":                    Scalar,
		"vcs_url":                          Scalar,
		"copyright":                        Scalar,
		"holder":                           Scalar,
		"declared_license_expression":      Scalar,
		"other_license_expression":         Scalar,
		"extracted_license_statement":      Scalar,
		"notice_text":                      Scalar,
		"repository_homepage_url":          Scalar,
		"repository_download_url":          Scalar,
		"api_data_url":                     Scalar,
		"package_content":                  Scalar,
		"extra_data":                       Scalar,
		"parties":                          Collection,
		"dependencies":                     Collection,
	}

	got := make(map[string]Strategy, len(want))
	for _, n := range Fields() {
		s, ok := StrategyOf(n)
		if !ok {
			t.Fatalf("field %q in table but not resolvable", n)
		}
		got[n] = s
	}
	if !cmp.Equal(got, want) {
		t.Error(cmp.Diff(got, want))
	}
}

func TestReplaceFor(t *testing.T) {
	tt := []struct {
		existing, incoming int
		want               bool
	}{
		{0, 0, true},
		{0, 30, true},
		{30, 30, true},
		{30, 0, false},
		{100, 30, false},
		{30, 100, true},
	}
	for _, tc := range tt {
		if got := ReplaceFor(tc.existing, tc.incoming); got != tc.want {
			t.Errorf("ReplaceFor(%d, %d) = %v, want %v", tc.existing, tc.incoming, got, tc.want)
		}
	}
}

func TestHistoryData(t *testing.T) {
	changes := []FieldChange{
		{Field: "description", Old: "", New: "a"},
		{Field: "sha256", Old: "", New: "b"},
	}
	got := HistoryData(changes)
	want := map[string]interface{}{
		"updated_fields": []string{"description", "sha256"},
	}
	if !cmp.Equal(got, want) {
		t.Error(cmp.Diff(got, want))
	}
}

func TestParseIdentityMode(t *testing.T) {
	for _, m := range []IdentityMode{PURLThenDownloadURL, DownloadURLOnly} {
		got, err := ParseIdentityMode(m.String())
		if err != nil {
			t.Fatal(err)
		}
		if got != m {
			t.Errorf("round trip: got %v, want %v", got, m)
		}
	}
	if _, err := ParseIdentityMode("bogus"); err == nil {
		t.Error("expected error for unknown mode")
	}
	if got, err := ParseIdentityMode(""); err != nil || got != PURLThenDownloadURL {
		t.Errorf("empty string: got %v, %v", got, err)
	}
}
