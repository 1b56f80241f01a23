package purldb

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestPackagePURL(t *testing.T) {
	tt := []struct {
		name string
		pkg  Package
		want string
	}{
		{
			name: "Simple",
			pkg:  Package{Type: "pypi", Name: "foo", Version: "1.0.0"},
			want: "pkg:pypi/foo@1.0.0",
		},
		{
			name: "Namespaced",
			pkg:  Package{Type: "maven", Namespace: "org.apache.commons", Name: "commons-lang3", Version: "3.14.0"},
			want: "pkg:maven/org.apache.commons/commons-lang3@3.14.0",
		},
		{
			name: "Qualified",
			pkg: Package{
				Type: "deb", Namespace: "debian", Name: "curl", Version: "7.88.1",
				Qualifiers: "arch=amd64",
			},
			want: "pkg:deb/debian/curl@7.88.1?arch=amd64",
		},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.pkg.PURL(); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestPackageSetsWith(t *testing.T) {
	src := &Package{Type: "pypi", Name: "foo", Version: "1.0.0", Content: ContentSourceArchive}
	bin := &Package{Type: "pypi", Name: "foo", Version: "1.0.0", Content: ContentBinary}
	other := &Package{Type: "pypi", Name: "foo", Version: "2.0.0"}
	if !src.SetsWith(bin) {
		t.Error("same nominal identity should group")
	}
	if src.SetsWith(other) {
		t.Error("different version should not group")
	}
}

func TestNormalizeQualifiers(t *testing.T) {
	got := NormalizeQualifiers(map[string]string{
		"Arch":     "amd64",
		"os":       "linux",
		"checksum": "",
	})
	const want = "arch=amd64&os=linux"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if NormalizeQualifiers(nil) != "" {
		t.Error("empty mapping should encode as empty string")
	}
}

func TestCanonicalQualifiers(t *testing.T) {
	got, err := CanonicalQualifiers("os=linux&arch=amd64")
	if err != nil {
		t.Fatal(err)
	}
	const want = "arch=amd64&os=linux"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if _, err := CanonicalQualifiers("noequals"); err == nil {
		t.Error("expected error for malformed qualifiers")
	}
}

func TestObservationNormalize(t *testing.T) {
	o := &Observation{
		Type:         "PyPI",
		Namespace:    "",
		Name:         "Django",
		QualifierMap: map[string]string{"OS": "linux"},
	}
	if err := o.Normalize(); err != nil {
		t.Fatal(err)
	}
	if o.Type != "pypi" || o.Name != "django" {
		t.Errorf("identity not lowercased: %q %q", o.Type, o.Name)
	}
	if o.Qualifiers != "os=linux" {
		t.Errorf("qualifiers not canonicalized: %q", o.Qualifiers)
	}

	bad := &Observation{Type: "pypi", Name: "x", Qualifiers: "a=%zz"}
	err := bad.Normalize()
	if !errors.Is(err, ErrPrecondition) {
		t.Errorf("got err %v, want precondition", err)
	}
}

// TestObservationWireFormat pins the snake_case request-body encoding used
// by the HTTP surface.
func TestObservationWireFormat(t *testing.T) {
	const body = `{
		"type": "pypi",
		"name": "requests",
		"version": "2.31.0",
		"download_url": "https://example.com/requests-2.31.0.tar.gz",
		"primary_language": "Python",
		"mining_level": 30,
		"sha256": "deadbeef",
		"parties": [{"role": "author", "name": "Kenneth Reitz"}]
	}`
	var o Observation
	if err := json.Unmarshal([]byte(body), &o); err != nil {
		t.Fatal(err)
	}
	if o.DownloadURL != "https://example.com/requests-2.31.0.tar.gz" {
		t.Errorf("download_url not decoded: %q", o.DownloadURL)
	}
	if o.PrimaryLanguage != "Python" || o.MiningLevel != 30 || o.SHA256 != "deadbeef" {
		t.Error("snake_case fields not decoded")
	}
	if len(o.Parties) != 1 || o.Parties[0].Name != "Kenneth Reitz" {
		t.Errorf("parties not decoded: %v", o.Parties)
	}

	b, err := json.Marshal(Observation{Type: "pypi", Name: "requests", DownloadURL: "u"})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"pypi","name":"requests","download_url":"u"}`
	if string(b) != want {
		t.Errorf("got %s, want %s", b, want)
	}
}

// TestQualifierPathsAgree feeds the same logical qualifiers through the
// mapping path and the encoded-string path. Both must produce one composite
// identity, or one path can create a duplicate package the other would have
// merged.
func TestQualifierPathsAgree(t *testing.T) {
	fromMap := &Observation{Type: "deb", Name: "curl", QualifierMap: map[string]string{"OS": "Linux", "Arch": "AMD64"}}
	fromString := &Observation{Type: "deb", Name: "curl", Qualifiers: "OS=Linux&Arch=AMD64"}
	if err := fromMap.Normalize(); err != nil {
		t.Fatal(err)
	}
	if err := fromString.Normalize(); err != nil {
		t.Fatal(err)
	}
	const want = "arch=amd64&os=linux"
	if fromMap.Qualifiers != want {
		t.Errorf("mapping path: got %q, want %q", fromMap.Qualifiers, want)
	}
	if fromString.Qualifiers != want {
		t.Errorf("string path: got %q, want %q", fromString.Qualifiers, want)
	}
}

func TestObservationValidate(t *testing.T) {
	tt := []struct {
		name string
		obs  Observation
		ok   bool
	}{
		{name: "OK", obs: Observation{Type: "pypi", Name: "foo"}, ok: true},
		{name: "MissingType", obs: Observation{Name: "foo"}},
		{name: "MissingName", obs: Observation{Type: "pypi"}},
		{name: "NegativeLevel", obs: Observation{Type: "pypi", Name: "foo", MiningLevel: -1}},
		{name: "BadContent", obs: Observation{Type: "pypi", Name: "foo", Content: PackageContent(42)}},
		{name: "AnonymousParty", obs: Observation{Type: "pypi", Name: "foo", Parties: []Party{{Role: "author"}}}},
		{
			name: "NoDownloadURL",
			// Not a contract violation; rejection happens during reconcile.
			obs: Observation{Type: "pypi", Name: "foo"},
			ok:  true,
		},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.obs.Validate()
			if tc.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrPrecondition) {
				t.Errorf("got err %v, want precondition", err)
			}
		})
	}
}

func TestPackageContent(t *testing.T) {
	t.Run("Rank", func(t *testing.T) {
		if ContentSourceRepo.Rank() >= ContentBinary.Rank() {
			t.Error("source repo should outrank binary")
		}
	})
	t.Run("Text", func(t *testing.T) {
		b, err := ContentSourceArchive.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var c PackageContent
		if err := c.UnmarshalText(b); err != nil {
			t.Fatal(err)
		}
		if c != ContentSourceArchive {
			t.Errorf("round trip: got %v", c)
		}
	})
	t.Run("Unknown", func(t *testing.T) {
		if PackageContent(42).Known() {
			t.Error("42 should not be known")
		}
		if _, err := PackageContent(42).MarshalText(); err == nil {
			t.Error("expected error marshaling unknown content")
		}
	})
	t.Run("Value", func(t *testing.T) {
		v, err := PackageContent(0).Value()
		if err != nil {
			t.Fatal(err)
		}
		if v != nil {
			t.Errorf("zero value should store as NULL, got %v", v)
		}
		v, err = ContentBinary.Value()
		if err != nil {
			t.Fatal(err)
		}
		if v != int64(5) {
			t.Errorf("got %v, want 5", v)
		}
	})
}

func TestHistory(t *testing.T) {
	var h History
	h.Append("Created package from test.", nil)
	h.Append("Package field values updated based on test.", map[string]interface{}{
		"updated_fields": []string{"description"},
	})
	if h.Len() != 2 {
		t.Fatalf("got %d entries", h.Len())
	}
	es := h.Entries()
	if es[0].Message != "Created package from test." {
		t.Errorf("unexpected first entry: %q", es[0].Message)
	}
	if _, err := time.Parse(HistoryTimestampFormat, es[0].Timestamp); err != nil {
		t.Errorf("bad timestamp %q: %v", es[0].Timestamp, err)
	}

	b, err := json.Marshal(h)
	if err != nil {
		t.Fatal(err)
	}
	var got History
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if got.Len() != h.Len() {
		t.Fatalf("round trip lost entries: %d != %d", got.Len(), h.Len())
	}
	for i, e := range got.Entries() {
		if e.Message != es[i].Message || e.Timestamp != es[i].Timestamp {
			t.Error(cmp.Diff(e, es[i]))
		}
	}

	var empty History
	b, err = json.Marshal(empty)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `[]` {
		t.Errorf("empty ledger should serialize as []: %s", b)
	}
}

func TestDependentPackagePinned(t *testing.T) {
	tt := []struct {
		req  string
		want bool
	}{
		{"", false},
		{"1.2.3", true},
		{"=1.2.3", true},
		{"v1.2.3", true},
		{">=1.2.3", false},
		{"^1.2.0", false},
		{"~1.2", false},
		{"not a version", false},
	}
	for _, tc := range tt {
		d := DependentPackage{Requirement: tc.req}
		if got := d.Pinned(); got != tc.want {
			t.Errorf("Pinned(%q) = %v, want %v", tc.req, got, tc.want)
		}
	}
}

func TestErrorFormatting(t *testing.T) {
	e := &Error{Op: "test", Kind: ErrConflict, Message: "boom"}
	if got := e.Error(); got != "test [conflict]: boom" {
		t.Errorf("got %q", got)
	}
	if !errors.Is(e, ErrConflict) {
		t.Error("kind comparison failed")
	}
	wrapped := &Error{Kind: ErrTransient, Inner: e}
	if !errors.Is(wrapped, ErrConflict) {
		t.Error("wrapped kind comparison failed")
	}
	p := &Error{Op: "test", Kind: ErrPermanent, Message: "no"}
	if got := p.Error(); got != "test [permanent]: no" {
		t.Errorf("got %q", got)
	}
}
