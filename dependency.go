package purldb

import "github.com/Masterminds/semver"

// DependentPackage is one declared dependency of a package. Like [Party]
// rows, these are exclusively owned and deleted with their package.
type DependentPackage struct {
	ID        int64 `json:"-"`
	PackageID int64 `json:"-"`
	// PURL identifies the depended-on package, without a version when the
	// requirement is a range.
	PURL string `json:"purl"`
	// Requirement is the version constraint as declared upstream.
	Requirement string `json:"extracted_requirement,omitempty"`
	// Scope is the dependency group, e.g. "install", "test".
	Scope      string `json:"scope,omitempty"`
	IsRuntime  bool   `json:"is_runtime"`
	IsOptional bool   `json:"is_optional"`
	// IsResolved reports whether Requirement pins one concrete version.
	IsResolved bool `json:"is_resolved"`
}

// Pinned reports whether the requirement string pins exactly one version.
//
// A requirement that parses as a plain semantic version is a pin; range
// operators make it unresolved. Requirements that don't parse at all are
// treated as unresolved.
func (d *DependentPackage) Pinned() bool {
	if d.Requirement == "" {
		return false
	}
	if _, err := semver.NewVersion(d.Requirement); err == nil {
		return true
	}
	// An exact-match constraint like "=1.2.3" is still a pin.
	c, err := semver.NewConstraint(d.Requirement)
	if err != nil {
		return false
	}
	v, err := semver.NewVersion(trimEqual(d.Requirement))
	if err != nil {
		return false
	}
	return c.Check(v)
}

func trimEqual(s string) string {
	for len(s) > 0 && (s[0] == '=' || s[0] == 'v' || s[0] == ' ') {
		s = s[1:]
	}
	return s
}
