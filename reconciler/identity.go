package reconciler

import "fmt"

// IdentityMode selects how an observation is resolved to an existing
// package.
//
// The download-URL fallback ignores purl fields and can conflate records
// when two purls legitimately share a download URL, so the choice of mode
// is explicit and configurable.
type IdentityMode int

const (
	// PURLThenDownloadURL matches on the full composite key (type,
	// namespace, name, version, qualifiers, subpath, download URL),
	// then falls back to an exact download-URL match. This is the
	// default.
	PURLThenDownloadURL IdentityMode = iota
	// DownloadURLOnly matches on the download URL alone.
	DownloadURLOnly
)

// String implements fmt.Stringer.
func (m IdentityMode) String() string {
	switch m {
	case PURLThenDownloadURL:
		return "purl-then-download-url"
	case DownloadURLOnly:
		return "download-url-only"
	}
	return fmt.Sprintf("IdentityMode(%d)", int(m))
}

// ParseIdentityMode maps a configuration string to an IdentityMode.
func ParseIdentityMode(s string) (IdentityMode, error) {
	switch s {
	case "", "purl-then-download-url":
		return PURLThenDownloadURL, nil
	case "download-url-only":
		return DownloadURLOnly, nil
	}
	return 0, fmt.Errorf("unknown identity mode %q", s)
}
