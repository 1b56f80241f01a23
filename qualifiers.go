package purldb

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/package-url/packageurl-go"
)

// NormalizeQualifiers returns the canonical encoded form of a set of PURL
// qualifiers: keys and values lowercased, keys sorted, values
// percent-encoded, pairs joined with "&".
//
// Observations may carry qualifiers either as an already-encoded string or as
// a raw mapping; both must pass through here before any identity comparison
// or merge, and both must yield the same string for the same logical input.
// Comparing un-normalized qualifier strings is a known historical bug class.
func NormalizeQualifiers(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	qs := make(packageurl.Qualifiers, 0, len(m))
	for k, v := range m {
		if v == "" {
			continue
		}
		qs = append(qs, packageurl.Qualifier{Key: strings.ToLower(k), Value: strings.ToLower(v)})
	}
	sort.Slice(qs, func(i, j int) bool { return qs[i].Key < qs[j].Key })
	return qs.String()
}

// ParseQualifiers decodes an encoded qualifier string into a mapping.
func ParseQualifiers(s string) (map[string]string, error) {
	m := map[string]string{}
	if s == "" {
		return m, nil
	}
	for _, pair := range strings.Split(s, "&") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("malformed qualifier %q", pair)
		}
		dv, err := url.QueryUnescape(v)
		if err != nil {
			return nil, fmt.Errorf("malformed qualifier value %q: %w", v, err)
		}
		m[strings.ToLower(k)] = dv
	}
	return m, nil
}

// CanonicalQualifiers re-encodes an arbitrary qualifier string into canonical
// form. It's the identity function on already-canonical input.
func CanonicalQualifiers(s string) (string, error) {
	m, err := ParseQualifiers(s)
	if err != nil {
		return "", err
	}
	return NormalizeQualifiers(m), nil
}
