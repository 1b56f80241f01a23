package purldb

import (
	"database/sql/driver"
	"fmt"
)

// PackageContent classifies what a package artifact physically is.
//
// The integer codes are persisted and must not be renumbered: consumers read
// historical rows by code.
type PackageContent int

// Defined content kinds, ordered by proximity to the upstream source of
// truth. A lower code outranks a higher one when descriptive fields are
// backfilled across a package set.
const (
	ContentCuration      PackageContent = 1
	ContentPatch         PackageContent = 2
	ContentSourceRepo    PackageContent = 3
	ContentSourceArchive PackageContent = 4
	ContentBinary        PackageContent = 5
	ContentTest          PackageContent = 6
	ContentDoc           PackageContent = 7
)

var contentName = map[PackageContent]string{
	ContentCuration:      "curation",
	ContentPatch:         "patch",
	ContentSourceRepo:    "source_repo",
	ContentSourceArchive: "source_archive",
	ContentBinary:        "binary",
	ContentTest:          "test",
	ContentDoc:           "doc",
}

// String implements fmt.Stringer.
func (c PackageContent) String() string {
	if n, ok := contentName[c]; ok {
		return n
	}
	return fmt.Sprintf("PackageContent(%d)", int(c))
}

// Known reports whether the value is one of the defined content kinds.
func (c PackageContent) Known() bool {
	_, ok := contentName[c]
	return ok
}

// Rank reports the content kind's position in the source-of-truth ordering.
// Lower is closer to the upstream source.
func (c PackageContent) Rank() int {
	return int(c)
}

func (c PackageContent) MarshalText() ([]byte, error) {
	n, ok := contentName[c]
	if !ok {
		return nil, fmt.Errorf("unknown package content %d", int(c))
	}
	return []byte(n), nil
}

func (c *PackageContent) UnmarshalText(b []byte) error {
	s := string(b)
	for k, n := range contentName {
		if n == s {
			*c = k
			return nil
		}
	}
	return fmt.Errorf("unknown package content %q", s)
}

// Value implements [driver.Valuer]. The integer code is what's stored; the
// zero value stores as NULL.
func (c PackageContent) Value() (driver.Value, error) {
	if c == 0 {
		return nil, nil
	}
	return int64(c), nil
}

// Scan implements [sql.Scanner].
func (c *PackageContent) Scan(i interface{}) error {
	switch v := i.(type) {
	case []byte:
		return c.UnmarshalText(v)
	case string:
		return c.UnmarshalText([]byte(v))
	case int64:
		*c = PackageContent(v)
	case nil:
		*c = 0
	default:
		return fmt.Errorf("unable to scan PackageContent from type %T", i)
	}
	return nil
}
