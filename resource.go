package purldb

// Resource is a file or directory entry inside a package archive, populated
// by the downstream scan pipeline. Resources are looked up by (package,
// path); re-scans overwrite scan fields in place with no merge policy, since
// resources are not re-derived from multiple trust levels.
type Resource struct {
	ID        int64  `json:"-"`
	PackageID int64  `json:"-"`
	Path      string `json:"path"`
	IsFile    bool   `json:"is_file"`
	Size      int64  `json:"size,omitempty"`

	MD5    string `json:"md5,omitempty"`
	SHA1   string `json:"sha1,omitempty"`
	SHA256 string `json:"sha256,omitempty"`

	// Scan-derived fields.
	DetectedLicenseExpression string `json:"detected_license_expression,omitempty"`
	Copyright                 string `json:"copyright,omitempty"`

	ExtraData map[string]interface{} `json:"extra_data,omitempty"`
}
