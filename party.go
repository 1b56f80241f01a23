package purldb

// Party is a person or organization related to a package, such as an author
// or maintainer. Parties are exclusively owned by their package and are
// deleted with it.
type Party struct {
	ID        int64  `json:"-"`
	PackageID int64  `json:"-"`
	Role      string `json:"role,omitempty"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	URL       string `json:"url,omitempty"`
}
