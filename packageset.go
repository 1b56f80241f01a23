package purldb

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// PackageSet groups packages that are different content-kind variants
// (binary, source archive, source repo) of the same nominal package+version.
//
// A package whose content is [ContentBinary] belongs to at most one set: a
// binary artifact has exactly one source lineage. Non-binary kinds may be
// found in multiple sets in legacy data, but new grouping never produces
// that.
type PackageSet struct {
	ID   int64     `json:"-"`
	UUID uuid.UUID `json:"uuid"`
	// MemberUUIDs is the reverse membership, populated on read.
	MemberUUIDs []uuid.UUID `json:"packages,omitempty"`
}

// RelationKind types a directed edge between two packages.
type RelationKind int

// SourcePackage links a binary package to the source package it was built
// from, independently of any package set membership.
const SourcePackage RelationKind = 1

var relationName = map[RelationKind]string{
	SourcePackage: "source_package",
}

// String implements fmt.Stringer.
func (k RelationKind) String() string {
	if n, ok := relationName[k]; ok {
		return n
	}
	return fmt.Sprintf("RelationKind(%d)", int(k))
}

// Value implements [driver.Valuer].
func (k RelationKind) Value() (driver.Value, error) {
	return int64(k), nil
}

// Scan implements [sql.Scanner].
func (k *RelationKind) Scan(i interface{}) error {
	v, ok := i.(int64)
	if !ok {
		return fmt.Errorf("unable to scan RelationKind from type %T", i)
	}
	*k = RelationKind(v)
	return nil
}

// PackageRelation is a directed, typed edge between two packages.
type PackageRelation struct {
	ID            int64        `json:"-"`
	FromPackageID int64        `json:"-"`
	ToPackageID   int64        `json:"-"`
	Kind          RelationKind `json:"relationship"`
}
