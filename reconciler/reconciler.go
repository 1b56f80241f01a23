// Package reconciler implements the merge and identity policy for package
// record reconciliation.
//
// The policy here is pure: it decides what should change given an existing
// package and an incoming observation, and reports the diff. Applying the
// diff transactionally is the store's job, see
// [github.com/purldb/purldb/datastore].
package reconciler

// ReplaceFor reports whether incoming data should win over existing data,
// given the two mining levels.
//
// An observation mined at a level below the package's recorded level only
// fills gaps; at the same level or deeper, it replaces.
func ReplaceFor(existingLevel, incomingLevel int) bool {
	return incomingLevel >= existingLevel
}
