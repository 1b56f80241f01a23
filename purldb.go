// Package purldb holds the data model for the package record reconciliation
// engine.
//
// Collectors produce [Observation] values describing one package artifact as
// seen from one registry at one point in time. The reconciliation engine
// decides whether an Observation creates a new canonical [Package] record or
// merges into an existing one, recording every mutation in the package's
// append-only [History].
//
// The types in this package are plain data; persistence lives in
// [github.com/purldb/purldb/datastore] and the merge rules in
// [github.com/purldb/purldb/reconciler].
package purldb
