// Package domain defines the artifact types stored in a daforfer database.
//
// A database holds two kinds of named artifacts. Tables are ordered sets of
// typed columns and are described by a row in the table catalog. Values are
// single typed scalars; their catalog row is the artifact itself.
//
// # Core Types
//
// Value is a closed variant over int, float, bool and text. The zero Value is
// null and is allowed in table cells but not as a catalog value.
//
// Table and Column carry cells in column-major order. Table.Validate checks
// the shape before anything is written.
//
// TableEntry and ValueEntry are catalog rows. Snapshot is every artifact of
// one database file, read for export.
//
// # Errors
//
// Every failure the registries report matches one of the sentinel errors in
// errors.go through errors.Is.
package domain
