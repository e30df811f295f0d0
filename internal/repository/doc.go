// Package repository defines the data access interface for daforfer.
//
// A repository stores two kinds of artifacts in one database file:
//
//   - tables, listed in the table catalog (toc) and each backed by a physical
//     table of the same name
//   - scalar values, stored directly as rows of the value catalog (tov)
//
// # Consistency
//
// A toc row exists if and only if its physical table exists. Every operation
// that touches both runs inside a single transaction, so a failure or crash
// leaves either the old state or the new state, never a mix.
//
// # SQLite Implementation
//
// The sqlite subpackage implements Repository on modernc.org/sqlite. The
// handle holds an exclusive file lock until Close, which makes a second
// writer fail with domain.ErrStorageUnavailable instead of interleaving.
package repository
