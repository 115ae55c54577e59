// Package storage persists reminder rows.
//
// The Store contract is keyed by (owner, name) with optimistic
// concurrency: every successful write produces a fresh version token and
// writes carrying a stale token fail with ErrVersionConflict. Range reads
// address the 64-bit owner-hash ring with exclusive-begin/inclusive-end
// semantics and wraparound.
//
// Drivers:
//   - "sqlite": durable single-file database (modernc.org/sqlite)
//   - "memory": process-local map, for tests and ephemeral runs
package storage
