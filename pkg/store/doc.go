// Package store owns the canonical Window, Tag, and Output records of a
// compositor session. It is pure in-memory state with no I/O, mutated only
// from the compositor's single event loop, so no locking is needed.
//
// Identifiers are allocated monotonically and never reused within a
// session. Lookups for unknown or destroyed entities return absence via a
// boolean, never an error: querying a window that has unmapped is a normal,
// expected outcome.
//
// Every mutation that affects visible layout triggers the registered
// Recomputer for the affected outputs before the mutating call returns, so
// an observer querying immediately afterwards sees consistent geometry.
package store
