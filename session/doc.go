// Package session owns the session lifecycle: create, join, list, extend,
// close, and expiration.
//
// Expiration is lazy. Every session-scoped operation first checks the
// expiration timestamp against the current clock and performs the
// ACTIVE to EXPIRED transition at that point, so correctness never depends
// on a background timer. A Sweep method exists for eager storage reclaim.
//
// Persistence is pluggable through the Store interface, with in-memory,
// sqlite, and postgres backends.
package session
