// Package state persists the live exchange envelope between command runs.
//
// Slot is a keyed, last-writer-wins value store backed by SQLite. It
// satisfies rxbridge.Slot so an export in one process can be returned by a
// later one.
package state
