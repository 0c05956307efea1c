// Package session is a file-backed editor host for rxbridge.
//
// A session is a TOML project document listing tracks, clips, and an optional
// time selection. Clips reference WAV or AIFF media on disk. Session
// implements rxbridge.Host with identity lookups, clip splitting, snapshot
// based undo, and in-memory sample readers, so exports and returns can run
// from the command line and in tests without a live editor.
package session
