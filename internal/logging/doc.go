// Package logging assembles the slog loggers used by the rxbridge commands.
//
// It owns the console and JSON handlers and the level parsing, and picks a
// format from the output when none is configured: console for terminals and
// JSON for pipes and files. NewNop serves tests and wiring code that must not
// fail.
package logging
