package testutil

import "log/slog"

// DiscardLogger returns a slog.Logger that discards all output. Use it to
// silence components under test; it returns the same type as log.NewNop().
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
