package observability

import (
	"io"
	"log/slog"
)

// DiscardLogger returns a logger that drops everything, for tests and for
// callers that do not wire one in.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
