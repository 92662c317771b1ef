// Package help provides shared test fixtures, grounded on the reference
// cache library's tests/help package (cfg.go, logger.go).
package help

import (
	"io"
	"log/slog"
)

// Logger returns a slog.Logger that discards output, for tests that need a
// non-nil logger but don't assert on log content.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
