package sqlite

import "github.com/decred/slog"

// log is a package level logger that is disabled by default.
var log = slog.Disabled

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger slog.Logger) {
	log = logger
}
