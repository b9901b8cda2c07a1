// Package log provides syncq's structured logging facade.
//
// # Overview
//
// Components depend on the small Logger interface and attach structured
// context with Field values. Internally entries flow through a slog.Handler
// bridge into a Formatter (text or JSON) and one or more Outputs (console,
// rotating file, null).
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("engine"))
//	l.Info("run finished", log.Str("outcome", "drained"))
//
// # Configuration
//
// ApplyConfig builds a logger from a declarative Config: level, format, an
// optional rotating file, key redaction and per-message sampling.
//
// # Interop
//
// RedirectStdLog sends the standard library logger (used by Pebble) through a
// Logger; ToStdLogger returns a *log.Logger for APIs such as http.Server.
package log
