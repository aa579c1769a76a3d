// Package monitoring provides the shared diagnostic logger for the CAM core.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced via SetLogger. Tests and batch tools can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// Debug gates high-frequency telemetry (per-batch simulator progress).
// Off by default; cmd mains flip it from a flag.
var Debug bool

// Debugf logs only when Debug is enabled.
func Debugf(format string, v ...interface{}) {
	if Debug {
		Logf(format, v...)
	}
}

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
