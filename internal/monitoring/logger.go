// Package monitoring holds the diagnostic logger shared by the evaluation
// packages. Library code logs through Logf and Warnf only; callers redirect
// or mute output with SetLogger.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Warnf logs a recoverable condition (missing column, degenerate curve)
// with a "[warn] " prefix through Logf.
func Warnf(format string, v ...interface{}) {
	Logf("[warn] "+format, v...)
}
