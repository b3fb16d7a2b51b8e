// Package monitoring holds the diagnostic logger shared by the filter and
// the command-line tool.
package monitoring

// Logf is the package-level diagnostic logger. It is a no-op by default so
// library users stay quiet; the CLI installs log.Printf behind -v. Set it
// before starting any filter pass.
var Logf func(format string, v ...any) = func(string, ...any) {}

// SetLogger replaces the package logger. Passing nil restores the no-op logger.
func SetLogger(f func(format string, v ...any)) {
	if f == nil {
		Logf = func(string, ...any) {}
		return
	}
	Logf = f
}
