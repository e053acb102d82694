// Package version exposes the build identity stamped in at link time.
package version

// Defaults describe a from-source dev build; releases override these with
// -ldflags -X.
var (
	Version = "0.0.0-dev"
	Commit  = "none"
	Date    = "unknown"
)
