// Package version carries build metadata injected at link time.
package version

// Set via -ldflags at release build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns the version, commit and build date.
func Info() (version, commit, date string) {
	return Version, GitCommit, BuildDate
}
