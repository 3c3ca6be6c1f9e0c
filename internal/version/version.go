// Package version holds the one-line banner printed by --version and by
// the daemon's --help text.
package version

// Read returns the version banner. It has no build-time injection point
// (no VCS stamping, no ldflags hook) because none of the example binaries
// this module is styled after use one; a static banner is kept instead of
// inventing a build pipeline for it.
func Read() string {
	return "rsync-sub003 (a Go rsync core)"
}
