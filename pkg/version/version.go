// Package version holds build-time identity, populated by -ldflags the way
// the teacher's own pkg/version (referenced but not shipped in the pack)
// is wired from its Makefile.
package version

// Version, Commit, and BuildDate are overridden at build time via:
//
//	go build -ldflags "-X github.com/x8labs/cloudcore/pkg/version.Version=..."
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// String renders the full version line printed by `cloudcore --version`.
func String() string {
	return Version + " (" + Commit + ", built " + BuildDate + ")"
}
