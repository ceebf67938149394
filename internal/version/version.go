// Package version provides build metadata for ai-forward.
package version

var (
	// Version is the semantic version (injected at build time via ldflags).
	Version = "dev"
	// Commit is the git commit hash (injected at build time via ldflags).
	Commit = "none"
	// BuildTime is the build timestamp (injected at build time via ldflags).
	BuildTime = "unknown"
)

// String returns formatted version information.
func String() string {
	return Version + " (commit: " + Commit + ", built: " + BuildTime + ")"
}
