package config

import "fmt"

// Build metadata, overridden via -ldflags at release time.
var (
	Version   = "dev"
	Build     = "unknown"
	GitCommit = "unknown"
)

// GetVersion returns the release version string.
func GetVersion() string {
	return Version
}

// GetBuild returns the build timestamp.
func GetBuild() string {
	return Build
}

// GetGitCommit returns the git commit hash the binary was built from.
func GetGitCommit() string {
	return GitCommit
}

// VersionString returns the version with build metadata, for banners and
// the -version flag.
func VersionString() string {
	return fmt.Sprintf("vire-balance %s (build %s, commit %s)", Version, Build, GitCommit)
}
