// Package version reports the build version of cowtracker.
package version

import (
	"fmt"
	"runtime"

	"github.com/Masterminds/semver/v3"
)

// Set at build time via -ldflags "-X github.com/rshade/cowtracker/pkg/version.version=...".
//
//nolint:gochecknoglobals // ldflags targets
var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// GetVersion returns the build version.
func GetVersion() string {
	return version
}

// GetGitCommit returns the commit the binary was built from.
func GetGitCommit() string {
	return gitCommit
}

// GetBuildDate returns when the binary was built.
func GetBuildDate() string {
	return buildDate
}

// IsDevelopment reports whether this is a pre-release or unparseable build.
func IsDevelopment() bool {
	v, err := semver.NewVersion(version)
	return err != nil || v.Prerelease() != ""
}

// Satisfies reports whether the build version meets constraint, e.g. ">= 0.1.0".
func Satisfies(constraint string) (bool, error) {
	return check(version, constraint)
}

func check(ver, constraint string) (bool, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("invalid version constraint %q: %w", constraint, err)
	}
	v, err := semver.NewVersion(ver)
	if err != nil {
		return false, fmt.Errorf("invalid version %q: %w", ver, err)
	}
	return c.Check(v), nil
}

// String returns a one-line description of the build.
func String() string {
	return fmt.Sprintf("cowtracker %s (commit %s, built %s, %s/%s)",
		version, gitCommit, buildDate, runtime.GOOS, runtime.GOARCH)
}
