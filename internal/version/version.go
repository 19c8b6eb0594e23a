// Package version parses and compares release version tags.
package version

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Build-time version information injected by ldflags.
var (
	// AppVersion is the version of the config tool itself (e.g., "1.4.0")
	AppVersion = "dev"
	// Commit is the git commit hash
	Commit = "unknown"
	// BuildDate is the build timestamp
	BuildDate = "unknown"
)

// Parse errors. A tag that fails to parse is never treated as 0.0.0.
var (
	// ErrEmpty is returned for empty or whitespace-only input
	ErrEmpty = errors.New("version: empty input")
	// ErrMalformed is returned when a numeric component is missing or non-numeric
	ErrMalformed = errors.New("version: malformed version string")
)

// Version is an ordered release version: numeric triple plus an optional
// pre-release tag. Build metadata after "+" is kept for display but does
// not participate in ordering.
type Version struct {
	v *semver.Version
}

// Parse parses strings of the form "vMAJOR.MINOR.PATCH[-PRE][+META]".
// A non-numeric tag prefix before the first digit (such as "release-")
// is tolerated and stripped.
func Parse(text string) (Version, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Version{}, ErrEmpty
	}

	// Strip any leading tag prefix up to the first digit.
	start := strings.IndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' })
	if start < 0 {
		return Version{}, fmt.Errorf("%w: %q", ErrMalformed, text)
	}
	s = s[start:]

	v, err := semver.StrictNewVersion(s)
	if err != nil {
		return Version{}, fmt.Errorf("%w: %q: %v", ErrMalformed, text, err)
	}
	return Version{v: v}, nil
}

// MustParse is a test and initialization helper that panics on bad input.
func MustParse(text string) Version {
	v, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return v
}

// Major returns the major component.
func (v Version) Major() uint64 { return v.v.Major() }

// Minor returns the minor component.
func (v Version) Minor() uint64 { return v.v.Minor() }

// Patch returns the patch component.
func (v Version) Patch() uint64 { return v.v.Patch() }

// Prerelease returns the pre-release tag, or "" for a stable version.
func (v Version) Prerelease() string { return v.v.Prerelease() }

// IsPrerelease reports whether the version carries a pre-release tag.
func (v Version) IsPrerelease() bool { return v.v.Prerelease() != "" }

// IsZero reports whether the Version is the zero value (never parsed).
func (v Version) IsZero() bool { return v.v == nil }

// Compare returns -1, 0, or 1 if v is less than, equal to, or greater
// than other. The order is total: numeric comparison on the triple, then
// pre-release precedence where a stable version ranks above any
// pre-release of the same triple. The zero Version orders below every
// parsed version.
func (v Version) Compare(other Version) int {
	switch {
	case v.v == nil && other.v == nil:
		return 0
	case v.v == nil:
		return -1
	case other.v == nil:
		return 1
	}
	return v.v.Compare(other.v)
}

// LessThan reports whether v orders strictly before other.
func (v Version) LessThan(other Version) bool { return v.Compare(other) < 0 }

// GreaterThan reports whether v orders strictly after other.
func (v Version) GreaterThan(other Version) bool { return v.Compare(other) > 0 }

// Equal reports whether v and other have identical precedence.
func (v Version) Equal(other Version) bool { return v.Compare(other) == 0 }

// String renders the version without a leading "v".
func (v Version) String() string {
	if v.v == nil {
		return "unknown"
	}
	return v.v.String()
}
