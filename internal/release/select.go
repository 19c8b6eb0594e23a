package release

import (
	log "github.com/sirupsen/logrus"

	"github.com/opentcu/configtool/internal/version"
)

// SelectTarget returns the release with the highest version strictly
// greater than current, or nil when the installation is up to date.
// Draft releases are never eligible; pre-releases only when
// allowPrerelease is set. Tags that do not parse as versions are skipped.
func SelectTarget(releases []Release, current version.Version, allowPrerelease bool) *Release {
	var (
		best    *Release
		bestVer version.Version
	)

	for i := range releases {
		r := &releases[i]
		if r.Draft {
			continue
		}

		v, err := version.Parse(r.TagName)
		if err != nil {
			log.WithField("tag", r.TagName).Warn("skipping release with unparsable tag")
			continue
		}

		if (r.Prerelease || v.IsPrerelease()) && !allowPrerelease {
			continue
		}
		if !v.GreaterThan(current) {
			continue
		}
		if best == nil || v.GreaterThan(bestVer) {
			best = r
			bestVer = v
		}
	}

	return best
}

// TargetVersion parses a release's tag; the tag is assumed to have been
// validated by SelectTarget.
func TargetVersion(r *Release) (version.Version, error) {
	return version.Parse(r.TagName)
}
