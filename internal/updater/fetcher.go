package updater

import (
	"context"
	"io"

	"github.com/opentcu/configtool/internal/release"
)

// Fetcher is the slice of the release client the orchestrator depends
// on, kept as an interface to allow mocking.
type Fetcher interface {
	ListReleases(ctx context.Context) ([]release.Release, error)
	Download(ctx context.Context, asset release.Asset, dst io.Writer, progress release.ProgressFunc) error
}
