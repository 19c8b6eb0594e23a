// Package release talks to the remote release-hosting API: listing
// published releases, picking an upgrade target, and streaming asset
// downloads. It performs network I/O only and never touches the
// filesystem.
package release

import (
	"time"
)

// Release describes one published release of the firmware bundle.
type Release struct {
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	Draft       bool      `json:"draft"`
	Prerelease  bool      `json:"prerelease"`
	PublishedAt time.Time `json:"published_at"`
	Assets      []Asset   `json:"assets"`
}

// Asset is a single downloadable file belonging to a release. The
// download URL is only valid for the auth context that fetched it.
type Asset struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	DownloadURL string `json:"browser_download_url"`
}

// Progress is a download progress snapshot. BytesTotal is zero when the
// remote did not supply a content length.
type Progress struct {
	BytesReceived int64
	BytesTotal    int64
}

// ProgressFunc receives download progress updates. Byte counts are
// monotonically non-decreasing within one download.
type ProgressFunc func(Progress)
