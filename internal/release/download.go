package release

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

const downloadBufSize = 32 * 1024

// Download streams an asset into dst, reporting progress after every
// chunk. Cancellation is cooperative through ctx; a cancelled download
// restarts from zero on the next attempt, partial output is the caller's
// to discard. A transfer that stalls (no bytes for the configured stall
// timeout) fails with ErrNetwork.
func (c *Client) Download(ctx context.Context, asset Asset, dst io.Writer, progress ProgressFunc) error {
	// Stall watchdog: the body read itself cannot carry a deadline, so
	// the request runs on a child context that a helper cancels when no
	// bytes arrive in time.
	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()

	req, err := http.NewRequestWithContext(readCtx, http.MethodGet, asset.DownloadURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/octet-stream")
	req.Header.Set("User-Agent", defaultUserAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: download status %d", ErrNetwork, resp.StatusCode)
	}

	total := resp.ContentLength
	if total <= 0 {
		// The remote may omit content-length; fall back to the listed size
		total = asset.Size
	}

	var lastRead atomic.Int64
	var stalled atomic.Bool
	lastRead.Store(time.Now().UnixNano())

	watchdogDone := make(chan struct{})
	go func() {
		defer close(watchdogDone)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-readCtx.Done():
				return
			case <-ticker.C:
				idle := time.Since(time.Unix(0, lastRead.Load()))
				if idle > c.stallTimeout {
					stalled.Store(true)
					cancelRead()
					return
				}
			}
		}
	}()

	body := resp.Body
	buf := make([]byte, downloadBufSize)
	var received int64

	for {
		select {
		case <-readCtx.Done():
			if stalled.Load() {
				return fmt.Errorf("%w: download stalled for %s", ErrNetwork, c.stallTimeout)
			}
			return ctx.Err()
		default:
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			lastRead.Store(time.Now().UnixNano())
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return fmt.Errorf("%w: writing download: %v", ErrNetwork, werr)
			}
			received += int64(n)
			if progress != nil {
				progress(Progress{BytesReceived: received, BytesTotal: total})
			}
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if stalled.Load() {
				return fmt.Errorf("%w: download stalled for %s", ErrNetwork, c.stallTimeout)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", ErrNetwork, readErr)
		}
	}

	if total > 0 && received != total {
		return fmt.Errorf("%w: short download, got %d of %d bytes", ErrNetwork, received, total)
	}

	log.WithFields(log.Fields{
		"asset": asset.Name,
		"bytes": received,
	}).Debug("download complete")
	return nil
}
