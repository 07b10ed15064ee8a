package download

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/cavaliergopher/grab/v3"
	log "github.com/sirupsen/logrus"

	"github.com/distantorigin/butter-launcher/internal/progress"
	"github.com/distantorigin/butter-launcher/internal/version"
)

// ErrDownloadFailed wraps every failed transfer
var ErrDownloadFailed = errors.New("download failed")

// DefaultInterval is how often byte progress is sampled
const DefaultInterval = 100 * time.Millisecond

// ProgressCallback is called during download with progress info. percentage
// is -1 while the total size is unknown.
type ProgressCallback func(bytesComplete, totalBytes int64, percentage int)

// Fetcher is the part of Downloader that installers depend on
type Fetcher interface {
	File(ctx context.Context, url, targetPath string, callback ProgressCallback) error
}

// Downloader fetches large files with byte-level progress
type Downloader struct {
	client   *grab.Client
	interval time.Duration
}

// New creates a downloader. A nil httpClient uses grab's default transport.
func New(httpClient *http.Client) *Downloader {
	client := grab.NewClient()
	client.UserAgent = version.UserAgent()
	if httpClient != nil {
		client.HTTPClient = httpClient
	}
	return &Downloader{
		client:   client,
		interval: DefaultInterval,
	}
}

// SetInterval changes the progress sampling interval
func (d *Downloader) SetInterval(interval time.Duration) {
	if interval > 0 {
		d.interval = interval
	}
}

// File downloads url to targetPath, always starting from scratch. The
// callback sees a start update as soon as response headers arrive, sampled
// progress while the body streams, and a final 100 on success. The partial
// file is removed on failure.
func (d *Downloader) File(ctx context.Context, url, targetPath string, callback ProgressCallback) error {
	if callback == nil {
		callback = func(int64, int64, int) {}
	}

	req, err := grab.NewRequest(targetPath, url)
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %w", ErrDownloadFailed, err)
	}
	req.NoResume = true // Always overwrite, never resume
	req = req.WithContext(ctx)

	// size as announced by the response headers, -1 when unknown
	headers := make(chan int64, 1)
	req.BeforeCopy = func(r *grab.Response) error {
		size := int64(-1)
		if r.HTTPResponse != nil {
			size = r.HTTPResponse.ContentLength
		}
		headers <- size
		return nil
	}

	resp := d.client.Do(req)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	started := false
	lastPercentage := progress.Indeterminate
	start := func(size int64) {
		if started {
			return
		}
		started = true
		if size > 0 {
			lastPercentage = 0
		} else {
			size = -1
		}
		callback(0, size, lastPercentage)
	}

loop:
	for {
		select {
		case size := <-headers:
			start(size)
		case <-ticker.C:
			if !started {
				continue
			}
			percentage := progress.Indeterminate
			if resp.Size() > 0 {
				percentage = min(int(resp.Progress()*100), 99)
			}
			if percentage != lastPercentage {
				callback(resp.BytesComplete(), resp.Size(), percentage)
				lastPercentage = percentage
			}
		case <-resp.Done:
			break loop
		}
	}

	err = resp.Err()
	if err == nil && resp.BytesComplete() == 0 {
		err = errors.New("empty response body")
	}
	if err != nil {
		if rmErr := os.Remove(targetPath); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Debugf("failed to remove partial download %s: %v", targetPath, rmErr)
		}
		if grab.IsStatusCodeError(err) {
			return fmt.Errorf("%w: %s: HTTP %v", ErrDownloadFailed, url, err)
		}
		return fmt.Errorf("%w: %s: %w", ErrDownloadFailed, url, err)
	}

	if !started {
		select {
		case size := <-headers:
			start(size)
		default:
			start(resp.Size())
		}
	}
	callback(resp.BytesComplete(), resp.Size(), 100)
	return nil
}

// PatchFileName is the temporary name of the full-build patch for build n
func PatchFileName(buildIndex int) string {
	return fmt.Sprintf("temp_%d.pwr", buildIndex)
}

// SinkCallback reports download progress as events of one phase
func SinkCallback(sink progress.Sink, phase progress.Phase) ProgressCallback {
	sink = progress.OrDiscard(sink)
	return func(bytesComplete, totalBytes int64, percentage int) {
		sink.Emit(progress.Bytes(phase, percentage, totalBytes, bytesComplete))
	}
}

// BandCallback scales download progress into [lo, hi] of a phase. Unknown
// sizes stay indeterminate.
func BandCallback(sink progress.Sink, phase progress.Phase, lo, hi int) ProgressCallback {
	sink = progress.OrDiscard(sink)
	return func(bytesComplete, totalBytes int64, percentage int) {
		scaled := percentage
		if percentage >= 0 {
			scaled = lo + percentage*(hi-lo)/100
		}
		sink.Emit(progress.Bytes(phase, scaled, totalBytes, bytesComplete))
	}
}
