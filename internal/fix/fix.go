// Package fix applies the supplemental hotfix archive some builds ship with.
package fix

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/distantorigin/butter-launcher/internal/archive"
	"github.com/distantorigin/butter-launcher/internal/download"
	"github.com/distantorigin/butter-launcher/internal/progress"
	"github.com/distantorigin/butter-launcher/internal/version"
)

// ErrFixFailed wraps every failure while applying a fix
var ErrFixFailed = errors.New("failed to apply fix")

// ArchiveName is where the fix is downloaded inside the install directory
const ArchiveName = "fix.zip"

// Download progress fills [0, downloadBand]; extraction fills the rest
const downloadBand = 80

// Applier downloads and unpacks fix archives
type Applier struct {
	fetcher download.Fetcher
}

// NewApplier creates a fix applier
func NewApplier(fetcher download.Fetcher) *Applier {
	return &Applier{fetcher: fetcher}
}

// Apply installs the fix declared by v into dir. Builds without a fix
// succeed immediately without emitting anything.
func (a *Applier) Apply(ctx context.Context, dir string, v version.GameVersion, sink progress.Sink) error {
	if !v.HasFix() {
		return nil
	}
	sink = progress.OrDiscard(sink)

	fixPath := filepath.Join(dir, ArchiveName)
	defer func() {
		if err := os.Remove(fixPath); err != nil && !os.IsNotExist(err) {
			log.Debugf("failed to remove %s: %v", fixPath, err)
		}
	}()

	cb := download.BandCallback(sink, progress.PhaseFixDownload, 0, downloadBand)
	if err := a.fetcher.File(ctx, v.FixURL, fixPath, cb); err != nil {
		return fmt.Errorf("%w: %w", ErrFixFailed, err)
	}

	if err := download.VerifySHA256(fixPath, v.FixHash); err != nil {
		return fmt.Errorf("%w: %w", ErrFixFailed, err)
	}

	n, err := archive.ExtractZip(fixPath, dir, archive.Options{
		Progress: func(current, total int, _ string) {
			sink.Emit(progress.Bytes(progress.PhaseFixExtract, ExtractPercent(current, total), int64(total), int64(current)))
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFixFailed, err)
	}
	if n == 0 {
		sink.Emit(progress.Update(progress.PhaseFixExtract, 100))
	}

	log.Infof("applied fix for %s (%d entries)", v, n)
	return nil
}

// ExtractPercent maps entry i of n onto [80, 100]
func ExtractPercent(i, n int) int {
	if n <= 0 {
		return 100
	}
	return int(math.Round(downloadBand + float64(i)/float64(n)*(100-downloadBand)))
}
