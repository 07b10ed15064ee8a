// Package onlinepatch swaps the game client for the online-enabled build
// published alongside some catalog entries.
package onlinepatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/distantorigin/butter-launcher/internal/download"
	"github.com/distantorigin/butter-launcher/internal/paths"
	"github.com/distantorigin/butter-launcher/internal/progress"
	"github.com/distantorigin/butter-launcher/internal/version"
)

// Result describes what PatchIfNeeded did
type Result string

const (
	ResultSkipped  Result = "skipped"
	ResultUpToDate Result = "up-to-date"
	ResultPatched  Result = "patched"
)

// ErrClientMissing is returned when there is no client to patch
var ErrClientMissing = errors.New("game client is not installed")

// Patcher downloads and installs online client patches
type Patcher struct {
	fetcher download.Fetcher
	goos    string
}

// NewPatcher creates a patcher
func NewPatcher(fetcher download.Fetcher) *Patcher {
	return &Patcher{fetcher: fetcher, goos: runtime.GOOS}
}

// PatchIfNeeded replaces the client in installDir when its hash differs from
// the declared patch hash. Builds without a patch are skipped.
func (p *Patcher) PatchIfNeeded(ctx context.Context, installDir string, v version.GameVersion, sink progress.Sink) (Result, error) {
	if !v.HasOnlinePatch() {
		return ResultSkipped, nil
	}
	sink = progress.OrDiscard(sink)

	client := paths.ClientPath(installDir)
	current, err := download.FileSHA256(client)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrClientMissing
		}
		return "", fmt.Errorf("failed to hash client: %w", err)
	}
	if strings.EqualFold(current, strings.TrimSpace(v.PatchHash)) {
		log.Debugf("online client for %s is up to date", v)
		return ResultUpToDate, nil
	}

	tmp := client + ".download"
	defer os.Remove(tmp)

	if err := p.fetcher.File(ctx, v.PatchURL, tmp, download.SinkCallback(sink, progress.PhaseOnlinePatch)); err != nil {
		return "", fmt.Errorf("failed to download online patch: %w", err)
	}
	if err := download.VerifySHA256(tmp, v.PatchHash); err != nil {
		return "", fmt.Errorf("failed to verify online patch: %w", err)
	}

	backup := client + ".bak"
	_ = os.Remove(backup)
	if err := os.Rename(client, backup); err != nil {
		return "", fmt.Errorf("failed to back up client: %w", err)
	}
	if err := os.Rename(tmp, client); err != nil {
		if restoreErr := os.Rename(backup, client); restoreErr != nil {
			log.Errorf("failed to restore client from %s: %v", backup, restoreErr)
		}
		return "", fmt.Errorf("failed to install online patch: %w", err)
	}

	if p.goos != "windows" {
		if err := os.Chmod(client, 0755); err != nil {
			log.Debugf("failed to mark %s executable: %v", client, err)
		}
	}

	log.Infof("patched online client for %s", v)
	return ResultPatched, nil
}

// Run is the standalone form used outside an install: a started event is
// sent only once a download actually begins, and exactly one terminal event
// ends the run.
func (p *Patcher) Run(ctx context.Context, gameDir string, v version.GameVersion, sink progress.Sink) (Result, error) {
	sink = progress.OrDiscard(sink)
	lazy := &lazyStart{sink: sink}

	installDir := paths.ResolveExistingInstallDir(gameDir, v)
	result, err := p.PatchIfNeeded(ctx, installDir, v, lazy)
	if err != nil {
		sink.Emit(progress.Failed(err.Error()))
		return result, err
	}
	sink.Emit(progress.Finished(v))
	return result, nil
}

// lazyStart forwards events, prefixing the first one with a started event
type lazyStart struct {
	sink progress.Sink
	once sync.Once
}

func (l *lazyStart) Emit(e progress.Event) {
	l.once.Do(func() { l.sink.Emit(progress.Started()) })
	l.sink.Emit(e)
}
