// Package jre provisions the Java runtime the game server and client need.
package jre

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/distantorigin/butter-launcher/internal/archive"
	"github.com/distantorigin/butter-launcher/internal/download"
	"github.com/distantorigin/butter-launcher/internal/progress"
)

// DefaultURL is an Adoptium binary endpoint taking the OS and architecture
const DefaultURL = "https://api.adoptium.net/v3/binary/latest/25/ga/%s/%s/jre/hotspot/normal/eclipse"

// ErrUnavailable is returned when no runtime could be found or installed
var ErrUnavailable = errors.New("java runtime unavailable")

// Dir is where the runtime lives inside the launcher base directory
func Dir(baseDir string) string {
	return filepath.Join(baseDir, "jre")
}

// Find returns the java executable of an installed runtime
func Find(baseDir string) (string, bool) {
	return find(Dir(baseDir), runtime.GOOS)
}

func find(dir, goos string) (string, bool) {
	name := "java"
	if goos == "windows" {
		name = "java.exe"
	}
	candidates := []string{
		filepath.Join(dir, "bin", name),
		filepath.Join(dir, "Contents", "Home", "bin", name),
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, true
		}
	}
	return "", false
}

// Installer downloads and unpacks a runtime when none is present
type Installer struct {
	baseDir string
	url     string
	fetcher download.Fetcher
	goos    string
	goarch  string
}

// NewInstaller creates an installer. An empty url selects DefaultURL.
func NewInstaller(baseDir, url string, fetcher download.Fetcher) *Installer {
	return &Installer{
		baseDir: baseDir,
		url:     url,
		fetcher: fetcher,
		goos:    runtime.GOOS,
		goarch:  runtime.GOARCH,
	}
}

// Installed reports whether a runtime is already present
func (i *Installer) Installed() (string, bool) {
	return find(Dir(i.baseDir), i.goos)
}

// DownloadURL returns the runtime archive URL for the installer's platform.
// A url with two %s verbs is filled with the OS and architecture names.
func (i *Installer) DownloadURL() string {
	tmpl := i.url
	if tmpl == "" {
		tmpl = DefaultURL
	}
	if strings.Count(tmpl, "%s") != 2 {
		return tmpl
	}
	osName := i.goos
	if osName == "darwin" {
		osName = "mac"
	}
	arch := "x64"
	if i.goarch == "arm64" {
		arch = "aarch64"
	}
	return fmt.Sprintf(tmpl, osName, arch)
}

func (i *Installer) archiveName() string {
	if i.goos == "windows" {
		return "jre.zip"
	}
	return "jre.tar.gz"
}

// Ensure returns the java executable, installing the runtime first when it
// is missing. Download and extraction report the jre-download and
// jre-extract phases.
func (i *Installer) Ensure(ctx context.Context, sink progress.Sink) (string, error) {
	if java, ok := i.Installed(); ok {
		return java, nil
	}
	if i.fetcher == nil {
		return "", ErrUnavailable
	}
	sink = progress.OrDiscard(sink)

	cacheDir := filepath.Join(i.baseDir, "cache")
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}
	archivePath := filepath.Join(cacheDir, i.archiveName())
	defer os.Remove(archivePath)

	log.Infof("downloading java runtime from %s", i.DownloadURL())
	cb := download.SinkCallback(sink, progress.PhaseJREDownload)
	if err := i.fetcher.File(ctx, i.DownloadURL(), archivePath, cb); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	staging := Dir(i.baseDir) + ".tmp"
	if err := os.RemoveAll(staging); err != nil {
		return "", fmt.Errorf("failed to clear runtime staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	sink.Emit(progress.Update(progress.PhaseJREExtract, progress.Indeterminate))
	_, err := archive.Extract(archivePath, staging, archive.Options{
		StripRoot: true,
		Progress: func(current, total int, _ string) {
			if total > 0 {
				sink.Emit(progress.Bytes(progress.PhaseJREExtract, current*100/total, int64(total), int64(current)))
			}
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if _, ok := find(staging, i.goos); !ok {
		return "", fmt.Errorf("%w: archive contains no java executable", ErrUnavailable)
	}

	dir := Dir(i.baseDir)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("failed to remove old runtime: %w", err)
	}
	if err := os.Rename(staging, dir); err != nil {
		return "", fmt.Errorf("failed to install runtime: %w", err)
	}

	java, _ := find(dir, i.goos)
	if i.goos != "windows" {
		if err := os.Chmod(java, 0755); err != nil {
			log.Debugf("failed to mark %s executable: %v", java, err)
		}
	}
	sink.Emit(progress.Update(progress.PhaseJREExtract, 100))

	return java, nil
}
