package patch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/distantorigin/butter-launcher/internal/archive"
	"github.com/distantorigin/butter-launcher/internal/download"
)

// ErrToolNotFound is returned when no patch tool could be located or fetched
var ErrToolNotFound = errors.New("patch tool not found")

// DefaultToolURL serves the latest butler build for an OS
const DefaultToolURL = "https://broth.itch.zone/butler/%s-amd64/LATEST/archive/default"

// ToolLocator finds the patch tool: an explicit path first, then a copy
// previously provisioned into ToolsDir, then $PATH, and finally a fresh
// download when DownloadURL and Fetcher are set.
type ToolLocator struct {
	Path        string
	ToolsDir    string
	DownloadURL string
	Fetcher     download.Fetcher

	goos     string
	lookPath func(string) (string, error)
}

// NewToolLocator creates a locator for the running platform
func NewToolLocator(path, toolsDir string, fetcher download.Fetcher) *ToolLocator {
	return &ToolLocator{
		Path:        path,
		ToolsDir:    toolsDir,
		DownloadURL: ExpandToolURL(DefaultToolURL, runtime.GOOS),
		Fetcher:     fetcher,
		goos:        runtime.GOOS,
		lookPath:    exec.LookPath,
	}
}

// ExpandToolURL fills the OS placeholder of a tool URL template
func ExpandToolURL(tmpl, goos string) string {
	if !strings.Contains(tmpl, "%s") {
		return tmpl
	}
	return fmt.Sprintf(tmpl, goos)
}

func (l *ToolLocator) binaryName() string {
	if l.goos == "windows" {
		return "butler.exe"
	}
	return "butler"
}

func (l *ToolLocator) provisionedPath() string {
	return filepath.Join(l.ToolsDir, "butler", l.binaryName())
}

// Locate returns a runnable patch tool path
func (l *ToolLocator) Locate(ctx context.Context) (string, error) {
	if l.Path != "" {
		if _, err := os.Stat(l.Path); err != nil {
			return "", fmt.Errorf("%w: configured path %s: %v", ErrToolNotFound, l.Path, err)
		}
		return l.Path, nil
	}

	if l.ToolsDir != "" {
		if _, err := os.Stat(l.provisionedPath()); err == nil {
			return l.provisionedPath(), nil
		}
	}

	if l.lookPath != nil {
		if p, err := l.lookPath(l.binaryName()); err == nil {
			return p, nil
		}
	}

	if l.Fetcher == nil || l.DownloadURL == "" || l.ToolsDir == "" {
		return "", ErrToolNotFound
	}
	return l.provision(ctx)
}

func (l *ToolLocator) provision(ctx context.Context) (string, error) {
	dir := filepath.Join(l.ToolsDir, "butler")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create tools directory: %w", err)
	}

	archivePath := filepath.Join(l.ToolsDir, "butler.zip")
	log.Infof("downloading patch tool from %s", l.DownloadURL)
	if err := l.Fetcher.File(ctx, l.DownloadURL, archivePath, nil); err != nil {
		return "", fmt.Errorf("%w: %w", ErrToolNotFound, err)
	}
	defer os.Remove(archivePath)

	if _, err := archive.ExtractZip(archivePath, dir, archive.Options{}); err != nil {
		return "", fmt.Errorf("failed to unpack patch tool: %w", err)
	}

	bin := l.provisionedPath()
	if _, err := os.Stat(bin); err != nil {
		return "", fmt.Errorf("%w: archive did not contain %s", ErrToolNotFound, l.binaryName())
	}
	if l.goos != "windows" {
		if err := os.Chmod(bin, 0755); err != nil {
			return "", fmt.Errorf("failed to make patch tool executable: %w", err)
		}
	}
	return bin, nil
}
