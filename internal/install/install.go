// Package install brings a game build onto disk: it migrates old layouts,
// manages the latest alias, downloads and applies the binary patch, then
// layers the online client and fix archive on top.
package install

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/distantorigin/butter-launcher/internal/channel"
	"github.com/distantorigin/butter-launcher/internal/download"
	"github.com/distantorigin/butter-launcher/internal/fix"
	"github.com/distantorigin/butter-launcher/internal/jre"
	"github.com/distantorigin/butter-launcher/internal/lock"
	"github.com/distantorigin/butter-launcher/internal/manifest"
	"github.com/distantorigin/butter-launcher/internal/onlinepatch"
	"github.com/distantorigin/butter-launcher/internal/patch"
	"github.com/distantorigin/butter-launcher/internal/paths"
	"github.com/distantorigin/butter-launcher/internal/process"
	"github.com/distantorigin/butter-launcher/internal/progress"
	"github.com/distantorigin/butter-launcher/internal/version"
)

var (
	// ErrJREUnavailable is returned when the java runtime cannot be provided
	ErrJREUnavailable = errors.New("java runtime unavailable")

	// ErrClientRunning is returned when the build being replaced is in use
	ErrClientRunning = errors.New("game client is running")
)

// ToolLocator finds or provisions the patch tool
type ToolLocator interface {
	Locate(ctx context.Context) (string, error)
}

// PatchApplier applies a downloaded patch to a directory
type PatchApplier interface {
	Apply(ctx context.Context, patchFile, destDir string, sink progress.Sink) error
}

// FixApplier layers the supplemental fix archive over an install
type FixApplier interface {
	Apply(ctx context.Context, dir string, v version.GameVersion, sink progress.Sink) error
}

// JREProvider returns a java executable, installing one when needed
type JREProvider interface {
	Ensure(ctx context.Context, sink progress.Sink) (string, error)
}

// OnlinePatcher swaps in the online client when a build declares one
type OnlinePatcher interface {
	PatchIfNeeded(ctx context.Context, installDir string, v version.GameVersion, sink progress.Sink) (onlinepatch.Result, error)
}

// Deps are the collaborators an Orchestrator drives
type Deps struct {
	Downloader download.Fetcher
	Tools      ToolLocator
	NewApplier func(tool string) PatchApplier
	Fix        FixApplier
	JRE        func(baseDir string) JREProvider
	Online     OnlinePatcher

	// IsRunning defaults to process.IsRunning
	IsRunning func(ctx context.Context, exePath string) bool
}

// Config selects the real collaborators built by NewDefault
type Config struct {
	ToolPath string
	ToolsDir string
	// ToolURL may carry a %s placeholder for the OS
	ToolURL    string
	JREURL     string
	StrictExit bool
}

// Orchestrator runs installs, one at a time per game directory
type Orchestrator struct {
	deps Deps
}

// New creates an orchestrator over the given collaborators
func New(deps Deps) *Orchestrator {
	if deps.IsRunning == nil {
		deps.IsRunning = process.IsRunning
	}
	return &Orchestrator{deps: deps}
}

// NewDefault wires the production collaborators around one downloader
func NewDefault(dl download.Fetcher, cfg Config) *Orchestrator {
	tools := patch.NewToolLocator(cfg.ToolPath, cfg.ToolsDir, dl)
	if cfg.ToolURL != "" {
		tools.DownloadURL = patch.ExpandToolURL(cfg.ToolURL, runtime.GOOS)
	}

	return New(Deps{
		Downloader: dl,
		Tools:      tools,
		NewApplier: func(tool string) PatchApplier {
			a := patch.NewApplier(tool)
			a.StrictExit = cfg.StrictExit
			return a
		},
		Fix: fix.NewApplier(dl),
		JRE: func(baseDir string) JREProvider {
			return jre.NewInstaller(baseDir, cfg.JREURL, dl)
		},
		Online: onlinepatch.NewPatcher(dl),
	})
}

// Install makes v present and current under gameDir. A started event opens
// the operation and exactly one terminal event (finished or error) closes
// it; the returned error matches the error event.
func (o *Orchestrator) Install(ctx context.Context, gameDir string, v version.GameVersion, sink progress.Sink) (err error) {
	sink = progress.OrDiscard(sink)
	sink.Emit(progress.Started())

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("install of %s panicked: %v\n%s", v, r, debug.Stack())
			err = fmt.Errorf("install failed unexpectedly: %v", r)
		}
		if err != nil {
			log.Errorf("install of %s failed: %v", v, err)
			sink.Emit(progress.Failed(err.Error()))
			return
		}
		log.Infof("installed %s", v)
		sink.Emit(progress.Finished(v))
	}()

	if !v.Channel.Valid() {
		return fmt.Errorf("invalid channel %q", v.Channel)
	}

	if err := os.MkdirAll(gameDir, 0755); err != nil {
		return fmt.Errorf("failed to create game directory: %w", err)
	}

	l, err := lock.Acquire(gameDir)
	if err != nil {
		return fmt.Errorf("failed to lock game directory: %w", err)
	}
	defer func() {
		if relErr := l.Release(); relErr != nil {
			log.Warnf("failed to release install lock: %v", relErr)
		}
	}()

	if exe := o.runningClient(ctx, gameDir, v); exe != "" {
		return fmt.Errorf("%w: %s", ErrClientRunning, exe)
	}

	paths.MigrateLegacy(gameDir, v.Channel)

	if err := demoteLatest(gameDir, v); err != nil {
		return err
	}

	installDir := paths.ResolveInstallDir(gameDir, v)
	st := inspect(gameDir, installDir)

	if !st.JRE {
		if o.deps.JRE == nil {
			return ErrJREUnavailable
		}
		if _, err := o.deps.JRE(gameDir).Ensure(ctx, sink); err != nil {
			return fmt.Errorf("%w: %w", ErrJREUnavailable, err)
		}
	}

	if st.OnBuild(v) {
		if st.Client && st.Server {
			log.Infof("%s already present in %s", v, installDir)
			return nil
		}
		log.Warnf("manifest in %s records %s but files are missing, patching again", installDir, v)
	}

	return o.apply(ctx, gameDir, installDir, v, sink)
}

// apply runs download, patch, online patch and fix, then records the build
func (o *Orchestrator) apply(ctx context.Context, gameDir, installDir string, v version.GameVersion, sink progress.Sink) error {
	if v.URL == "" {
		return fmt.Errorf("no patch URL for %s", v)
	}

	tool, err := o.deps.Tools.Locate(ctx)
	if err != nil {
		return fmt.Errorf("failed to locate patch tool: %w", err)
	}

	patchFile := filepath.Join(gameDir, download.PatchFileName(v.BuildIndex))
	defer cleanup(
		patchFile,
		filepath.Join(installDir, patch.StagingDirName),
		filepath.Join(installDir, fix.ArchiveName),
	)

	log.Infof("downloading %s", v.URL)
	cb := download.SinkCallback(sink, progress.PhasePWRDownload)
	if err := o.deps.Downloader.File(ctx, v.URL, patchFile, cb); err != nil {
		return fmt.Errorf("failed to download patch: %w", err)
	}

	if err := os.MkdirAll(installDir, 0755); err != nil {
		return fmt.Errorf("failed to create install directory: %w", err)
	}

	if err := o.deps.NewApplier(tool).Apply(ctx, patchFile, installDir, sink); err != nil {
		return fmt.Errorf("failed to apply patch: %w", err)
	}

	if v.HasOnlinePatch() && o.deps.Online != nil {
		result, err := o.deps.Online.PatchIfNeeded(ctx, installDir, v, sink)
		if err != nil {
			return fmt.Errorf("failed to apply online patch: %w", err)
		}
		log.Debugf("online patch for %s: %s", v, result)
	}

	if v.HasFix() && o.deps.Fix != nil {
		if err := o.deps.Fix.Apply(ctx, installDir, v, sink); err != nil {
			return err
		}
	}

	if err := manifest.Write(installDir, v); err != nil {
		return fmt.Errorf("failed to record installed build: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := process.EnsureExecutable(paths.ClientPath(installDir)); err != nil {
			log.Warnf("failed to repair client permissions: %v", err)
		}
	}

	return nil
}

// runningClient returns the client executable of any directory this install
// would touch when that client is currently running
func (o *Orchestrator) runningClient(ctx context.Context, gameDir string, v version.GameVersion) string {
	dirs := []string{paths.ResolveInstallDir(gameDir, v)}
	if existing := paths.ResolveExistingInstallDir(gameDir, v); existing != dirs[0] {
		dirs = append(dirs, existing)
	}

	for _, dir := range dirs {
		exe := paths.ClientPath(dir)
		if paths.Exists(exe) && o.deps.IsRunning(ctx, exe) {
			return exe
		}
	}
	return ""
}

// demoteLatest frees the latest alias for a newer release build: the old
// alias becomes release/build-<old>, or is dropped when that build is
// already installed there.
func demoteLatest(baseDir string, v version.GameVersion) error {
	if v.Channel != channel.Release || !v.IsLatest {
		return nil
	}

	latest := paths.LatestDir(baseDir)
	existing, ok := manifest.Read(latest)
	if !ok || existing.BuildIndex == v.BuildIndex {
		return nil
	}

	target := paths.BuildDir(baseDir, channel.Release, existing.BuildIndex)
	if paths.Exists(target) {
		log.Infof("build-%d already installed, discarding old latest alias", existing.BuildIndex)
		if err := os.RemoveAll(latest); err != nil {
			return fmt.Errorf("failed to remove old latest install: %w", err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create release directory: %w", err)
	}
	if err := os.Rename(latest, target); err != nil {
		return fmt.Errorf("failed to move old latest install to %s: %w", target, err)
	}
	log.Infof("moved previous latest build-%d to %s", existing.BuildIndex, target)
	return nil
}

// cleanup removes temporary artifacts, logging rather than failing
func cleanup(targets ...string) {
	var result *multierror.Error
	for _, t := range targets {
		if err := os.RemoveAll(t); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		log.Debugf("install cleanup: %v", err)
	}
}
