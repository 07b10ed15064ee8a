// Package launch starts an installed game build, installing it first when
// files are missing.
package launch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/distantorigin/butter-launcher/internal/install"
	"github.com/distantorigin/butter-launcher/internal/paths"
	"github.com/distantorigin/butter-launcher/internal/process"
	"github.com/distantorigin/butter-launcher/internal/progress"
	"github.com/distantorigin/butter-launcher/internal/version"
)

// ErrIncomplete is returned when the build is still missing files after the
// install attempts are used up
var ErrIncomplete = errors.New("game installation is incomplete")

// DefaultAttempts caps how many installs one launch may trigger
const DefaultAttempts = 2

// Installer installs a build into a game directory
type Installer interface {
	Install(ctx context.Context, gameDir string, v version.GameVersion, sink progress.Sink) error
}

// Child is a started game process
type Child interface {
	Wait() error
}

// Starter spawns the game detached from the launcher
type Starter func(path string, args []string, dir string) (Child, error)

// Request describes one launch
type Request struct {
	GameDir  string
	Version  version.GameVersion
	Username string
	// Identity is an optional user supplied UUID
	Identity string
}

// Session tracks a launched game until it exits
type Session struct {
	Identity string
	done     chan struct{}
	err      error
}

// Wait blocks until the game exits and returns its exit error
func (s *Session) Wait() error {
	<-s.done
	return s.err
}

// Done is closed once the game exits
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Launcher verifies, installs when needed, and spawns the game
type Launcher struct {
	installer Installer
	start     Starter
	attempts  int
	goos      string
}

// New creates a launcher that uses installer to repair missing builds
func New(installer Installer) *Launcher {
	return &Launcher{
		installer: installer,
		start:     startDetached,
		attempts:  DefaultAttempts,
		goos:      runtime.GOOS,
	}
}

// SetAttempts changes the install attempt cap
func (l *Launcher) SetAttempts(n int) {
	if n < 0 {
		n = 0
	}
	l.attempts = n
}

func startDetached(path string, args []string, dir string) (Child, error) {
	cmd, err := process.StartDetached(path, args, dir)
	if err != nil {
		return nil, err
	}
	return cmd, nil
}

// Launch starts the requested build. Events: launched once the process is
// spawned, then launch-finished or launch-error when it exits; launch-error
// alone when it could not be started.
func (l *Launcher) Launch(ctx context.Context, req Request, sink progress.Sink) (*Session, error) {
	sink = progress.OrDiscard(sink)

	session, err := l.launch(ctx, req, sink)
	if err != nil {
		log.Errorf("launch of %s failed: %v", req.Version, err)
		sink.Emit(progress.Event{Kind: progress.KindLaunchError, Message: err.Error()})
		return nil, err
	}
	return session, nil
}

func (l *Launcher) launch(ctx context.Context, req Request, sink progress.Sink) (*Session, error) {
	if strings.TrimSpace(req.Username) == "" {
		return nil, errors.New("username is required")
	}

	st, err := l.ensureInstalled(ctx, req, sink)
	if err != nil {
		return nil, err
	}

	userDir := paths.UserDataDir(req.GameDir)
	if err := os.MkdirAll(userDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create user data directory: %w", err)
	}

	identity := ResolveIdentity(req.Identity, req.Username)
	args := Args(st, userDir, identity, req.Username)

	child, err := l.spawn(st.ClientPath, args)
	if err != nil {
		return nil, fmt.Errorf("failed to start game: %w", err)
	}

	log.Infof("launched %s as %s", req.Version, req.Username)
	sink.Emit(progress.Event{Kind: progress.KindLaunched, Version: &req.Version})

	session := &Session{Identity: identity, done: make(chan struct{})}
	go func() {
		defer close(session.done)
		session.err = child.Wait()
		if session.err != nil {
			log.Warnf("game exited with error: %v", session.err)
			sink.Emit(progress.Event{Kind: progress.KindLaunchError, Message: session.err.Error()})
			return
		}
		log.Infof("game exited")
		sink.Emit(progress.Event{Kind: progress.KindLaunchFinished})
	}()

	return session, nil
}

// ensureInstalled checks the build and installs it while files are missing,
// at most l.attempts times
func (l *Launcher) ensureInstalled(ctx context.Context, req Request, sink progress.Sink) (install.Status, error) {
	for attempt := 1; ; attempt++ {
		st := install.Check(req.GameDir, req.Version)
		if st.Complete() {
			return st, nil
		}
		if attempt > l.attempts || l.installer == nil {
			return st, fmt.Errorf("%w: missing %s", ErrIncomplete, strings.Join(missing(st), ", "))
		}

		log.Infof("%s is missing %s, installing (attempt %d/%d)", req.Version, strings.Join(missing(st), ", "), attempt, l.attempts)
		if err := l.installer.Install(ctx, req.GameDir, req.Version, sink); err != nil {
			log.Warnf("install attempt %d failed: %v", attempt, err)
		}
		if err := ctx.Err(); err != nil {
			return st, err
		}
	}
}

func missing(st install.Status) []string {
	var out []string
	if !st.Client {
		out = append(out, "client")
	}
	if !st.Server {
		out = append(out, "server")
	}
	if !st.JRE {
		out = append(out, "java runtime")
	}
	return out
}

// spawn starts the client, repairing the execute bit once on permission
// errors outside Windows
func (l *Launcher) spawn(client string, args []string) (Child, error) {
	dir := filepath.Dir(client)
	child, err := l.start(client, args, dir)
	if err == nil || l.goos == "windows" || !process.IsPermissionError(err) {
		return child, err
	}

	log.Warnf("permission denied starting %s, repairing execute bit", client)
	if chErr := os.Chmod(client, 0755); chErr != nil {
		return nil, fmt.Errorf("failed to make client executable: %w", errors.Join(err, chErr))
	}
	return l.start(client, args, dir)
}

// Args builds the client command line
func Args(st install.Status, userDir, identity, username string) []string {
	return []string{
		"--app-dir", st.InstallDir,
		"--user-dir", userDir,
		"--java-exec", st.JavaPath,
		"--auth-mode", "offline",
		"--uuid", identity,
		"--name", username,
	}
}
