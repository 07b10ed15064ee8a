package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/distantorigin/butter-launcher/internal/catalog"
	"github.com/distantorigin/butter-launcher/internal/channel"
	"github.com/distantorigin/butter-launcher/internal/install"
	"github.com/distantorigin/butter-launcher/internal/launch"
	"github.com/distantorigin/butter-launcher/internal/onlinepatch"
	"github.com/distantorigin/butter-launcher/internal/paths"
	"github.com/distantorigin/butter-launcher/internal/process"
	"github.com/distantorigin/butter-launcher/internal/progress"
	"github.com/distantorigin/butter-launcher/internal/shortcut"
	"github.com/distantorigin/butter-launcher/internal/version"
)

const (
	shortcutName = "Butter Launcher"
	closeTimeout = 10 * time.Minute
)

var (
	desktopShortcut bool
	usernameFlag    string
	identityFlag    string
	waitFlag        bool

	versionsCmd = &cobra.Command{
		Use:   "versions",
		Short: "List the builds available for a channel",
		Args:  cobra.NoArgs,
		RunE:  newAppCmd(runVersions),
	}

	installCmd = &cobra.Command{
		Use:   "install [build|latest]",
		Short: "Install or update a build",
		Args:  cobra.MaximumNArgs(1),
		RunE:  newAppCmd(runInstall),
	}

	launchCmd = &cobra.Command{
		Use:   "launch [build|latest]",
		Short: "Launch a build, installing it first when needed",
		Args:  cobra.MaximumNArgs(1),
		RunE:  newAppCmd(runLaunch),
	}

	statusCmd = &cobra.Command{
		Use:   "status [build]",
		Short: "Show what is installed for a build",
		Args:  cobra.MaximumNArgs(1),
		RunE:  newAppCmd(runStatus),
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Move installs from the old flat layout into build directories",
		Args:  cobra.NoArgs,
		RunE:  newAppCmd(runMigrate),
	}

	onlinePatchCmd = &cobra.Command{
		Use:   "online-patch [build]",
		Short: "Install the online client for a build when one is published",
		Args:  cobra.MaximumNArgs(1),
		RunE:  newAppCmd(runOnlinePatch),
	}
)

func init() {
	installCmd.Flags().BoolVar(&desktopShortcut, "desktop-shortcut", false, "create a desktop shortcut that launches the game (Windows)")
	launchCmd.Flags().StringVarP(&usernameFlag, "username", "u", "", "player name (default from config)")
	launchCmd.Flags().StringVar(&identityFlag, "uuid", "", "player UUID, derived from the username when empty or invalid")
	launchCmd.Flags().BoolVar(&waitFlag, "wait", false, "wait for the game to exit")
}

// resolve lists the channel's builds with the installed one marked. When the
// catalog is unreachable the installed build is the only entry.
func resolve(ctx context.Context, a *app, ch channel.Channel) ([]version.GameVersion, error) {
	versions, err := a.resolver.Resolve(ctx, ch)
	if err != nil {
		return nil, err
	}

	installed, ok := paths.InstalledBuild(a.baseDir, ch)
	if !ok {
		return versions, nil
	}
	if len(versions) == 0 {
		return []version.GameVersion{installedVersion(ch, installed.BuildIndex, installed.BuildName)}, nil
	}
	return catalog.MarkInstalled(versions, installed.BuildIndex), nil
}

func installedVersion(ch channel.Channel, n int, name string) version.GameVersion {
	return version.GameVersion{Channel: ch, BuildIndex: n, BuildName: name, Installed: true}
}

// pick selects a build by argument, by menu, or the newest one
func pick(versions []version.GameVersion, arg string, a *app) (version.GameVersion, error) {
	if len(versions) == 0 {
		return version.GameVersion{}, errors.New("no builds available, check catalog_url and your connection")
	}

	switch strings.ToLower(arg) {
	case "":
		v, ok := a.prompt.VersionMenu(versions)
		if !ok {
			return version.GameVersion{}, errors.New("cancelled")
		}
		return v, nil
	case "latest":
		return versions[len(versions)-1], nil
	}

	n, err := version.ParseBuildIndex(arg)
	if err != nil {
		return version.GameVersion{}, err
	}
	for _, v := range versions {
		if v.BuildIndex == n {
			return v, nil
		}
	}
	return version.GameVersion{}, fmt.Errorf("build %d is not available", n)
}

func runVersions(ctx context.Context, a *app, _ []string) error {
	ch, err := a.channel()
	if err != nil {
		return err
	}
	versions, err := resolve(ctx, a, ch)
	if err != nil {
		return err
	}

	if jsonFlag {
		return a.out.JSON(versions)
	}
	if len(versions) == 0 {
		a.out.Log("No %s builds found.", ch)
		return nil
	}
	for i := len(versions) - 1; i >= 0; i-- {
		v := versions[i]
		line := fmt.Sprintf("%5d  %s", v.BuildIndex, v.BuildName)
		if v.IsLatest {
			line += "  (latest)"
		}
		if v.Installed {
			line += "  [installed]"
		}
		if v.HasFix() {
			line += "  +fix"
		}
		a.out.Log("%s", line)
	}
	return nil
}

func runInstall(ctx context.Context, a *app, args []string) error {
	ch, err := a.channel()
	if err != nil {
		return err
	}
	versions, err := resolve(ctx, a, ch)
	if err != nil {
		return err
	}
	v, err := pick(versions, firstArg(args), a)
	if err != nil {
		return err
	}

	if err := channel.Save(a.baseDir, ch); err != nil {
		log.Warnf("failed to remember channel: %v", err)
	}

	err = installOnce(ctx, a, v)
	if errors.Is(err, install.ErrClientRunning) && !a.prompt.NonInteractive &&
		a.prompt.Confirm("The game is running. Wait for it to close and retry?") {
		a.out.Log("Waiting for the game to close...")
		if !process.WaitForExit(ctx, paths.ClientPath(paths.ResolveExistingInstallDir(a.baseDir, v)), closeTimeout) {
			return err
		}
		err = installOnce(ctx, a, v)
	}
	if err != nil {
		return err
	}

	if desktopShortcut {
		createShortcut(a, ch)
	}
	return nil
}

func installOnce(ctx context.Context, a *app, v version.GameVersion) error {
	sink, stop := a.subscribe()
	defer stop()

	rec := &progress.Recorder{}
	err := a.orch.Install(ctx, a.baseDir, v, progress.Tee(sink, rec))
	if err != nil {
		log.Debugf("install of %s stopped after phases %v", v, rec.Phases())
	}
	return err
}

func createShortcut(a *app, ch channel.Channel) {
	exe, err := os.Executable()
	if err != nil {
		log.Warnf("failed to locate launcher executable: %v", err)
		return
	}

	link, err := shortcut.Create(shortcut.Shortcut{
		Name:        shortcutName,
		Target:      exe,
		Args:        []string{"launch", "latest", "--channel", ch.String(), "--base-dir", `"` + a.baseDir + `"`},
		WorkingDir:  filepath.Dir(exe),
		Description: "Launch the game",
	})
	switch {
	case errors.Is(err, shortcut.ErrUnsupported):
		a.out.Log("Desktop shortcuts are only available on Windows.")
	case err != nil:
		log.Warnf("failed to create desktop shortcut: %v", err)
	default:
		a.out.Log("Created shortcut %s", link)
	}
}

func runLaunch(ctx context.Context, a *app, args []string) error {
	ch, err := a.channel()
	if err != nil {
		return err
	}
	versions, err := resolve(ctx, a, ch)
	if err != nil {
		return err
	}
	v, err := pick(versions, firstArg(args), a)
	if err != nil {
		return err
	}

	username := usernameFlag
	if username == "" {
		username = a.cfg.Username
	}
	if username == "" {
		username = a.prompt.Input("Username", "Player")
	}
	identity := identityFlag
	if identity == "" {
		identity = a.cfg.Identity
	}
	if identity != "" {
		if _, ok := launch.NormalizeIdentity(identity); !ok {
			log.Warnf("ignoring invalid uuid %q, deriving one from the username", identity)
		}
	}

	sink, stop := a.subscribe()
	defer stop()

	session, err := a.launcher().Launch(ctx, launch.Request{
		GameDir:  a.baseDir,
		Version:  v,
		Username: username,
		Identity: identity,
	}, sink)
	if err != nil {
		return err
	}

	if !waitFlag {
		return nil
	}
	select {
	case <-session.Done():
		return session.Wait()
	case <-ctx.Done():
		a.out.Log("Stopped waiting, the game keeps running.")
		return nil
	}
}

func runStatus(ctx context.Context, a *app, args []string) error {
	ch, err := a.channel()
	if err != nil {
		return err
	}

	var v version.GameVersion
	if arg := firstArg(args); arg != "" {
		n, err := version.ParseBuildIndex(arg)
		if err != nil {
			return err
		}
		v = version.GameVersion{Channel: ch, BuildIndex: n}
	} else {
		installed, ok := paths.InstalledBuild(a.baseDir, ch)
		if !ok {
			a.out.Log("No %s build installed in %s", ch, a.baseDir)
			return nil
		}
		v = installedVersion(ch, installed.BuildIndex, installed.BuildName)
	}

	st := install.Check(a.baseDir, v)
	if jsonFlag {
		return a.out.JSON(st)
	}

	a.out.Log("%s", v)
	a.out.Log("  directory: %s", st.InstallDir)
	a.out.Log("  client:    %s", presence(st.Client))
	a.out.Log("  server:    %s", presence(st.Server))
	a.out.Log("  java:      %s", presence(st.JRE))
	if st.Manifest != nil {
		a.out.Log("  manifest:  build-%d (updated %s)", st.Manifest.BuildIndex, st.Manifest.UpdatedAt)
	} else {
		a.out.Log("  manifest:  missing")
	}
	return nil
}

func presence(ok bool) string {
	if ok {
		return "present"
	}
	return "missing"
}

func runMigrate(_ context.Context, a *app, _ []string) error {
	migrated := 0
	for _, ch := range []channel.Channel{channel.Release, channel.PreRelease} {
		if dir, ok := paths.MigrateLegacy(a.baseDir, ch); ok {
			a.out.Log("Migrated %s install to %s", ch, dir)
			migrated++
		}
	}
	if migrated == 0 {
		a.out.Log("Nothing to migrate.")
	}
	return nil
}

func runOnlinePatch(ctx context.Context, a *app, args []string) error {
	ch, err := a.channel()
	if err != nil {
		return err
	}
	versions, err := resolve(ctx, a, ch)
	if err != nil {
		return err
	}
	v, err := pick(versions, firstArg(args), a)
	if err != nil {
		return err
	}

	sink, stop := a.subscribe()
	result, err := onlinepatch.NewPatcher(a.dl).Run(ctx, a.baseDir, v, sink)
	stop()
	if err != nil {
		return err
	}
	a.out.Log("Online patch: %s", result)
	return nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
