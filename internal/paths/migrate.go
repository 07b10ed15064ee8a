package paths

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/distantorigin/butter-launcher/internal/channel"
	"github.com/distantorigin/butter-launcher/internal/manifest"
	"github.com/distantorigin/butter-launcher/internal/version"
)

// rename is swapped in tests to simulate cross-device moves
var rename = os.Rename

// IsLegacyChannelInstall reports whether the old flat layout
// (game/<channel>/Client + Server) is present
func IsLegacyChannelInstall(channelDir string) bool {
	return Exists(filepath.Join(channelDir, "Client")) || Exists(filepath.Join(channelDir, "Server"))
}

// MigrateLegacy moves a flat channel install into its build-<n> directory.
// It is idempotent and best-effort: failures are logged and the original
// files are only removed once they exist at the destination. Returns the
// build directory when a migration happened.
func MigrateLegacy(baseDir string, ch channel.Channel) (string, bool) {
	channelDir := ChannelDir(baseDir, ch)

	if !Exists(channelDir) || !IsLegacyChannelInstall(channelDir) {
		return "", false
	}

	legacy, ok := manifest.Read(channelDir)
	if !ok {
		return "", false
	}

	buildDir := BuildDir(baseDir, ch, legacy.BuildIndex)
	if err := os.MkdirAll(buildDir, 0755); err != nil {
		log.Debugf("legacy migration: failed to create %s: %v", buildDir, err)
		return "", false
	}

	entries, err := os.ReadDir(channelDir)
	if err != nil {
		log.Debugf("legacy migration: failed to list %s: %v", channelDir, err)
		return "", false
	}

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, BuildDirPrefix) || name == manifest.FileName {
			continue
		}

		from := filepath.Join(channelDir, name)
		to := filepath.Join(buildDir, name)
		if Exists(to) {
			continue
		}

		if err := moveEntry(from, to); err != nil {
			log.Debugf("legacy migration: failed to move %s: %v", from, err)
		}
	}

	legacyChannel := legacy.Channel
	if !legacyChannel.Valid() {
		legacyChannel = ch
	}
	err = manifest.Write(buildDir, version.GameVersion{
		Channel:    legacyChannel,
		BuildIndex: legacy.BuildIndex,
		BuildName:  legacy.BuildName,
	})
	if err != nil {
		log.Debugf("legacy migration: failed to write manifest into %s: %v", buildDir, err)
		return buildDir, true
	}

	if err := manifest.Remove(channelDir); err != nil {
		log.Debugf("legacy migration: failed to remove old manifest: %v", err)
	}

	log.Infof("migrated legacy %s install to %s", ch, buildDir)
	return buildDir, true
}

// moveEntry renames from to to, falling back to copy+delete when the rename
// fails (cross-device moves, locked handles)
func moveEntry(from, to string) error {
	if err := rename(from, to); err == nil {
		return nil
	}

	info, err := os.Lstat(from)
	if err != nil {
		return err
	}

	if info.IsDir() {
		err = os.CopyFS(to, os.DirFS(from))
	} else {
		err = copyFile(from, to, info.Mode())
	}
	if err != nil {
		_ = os.RemoveAll(to)
		return fmt.Errorf("failed to copy: %w", err)
	}

	return os.RemoveAll(from)
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
