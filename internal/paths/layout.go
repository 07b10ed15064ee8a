package paths

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/distantorigin/butter-launcher/internal/channel"
	"github.com/distantorigin/butter-launcher/internal/manifest"
	"github.com/distantorigin/butter-launcher/internal/version"
)

// BuildDirPrefix prefixes every numbered build directory
const BuildDirPrefix = "build-"

// GameRoot is <base>/game
func GameRoot(baseDir string) string {
	return filepath.Join(baseDir, "game")
}

// LatestDir is the alias directory holding the newest release build
func LatestDir(baseDir string) string {
	return filepath.Join(GameRoot(baseDir), "latest")
}

// ChannelDir is <base>/game/<channel>
func ChannelDir(baseDir string, ch channel.Channel) string {
	if ch == channel.PreRelease {
		return filepath.Join(GameRoot(baseDir), string(channel.PreRelease))
	}
	return filepath.Join(GameRoot(baseDir), string(channel.Release))
}

// BuildDir is <base>/game/<channel>/build-<n>
func BuildDir(baseDir string, ch channel.Channel, buildIndex int) string {
	return filepath.Join(ChannelDir(baseDir, ch), BuildDirPrefix+strconv.Itoa(buildIndex))
}

// UserDataDir holds saves and settings shared by every build
func UserDataDir(baseDir string) string {
	return filepath.Join(baseDir, "UserData")
}

// CacheDir holds launcher caches such as the last fetched catalog
func CacheDir(baseDir string) string {
	return filepath.Join(baseDir, "cache")
}

// ResolveInstallDir picks where a build gets installed. Only the newest
// release build uses the latest alias.
func ResolveInstallDir(baseDir string, v version.GameVersion) string {
	if v.Channel == channel.PreRelease {
		return BuildDir(baseDir, channel.PreRelease, v.BuildIndex)
	}
	if v.IsLatest {
		return LatestDir(baseDir)
	}
	return BuildDir(baseDir, channel.Release, v.BuildIndex)
}

// ResolveExistingInstallDir prefers the latest alias when it already holds the
// build, so an old "latest" stays launchable after newer builds appear.
func ResolveExistingInstallDir(baseDir string, v version.GameVersion) string {
	if v.Channel == channel.Release {
		latest := LatestDir(baseDir)
		if m, ok := manifest.Read(latest); ok && m.BuildIndex == v.BuildIndex {
			return latest
		}
	}
	return ResolveInstallDir(baseDir, v)
}

// ClientPath is the game client executable inside an install directory
func ClientPath(installDir string) string {
	return clientPathFor(installDir, runtime.GOOS)
}

func clientPathFor(installDir, goos string) string {
	name := "HytaleClient"
	if goos == "windows" {
		name += ".exe"
	}
	return filepath.Join(installDir, "Client", name)
}

// ServerPath is the game server jar inside an install directory
func ServerPath(installDir string) string {
	return filepath.Join(installDir, "Server", "HytaleServer.jar")
}

// BuildDirIndex extracts n from a "build-<n>" directory name
func BuildDirIndex(name string) (int, bool) {
	if !strings.HasPrefix(name, BuildDirPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(name, BuildDirPrefix))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// InstalledBuild returns the manifest of the build currently applied for a
// channel: the latest alias first for release, then the highest numbered
// build directory carrying a valid manifest.
func InstalledBuild(baseDir string, ch channel.Channel) (*manifest.Installed, bool) {
	if ch == channel.Release {
		if m, ok := manifest.Read(LatestDir(baseDir)); ok {
			return m, true
		}
	}

	entries, err := os.ReadDir(ChannelDir(baseDir, ch))
	if err != nil {
		return nil, false
	}

	var builds []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if n, ok := BuildDirIndex(e.Name()); ok {
			builds = append(builds, n)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(builds)))

	for _, n := range builds {
		m, ok := manifest.Read(BuildDir(baseDir, ch, n))
		if ok && m.BuildIndex == n {
			return m, true
		}
	}
	return nil, false
}
