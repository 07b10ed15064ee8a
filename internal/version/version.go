package version

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/distantorigin/butter-launcher/internal/channel"
)

// Launcher is the launcher's own version, overridden at build time with
// -ldflags "-X github.com/distantorigin/butter-launcher/internal/version.Launcher=1.2.3"
var Launcher = "dev"

// UserAgent returns the User-Agent sent with every remote request
func UserAgent() string {
	return "butter-launcher/" + Launcher
}

// GameVersion describes one installable build
type GameVersion struct {
	URL        string          `json:"url"`
	Channel    channel.Channel `json:"type"`
	BuildIndex int             `json:"build_index"`
	BuildName  string          `json:"build_name"`

	// Online client patch, only usable when both are present
	PatchURL  string `json:"patch_url,omitempty"`
	PatchHash string `json:"patch_hash,omitempty"`

	// Supplemental fix archive
	FixURL  string `json:"fix_url,omitempty"`
	FixHash string `json:"fix_hash,omitempty"`

	IsLatest  bool `json:"is_latest,omitempty"`
	Installed bool `json:"installed,omitempty"`
}

// HasFix reports whether a supplemental fix archive is declared
func (v GameVersion) HasFix() bool {
	return v.FixURL != ""
}

// HasOnlinePatch reports whether an online client patch is declared
func (v GameVersion) HasOnlinePatch() bool {
	return v.PatchURL != "" && v.PatchHash != ""
}

// String returns a short human readable label
func (v GameVersion) String() string {
	label := fmt.Sprintf("%s build-%d", v.Channel, v.BuildIndex)
	if v.BuildName != "" && v.BuildName != fmt.Sprintf("build-%d", v.BuildIndex) {
		label += " (" + v.BuildName + ")"
	}
	return label
}

// Details is a single entry of the remote version catalog
type Details struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
	Hash string `json:"hash,omitempty"`
}

// Catalog is the remotely published version list
type Catalog struct {
	LastUpdated        string             `json:"last_updated"`
	LatestReleaseID    int                `json:"latest_release_id"`
	LatestPreReleaseID int                `json:"latest_prerelease_id"`
	Versions           map[string]Details `json:"versions"`
	PreReleases        map[string]Details `json:"pre_releases"`
}

// Names returns the name map of the given channel
func (c *Catalog) Names(ch channel.Channel) map[string]Details {
	if ch == channel.PreRelease {
		return c.PreReleases
	}
	return c.Versions
}

// LatestID returns the declared latest build of the given channel
func (c *Catalog) LatestID(ch channel.Channel) int {
	if ch == channel.PreRelease {
		return c.LatestPreReleaseID
	}
	return c.LatestReleaseID
}

// BuildIDs returns the positive build indices listed for a channel, unsorted
func (c *Catalog) BuildIDs(ch channel.Channel) []int {
	names := c.Names(ch)
	ids := make([]int, 0, len(names))
	for key := range names {
		n, err := ParseBuildIndex(key)
		if err != nil {
			continue
		}
		ids = append(ids, n)
	}
	return ids
}

// ListedDate parses last_updated as a local YYYY-MM-DD date
func (c *Catalog) ListedDate() (time.Time, bool) {
	if c.LastUpdated == "" {
		return time.Time{}, false
	}
	d, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(c.LastUpdated), time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// FixEntry maps a range of build indices to a fix archive path, with an
// optional sha256 of the archive
type FixEntry struct {
	Path  string `json:"path"`
	Range string `json:"range"`
	Hash  string `json:"hash,omitempty"`
}

// FixCatalog is keyed by operating system name
type FixCatalog map[string][]FixEntry

// ParseBuildIndex parses a positive build index such as "7"
func ParseBuildIndex(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid build index %q: %w", s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid build index %q: must be positive", s)
	}
	return n, nil
}
