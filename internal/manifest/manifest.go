package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/distantorigin/butter-launcher/internal/channel"
	"github.com/distantorigin/butter-launcher/internal/version"
)

// FileName is the manifest stored at the root of every build directory
const FileName = ".butter-installed.json"

// Installed records which build is applied in a directory
type Installed struct {
	BuildIndex int             `json:"build_index"`
	Channel    channel.Channel `json:"type"`
	BuildName  string          `json:"build_name,omitempty"`
	UpdatedAt  string          `json:"updated_at"`
}

// Matches reports whether the manifest describes the given build
func (m *Installed) Matches(v version.GameVersion) bool {
	if m == nil {
		return false
	}
	if m.Channel != "" && m.Channel != v.Channel {
		return false
	}
	return m.BuildIndex == v.BuildIndex
}

// now is swapped in tests
var now = time.Now

// Path returns the manifest location inside dir
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Read loads the manifest in dir. Missing files, unparsable JSON and a
// missing build_index all read as absent.
func Read(dir string) (*Installed, bool) {
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		return nil, false
	}

	var raw struct {
		BuildIndex *int            `json:"build_index"`
		Channel    channel.Channel `json:"type"`
		BuildName  string          `json:"build_name"`
		UpdatedAt  string          `json:"updated_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Debugf("ignoring unparsable manifest in %s: %v", dir, err)
		return nil, false
	}
	if raw.BuildIndex == nil {
		log.Debugf("ignoring manifest without build_index in %s", dir)
		return nil, false
	}

	return &Installed{
		BuildIndex: *raw.BuildIndex,
		Channel:    raw.Channel,
		BuildName:  raw.BuildName,
		UpdatedAt:  raw.UpdatedAt,
	}, true
}

// Write records v as the build applied in dir. The directory is created when
// needed and the file is replaced atomically through a temp file.
func Write(dir string, v version.GameVersion) error {
	rec := Installed{
		BuildIndex: v.BuildIndex,
		Channel:    v.Channel,
		BuildName:  v.BuildName,
		UpdatedAt:  now().UTC().Format(time.RFC3339),
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	tmp, err := os.CreateTemp(dir, FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp manifest: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close manifest: %w", err)
	}

	if err := os.Rename(tmpPath, Path(dir)); err != nil {
		if cleanupErr := os.Remove(tmpPath); cleanupErr != nil {
			log.Warnf("failed to remove temp manifest %s: %v", tmpPath, cleanupErr)
		}
		return fmt.Errorf("failed to save manifest: %w", err)
	}

	return nil
}

// Remove deletes the manifest in dir, ignoring a missing file
func Remove(dir string) error {
	err := os.Remove(Path(dir))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
