package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/distantorigin/butter-launcher/internal/channel"
	"github.com/distantorigin/butter-launcher/internal/version"
)

func fixedNow(t *testing.T) {
	t.Helper()
	old := now
	now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { now = old })
}

// TestWriteRead_RoundTrip tests that a written manifest reads back equal
func TestWriteRead_RoundTrip(t *testing.T) {
	fixedNow(t)

	tests := []version.GameVersion{
		{Channel: channel.Release, BuildIndex: 7, BuildName: "Update 3"},
		{Channel: channel.PreRelease, BuildIndex: 1},
		{Channel: channel.Release, BuildIndex: 120, BuildName: "build-120"},
	}

	for _, v := range tests {
		t.Run(v.String(), func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "nested", "build")

			if err := Write(dir, v); err != nil {
				t.Fatalf("Write() error = %v", err)
			}

			got, ok := Read(dir)
			if !ok {
				t.Fatal("Read() returned absent after Write()")
			}
			if got.BuildIndex != v.BuildIndex || got.Channel != v.Channel {
				t.Errorf("Read() = %+v, want build %d channel %s", got, v.BuildIndex, v.Channel)
			}
			if got.BuildName != v.BuildName {
				t.Errorf("BuildName = %q, want %q", got.BuildName, v.BuildName)
			}
			if got.UpdatedAt != "2026-03-01T12:00:00Z" {
				t.Errorf("UpdatedAt = %q", got.UpdatedAt)
			}
			if !got.Matches(v) {
				t.Error("Matches() should be true for the written version")
			}
		})
	}
}

// TestWrite_LeavesNoTempFiles tests that the atomic write cleans up after itself
func TestWrite_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	v := version.GameVersion{Channel: channel.Release, BuildIndex: 2}

	for i := 0; i < 3; i++ {
		if err := Write(dir, v); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != FileName {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory contents = %v, want only %s", names, FileName)
	}
}

// TestWrite_Format tests the on-disk JSON shape
func TestWrite_Format(t *testing.T) {
	fixedNow(t)
	dir := t.TempDir()

	if err := Write(dir, version.GameVersion{Channel: channel.PreRelease, BuildIndex: 4}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("failed to read manifest: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("manifest is not valid JSON: %v", err)
	}
	if raw["build_index"] != float64(4) {
		t.Errorf("build_index = %v", raw["build_index"])
	}
	if raw["type"] != "pre-release" {
		t.Errorf("type = %v", raw["type"])
	}
	if _, ok := raw["build_name"]; ok {
		t.Error("empty build_name should be omitted")
	}
	if !strings.HasPrefix(raw["updated_at"].(string), "2026-03-01") {
		t.Errorf("updated_at = %v", raw["updated_at"])
	}
}

// TestRead_Tolerant tests that bad manifests read as absent instead of failing
func TestRead_Tolerant(t *testing.T) {
	tests := []struct {
		name    string
		content string
		write   bool
	}{
		{name: "missing file", write: false},
		{name: "invalid json", content: "{not json", write: true},
		{name: "missing build_index", content: `{"type":"release"}`, write: true},
		{name: "build_index wrong type", content: `{"build_index":"7"}`, write: true},
		{name: "empty file", content: "", write: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.write {
				if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tt.content), 0644); err != nil {
					t.Fatalf("failed to write manifest: %v", err)
				}
			}

			got, ok := Read(dir)
			if ok || got != nil {
				t.Errorf("Read() = %+v, %v; want absent", got, ok)
			}
		})
	}
}

// TestMatches tests manifest/build comparison
func TestMatches(t *testing.T) {
	m := &Installed{BuildIndex: 5, Channel: channel.Release}

	if !m.Matches(version.GameVersion{Channel: channel.Release, BuildIndex: 5}) {
		t.Error("same build should match")
	}
	if m.Matches(version.GameVersion{Channel: channel.Release, BuildIndex: 6}) {
		t.Error("different build should not match")
	}
	if m.Matches(version.GameVersion{Channel: channel.PreRelease, BuildIndex: 5}) {
		t.Error("different channel should not match")
	}

	legacy := &Installed{BuildIndex: 5}
	if !legacy.Matches(version.GameVersion{Channel: channel.Release, BuildIndex: 5}) {
		t.Error("manifest without type should match on build index")
	}

	var missing *Installed
	if missing.Matches(version.GameVersion{BuildIndex: 5}) {
		t.Error("nil manifest should never match")
	}
}

// TestRemove tests manifest removal
func TestRemove(t *testing.T) {
	dir := t.TempDir()
	if err := Remove(dir); err != nil {
		t.Errorf("Remove() on missing manifest error = %v", err)
	}

	if err := Write(dir, version.GameVersion{Channel: channel.Release, BuildIndex: 1}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := Remove(dir); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, ok := Read(dir); ok {
		t.Error("manifest should be gone after Remove()")
	}
}
