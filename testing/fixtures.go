package testing

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/distantorigin/butter-launcher/internal/version"
)

// Catalog builds a version catalog listing release builds
func Catalog(lastUpdated time.Time, latestRelease int, releases ...int) version.Catalog {
	c := version.Catalog{
		LastUpdated:     lastUpdated.Format("2006-01-02"),
		LatestReleaseID: latestRelease,
		Versions:        make(map[string]version.Details),
		PreReleases:     make(map[string]version.Details),
	}
	for _, n := range releases {
		c.Versions[strconv.Itoa(n)] = version.Details{Name: fmt.Sprintf("Update %d", n)}
	}
	return c
}

// ZipBytes builds a zip archive from name -> content pairs
func ZipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("failed to add %s to zip: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("failed to write %s to zip: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to finish zip: %v", err)
	}
	return buf.Bytes()
}

// FakePatchTool writes a shell script that behaves like `butler apply`: it
// prints JSON progress and creates the client and server in the destination.
// Tests using it are skipped on Windows.
func FakePatchTool(t *testing.T, dir string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake patch tool needs a POSIX shell")
	}

	script := `#!/bin/sh
for last; do :; done
echo '{"type":"log","message":"applying"}'
echo '{"type":"progress","percentage":0.5}'
mkdir -p "$last/Client" "$last/Server"
echo client > "$last/Client/HytaleClient"
echo server > "$last/Server/HytaleServer.jar"
echo '{"type":"progress","percentage":1}'
`
	path := filepath.Join(dir, "butler")
	WriteFile(t, path, script)
	if err := os.Chmod(path, 0755); err != nil {
		t.Fatalf("failed to make fake tool executable: %v", err)
	}
	return path
}
