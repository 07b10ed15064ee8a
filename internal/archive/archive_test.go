package archive

import (
	"archive/tar"
	"archive/zip"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	name    string
	content string
	dir     bool
}

func writeZip(t *testing.T, entries []entry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		if e.dir {
			_, err := zw.Create(e.name + "/")
			require.NoError(t, err)
			continue
		}
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(e.content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

type tarEntry struct {
	name     string
	content  string
	typeflag byte
	linkname string
	mode     int64
}

func writeTarGz(t *testing.T, entries []tarEntry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jre.tar.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		mode := e.mode
		if mode == 0 {
			mode = 0644
		}
		hdr := &tar.Header{
			Name:     e.name,
			Typeflag: e.typeflag,
			Linkname: e.linkname,
			Mode:     mode,
			Size:     int64(len(e.content)),
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if e.typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(e.content))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return path
}

func TestExtractZip_ProgressPerEntry(t *testing.T) {
	var entries []entry
	for i := 0; i < 10; i++ {
		entries = append(entries, entry{name: fmt.Sprintf("Client/file%d.dat", i), content: "x"})
	}
	archivePath := writeZip(t, entries)
	dest := t.TempDir()

	var calls []int
	n, err := ExtractZip(archivePath, dest, Options{
		Progress: func(current, total int, name string) {
			assert.Equal(t, 10, total)
			calls = append(calls, current)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, calls)
	assert.FileExists(t, filepath.Join(dest, "Client", "file9.dat"))
}

func TestExtractZip_StripRoot(t *testing.T) {
	archivePath := writeZip(t, []entry{
		{name: "jdk-21", dir: true},
		{name: "jdk-21/bin/java", content: "java"},
		{name: "jdk-21/release", content: "JAVA_VERSION=21"},
	})
	dest := t.TempDir()

	n, err := ExtractZip(archivePath, dest, Options{StripRoot: true})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.FileExists(t, filepath.Join(dest, "bin", "java"))
	assert.FileExists(t, filepath.Join(dest, "release"))
	assert.NoDirExists(t, filepath.Join(dest, "jdk-21"))
}

func TestExtractZip_NoCommonRootKeepsLayout(t *testing.T) {
	archivePath := writeZip(t, []entry{
		{name: "Client/a.bin", content: "a"},
		{name: "Server/b.jar", content: "b"},
	})
	dest := t.TempDir()

	_, err := ExtractZip(archivePath, dest, Options{StripRoot: true})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dest, "Client", "a.bin"))
	assert.FileExists(t, filepath.Join(dest, "Server", "b.jar"))
}

func TestExtractZip_BackslashNames(t *testing.T) {
	archivePath := writeZip(t, []entry{{name: "Client\\Data\\x.bin", content: "x"}})
	dest := t.TempDir()

	_, err := ExtractZip(archivePath, dest, Options{})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dest, "Client", "Data", "x.bin"))
}

func TestExtractZip_RejectsTraversal(t *testing.T) {
	archivePath := writeZip(t, []entry{{name: "../evil.txt", content: "boom"}})
	root := t.TempDir()
	dest := filepath.Join(root, "game")

	_, err := ExtractZip(archivePath, dest, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "traversal")
	assert.NoFileExists(t, filepath.Join(root, "evil.txt"))
}

func TestExtractZip_OverwritesExisting(t *testing.T) {
	archivePath := writeZip(t, []entry{{name: "Client/a.bin", content: "new"}})
	dest := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dest, "Client"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "Client", "a.bin"), []byte("old content"), 0644))

	_, err := ExtractZip(archivePath, dest, Options{})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dest, "Client", "a.bin"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestExtractZip_NotAZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.zip")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0644))

	_, err := ExtractZip(path, t.TempDir(), Options{})
	assert.Error(t, err)
}

func TestExtractTarGz(t *testing.T) {
	archivePath := writeTarGz(t, []tarEntry{
		{name: "jdk-21.0.5+11-jre/", typeflag: tar.TypeDir, mode: 0755},
		{name: "jdk-21.0.5+11-jre/bin/", typeflag: tar.TypeDir, mode: 0755},
		{name: "jdk-21.0.5+11-jre/bin/java", typeflag: tar.TypeReg, content: "#!/bin/sh", mode: 0755},
		{name: "jdk-21.0.5+11-jre/release", typeflag: tar.TypeReg, content: "JAVA_VERSION=21"},
		{name: "jdk-21.0.5+11-jre/bin/java2", typeflag: tar.TypeSymlink, linkname: "java"},
	})
	dest := t.TempDir()

	var calls int
	n, err := Extract(archivePath, dest, Options{
		StripRoot: true,
		Progress: func(current, total int, name string) {
			calls++
			assert.Equal(t, -1, total)
			assert.Equal(t, calls, current)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, calls)
	assert.FileExists(t, filepath.Join(dest, "release"))

	info, err := os.Stat(filepath.Join(dest, "bin", "java"))
	require.NoError(t, err)
	if runtime.GOOS != "windows" {
		assert.Equal(t, os.FileMode(0755), info.Mode().Perm())
		link, err := os.Readlink(filepath.Join(dest, "bin", "java2"))
		require.NoError(t, err)
		assert.Equal(t, "java", link)
	}
}

func TestExtractTarGz_RejectsEscapingSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	archivePath := writeTarGz(t, []tarEntry{
		{name: "root/evil", typeflag: tar.TypeSymlink, linkname: "../../../etc/passwd"},
	})

	_, err := ExtractTarGz(archivePath, t.TempDir(), Options{StripRoot: true})
	assert.Error(t, err)
}

func TestExtract_UnsupportedFormat(t *testing.T) {
	_, err := Extract("runtime.7z", t.TempDir(), Options{})
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestDetectStripPrefix(t *testing.T) {
	tests := []struct {
		name  string
		names []string
		want  string
	}{
		{"github zipball", []string{"owner-repo-abc/", "owner-repo-abc/a.txt"}, "owner-repo-abc/"},
		{"mixed roots", []string{"a/x", "b/y"}, ""},
		{"flat files", []string{"x", "y"}, ""},
		{"empty", nil, ""},
		{"dot prefix", []string{"./jre/bin/java", "./jre/lib"}, "jre/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detectStripPrefix(tt.names))
		})
	}
}
