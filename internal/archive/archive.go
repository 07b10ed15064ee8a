// Package archive unpacks fix and runtime archives into install directories.
package archive

import (
	"archive/tar"
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/distantorigin/butter-launcher/internal/paths"
)

// ErrUnsupportedFormat is returned for archives that are neither zip nor tar.gz
var ErrUnsupportedFormat = errors.New("unsupported archive format")

// ProgressFunc is called after each extracted entry. total is -1 when the
// archive is streamed and the entry count is unknown.
type ProgressFunc func(current, total int, name string)

// Options controls extraction
type Options struct {
	// StripRoot drops a single top-level directory shared by every entry
	StripRoot bool
	Progress  ProgressFunc
}

// Extract unpacks a .zip, .tar.gz or .tgz archive into targetDir and returns
// the number of entries written
func Extract(archivePath, targetDir string, opts Options) (int, error) {
	name := strings.ToLower(archivePath)
	switch {
	case strings.HasSuffix(name, ".zip"):
		return ExtractZip(archivePath, targetDir, opts)
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return ExtractTarGz(archivePath, targetDir, opts)
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(archivePath))
	}
}

// ExtractZip unpacks a zip archive. Progress is reported once per entry, so
// an archive of n entries yields exactly n callbacks.
func ExtractZip(archivePath, targetDir string, opts Options) (int, error) {
	reader, err := openZip(archivePath)
	if err != nil {
		return 0, err
	}
	defer reader.Close()

	names := make([]string, len(reader.File))
	for i, f := range reader.File {
		names[i] = f.Name
	}
	stripPrefix := ""
	if opts.StripRoot {
		stripPrefix = detectStripPrefix(names)
	}

	var entries []*zip.File
	for _, f := range reader.File {
		if relPath(f.Name, stripPrefix) != "" {
			entries = append(entries, f)
		}
	}

	total := len(entries)
	for i, f := range entries {
		rel := relPath(f.Name, stripPrefix)

		target, err := resolveTarget(targetDir, rel)
		if err != nil {
			return i, err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return i, fmt.Errorf("failed to create directory %s: %w", rel, err)
			}
		} else if err := extractZipFile(f, target); err != nil {
			return i, fmt.Errorf("failed to extract %s: %w", rel, err)
		}

		if opts.Progress != nil {
			opts.Progress(i+1, total, rel)
		}
	}

	return total, nil
}

// ExtractTarGz unpacks a gzip-compressed tarball. With StripRoot the first
// path component of every entry is dropped (tar --strip-components=1).
func ExtractTarGz(archivePath, targetDir string, opts Options) (int, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return 0, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	count := 0

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to read tar entry: %w", err)
		}

		rel := relPath(hdr.Name, "")
		if opts.StripRoot {
			rel = stripFirstComponent(rel)
		}
		if rel == "" {
			continue
		}

		target, err := resolveTarget(targetDir, rel)
		if err != nil {
			return count, err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return count, fmt.Errorf("failed to create directory %s: %w", rel, err)
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, os.FileMode(hdr.Mode).Perm()); err != nil {
				return count, fmt.Errorf("failed to extract %s: %w", rel, err)
			}
		case tar.TypeSymlink:
			if err := extractSymlink(targetDir, target, hdr.Linkname); err != nil {
				return count, fmt.Errorf("failed to link %s: %w", rel, err)
			}
		default:
			continue
		}

		count++
		if opts.Progress != nil {
			opts.Progress(count, -1, rel)
		}
	}

	return count, nil
}

// openZip tolerates ErrInsecurePath; entries are validated one by one
func openZip(archivePath string) (*zip.ReadCloser, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("failed to open zip: %w", err)
	}
	return reader, nil
}

// detectStripPrefix finds the single top-level directory shared by every
// entry, as in GitHub zipballs ("owner-repo-ref/")
func detectStripPrefix(names []string) string {
	if len(names) == 0 {
		return ""
	}

	first := slashed(names[0])
	idx := strings.Index(first, "/")
	if idx <= 0 {
		return ""
	}

	prefix := first[:idx+1]
	for _, name := range names {
		if !strings.HasPrefix(slashed(name), prefix) {
			return ""
		}
	}
	return prefix
}

func slashed(name string) string {
	return strings.TrimPrefix(strings.ReplaceAll(name, "\\", "/"), "./")
}

// relPath normalizes an entry name and removes prefix; "" means the entry
// is the stripped root itself
func relPath(name, prefix string) string {
	n := slashed(name)
	if prefix != "" {
		n = strings.TrimPrefix(n, prefix)
	}
	n = strings.TrimSuffix(n, "/")
	if n == "" || n == "." {
		return ""
	}
	return paths.Normalize(n)
}

func stripFirstComponent(rel string) string {
	_, rest, ok := strings.Cut(rel, "/")
	if !ok {
		return ""
	}
	return rest
}

func resolveTarget(targetDir, rel string) (string, error) {
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("path traversal attempt detected: %s", rel)
	}
	return paths.ValidatePath(targetDir, filepath.Join(targetDir, paths.Denormalize(rel)))
}

func extractZipFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}
	return writeFile(target, rc, mode)
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	if mode == 0 {
		mode = 0644
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func extractSymlink(targetDir, target, linkname string) error {
	resolved := linkname
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.Dir(target), resolved)
	}
	if _, err := paths.ValidatePath(targetDir, resolved); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	_ = os.Remove(target)
	return os.Symlink(linkname, target)
}
