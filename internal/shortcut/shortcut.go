// Package shortcut creates a desktop shortcut that launches the game
// through the launcher.
package shortcut

import (
	"errors"
	"os"
	"path/filepath"
)

// ErrUnsupported is returned on platforms without .lnk shortcuts
var ErrUnsupported = errors.New("desktop shortcuts are not supported on this platform")

// Shortcut describes the link to create
type Shortcut struct {
	Name        string
	Target      string
	Args        []string
	WorkingDir  string
	Description string
}

// desktopDirs lists candidate desktop folders in preference order
func desktopDirs(userProfile string) []string {
	if userProfile == "" {
		return nil
	}
	return []string{
		filepath.Join(userProfile, "Desktop"),
		filepath.Join(userProfile, "OneDrive", "Desktop"),
	}
}

// findDesktop returns the first existing desktop folder
func findDesktop(userProfile string) (string, error) {
	for _, dir := range desktopDirs(userProfile) {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir, nil
		}
	}
	return "", errors.New("desktop directory not found")
}

// LinkPath returns where Create puts the shortcut
func LinkPath(desktop, name string) string {
	return filepath.Join(desktop, name+".lnk")
}
