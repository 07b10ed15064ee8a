//go:build !windows

package shortcut

// Create is only implemented on Windows
func Create(Shortcut) (string, error) {
	return "", ErrUnsupported
}
