package shortcut

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindDesktop(t *testing.T) {
	profile := t.TempDir()

	_, err := findDesktop(profile)
	assert.Error(t, err)

	_, err = findDesktop("")
	assert.Error(t, err)

	oneDrive := filepath.Join(profile, "OneDrive", "Desktop")
	require.NoError(t, os.MkdirAll(oneDrive, 0755))
	got, err := findDesktop(profile)
	require.NoError(t, err)
	assert.Equal(t, oneDrive, got)

	plain := filepath.Join(profile, "Desktop")
	require.NoError(t, os.MkdirAll(plain, 0755))
	got, err = findDesktop(profile)
	require.NoError(t, err)
	assert.Equal(t, plain, got, "the regular desktop wins")
}

func TestLinkPath(t *testing.T) {
	assert.Equal(t, filepath.Join("desk", "Butter Launcher.lnk"), LinkPath("desk", "Butter Launcher"))
}

func TestCreate_Unsupported(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shortcuts are supported on windows")
	}
	_, err := Create(Shortcut{Name: "x", Target: "y"})
	assert.ErrorIs(t, err, ErrUnsupported)
}
