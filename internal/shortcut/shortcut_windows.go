//go:build windows

package shortcut

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
	log "github.com/sirupsen/logrus"
)

// Create writes the shortcut onto the user's desktop through WScript.Shell
func Create(s Shortcut) (string, error) {
	desktop, err := findDesktop(os.Getenv("USERPROFILE"))
	if err != nil {
		return "", err
	}

	if err := ole.CoInitialize(0); err != nil {
		return "", fmt.Errorf("failed to initialize COM: %w", err)
	}
	defer ole.CoUninitialize()

	unknown, err := oleutil.CreateObject("WScript.Shell")
	if err != nil {
		return "", fmt.Errorf("failed to create WScript.Shell: %w", err)
	}
	defer unknown.Release()

	shell, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return "", fmt.Errorf("failed to query shell interface: %w", err)
	}
	defer shell.Release()

	linkPath := LinkPath(desktop, s.Name)
	link, err := oleutil.CallMethod(shell, "CreateShortcut", linkPath)
	if err != nil {
		return "", fmt.Errorf("failed to create shortcut: %w", err)
	}
	// Don't call link.Clear() - it causes crashes

	linkDisp := link.ToIDispatch()
	defer linkDisp.Release()

	props := []struct {
		name  string
		value interface{}
	}{
		{"TargetPath", s.Target},
		{"Arguments", strings.Join(s.Args, " ")},
		{"WorkingDirectory", s.WorkingDir},
		{"Description", s.Description},
		{"WindowStyle", 1},
	}
	for _, p := range props {
		if _, err := oleutil.PutProperty(linkDisp, p.name, p.value); err != nil {
			return "", fmt.Errorf("failed to set shortcut %s: %w", p.name, err)
		}
	}

	if _, err := oleutil.CallMethod(linkDisp, "Save"); err != nil {
		return "", fmt.Errorf("failed to save shortcut: %w", err)
	}

	log.Infof("created desktop shortcut %s", linkPath)
	return linkPath, nil
}
