package channel

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Channel is a release track of game builds
type Channel string

const (
	Release    Channel = "release"
	PreRelease Channel = "pre-release"
)

// ChannelFile remembers the last channel the user picked
const ChannelFile = ".butter-channel"

// Parse converts user input into a Channel
func Parse(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "release", "stable", "":
		return Release, nil
	case "pre-release", "prerelease", "pre":
		return PreRelease, nil
	default:
		return "", fmt.Errorf("unknown channel %q (expected release or pre-release)", s)
	}
}

// Valid reports whether c is one of the known channels
func (c Channel) Valid() bool {
	return c == Release || c == PreRelease
}

func (c Channel) String() string {
	return string(c)
}

// Save writes the channel to the channel file in the specified directory
func Save(baseDir string, c Channel) error {
	if !c.Valid() {
		return fmt.Errorf("refusing to save invalid channel %q", c)
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return fmt.Errorf("failed to create base directory: %w", err)
	}
	channelPath := filepath.Join(baseDir, ChannelFile)
	return os.WriteFile(channelPath, []byte(c), 0644)
}

// Load reads the channel from the channel file in the specified directory
func Load(baseDir string) (Channel, error) {
	channelPath := filepath.Join(baseDir, ChannelFile)
	data, err := os.ReadFile(channelPath)
	if err != nil {
		return "", err
	}
	return Parse(string(data))
}
