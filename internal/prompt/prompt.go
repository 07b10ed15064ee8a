package prompt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/distantorigin/butter-launcher/internal/channel"
	"github.com/distantorigin/butter-launcher/internal/version"
)

// Prompter asks the user questions on a terminal
type Prompter struct {
	NonInteractive bool

	in  *bufio.Reader
	out io.Writer
}

// New creates a prompter reading from in and writing to out
func New(in io.Reader, out io.Writer, nonInteractive bool) *Prompter {
	return &Prompter{NonInteractive: nonInteractive, in: bufio.NewReader(in), out: out}
}

// Stdio creates a prompter on the process terminal
func Stdio(nonInteractive bool) *Prompter {
	return New(os.Stdin, os.Stdout, nonInteractive)
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Confirm asks the user to confirm an action
func (p *Prompter) Confirm(prompt string) bool {
	if p.NonInteractive {
		return true
	}

	fmt.Fprintf(p.out, "%s (y/n): ", prompt)
	response, err := p.readLine()
	if err != nil {
		return false
	}
	response = strings.ToLower(response)
	return response == "y" || response == "yes"
}

// Input asks for a free-form value, returning def on empty input
func (p *Prompter) Input(prompt, def string) string {
	if p.NonInteractive {
		return def
	}

	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", prompt, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", prompt)
	}
	response, err := p.readLine()
	if err != nil || response == "" {
		return def
	}
	return response
}

// ChannelMenu displays an interactive menu to select a build channel
func (p *Prompter) ChannelMenu(current channel.Channel) channel.Channel {
	if !current.Valid() {
		current = channel.Release
	}
	if p.NonInteractive {
		return current
	}

	fmt.Fprintln(p.out, "\nGame Channel Selection")
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, "  1. Release")
	fmt.Fprintln(p.out, "     Published builds, recommended for most players")
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, "  2. Pre-release")
	fmt.Fprintln(p.out, "     Early builds that may be unstable")
	fmt.Fprintln(p.out)
	fmt.Fprintf(p.out, "Enter your choice (1 or 2) [%s]: ", current)

	for {
		response, err := p.readLine()
		if err != nil {
			fmt.Fprintf(p.out, "\nError reading input, keeping %s.\n", current)
			return current
		}

		switch response {
		case "":
			return current
		case "1":
			return channel.Release
		case "2":
			return channel.PreRelease
		default:
			fmt.Fprint(p.out, "Invalid choice. Please enter 1 or 2: ")
		}
	}
}

// VersionMenu lets the user pick one of the resolved builds. Builds are listed
// newest first; Enter picks the newest.
func (p *Prompter) VersionMenu(versions []version.GameVersion) (version.GameVersion, bool) {
	if len(versions) == 0 {
		return version.GameVersion{}, false
	}
	newest := versions[len(versions)-1]
	if p.NonInteractive {
		return newest, true
	}

	fmt.Fprintln(p.out, "\nAvailable builds:")
	fmt.Fprintln(p.out)
	for i := len(versions) - 1; i >= 0; i-- {
		v := versions[i]
		var tags []string
		if v.IsLatest {
			tags = append(tags, "latest")
		}
		if v.Installed {
			tags = append(tags, "installed")
		}
		label := v.String()
		if len(tags) > 0 {
			label += " [" + strings.Join(tags, ", ") + "]"
		}
		fmt.Fprintf(p.out, "  %d. %s\n", len(versions)-i, label)
	}
	fmt.Fprintln(p.out)
	fmt.Fprintf(p.out, "Enter choice (1-%d) or 0 to cancel [1]: ", len(versions))

	for {
		response, err := p.readLine()
		if err != nil {
			return version.GameVersion{}, false
		}
		if response == "" {
			return newest, true
		}
		if response == "0" {
			return version.GameVersion{}, false
		}

		choice, err := strconv.Atoi(response)
		if err == nil && choice >= 1 && choice <= len(versions) {
			return versions[len(versions)-choice], true
		}
		fmt.Fprintf(p.out, "Invalid choice. Please enter 0-%d: ", len(versions))
	}
}
