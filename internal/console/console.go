// Package console prints progress events for a terminal or as JSON lines
// for scripts driving the launcher.
package console

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/distantorigin/butter-launcher/internal/progress"
)

var phaseLabels = map[progress.Phase]string{
	progress.PhasePWRDownload: "Downloading patch",
	progress.PhasePatching:    "Applying patch",
	progress.PhaseFixDownload: "Downloading fix",
	progress.PhaseFixExtract:  "Extracting fix",
	progress.PhaseJREDownload: "Downloading Java runtime",
	progress.PhaseJREExtract:  "Extracting Java runtime",
	progress.PhaseOnlinePatch: "Downloading online client",
}

// Printer writes human readable output unless quiet
type Printer struct {
	mu    sync.Mutex
	out   io.Writer
	quiet bool
	json  bool

	phase progress.Phase
	step  int
}

// New creates a printer. In JSON mode every event is written as one line
// and Log output is suppressed.
func New(out io.Writer, quiet, jsonLines bool) *Printer {
	return &Printer{out: out, quiet: quiet, json: jsonLines}
}

// Log prints a message if not in quiet or JSON mode
func (p *Printer) Log(format string, args ...interface{}) {
	if p.quiet || p.json {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format+"\n", args...)
}

// JSON writes v as a single line regardless of mode
func (p *Printer) JSON(v interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return json.NewEncoder(p.out).Encode(v)
}

// Emit renders one progress event. Terminal output is throttled to every
// tenth percent per phase.
func (p *Printer) Emit(e progress.Event) {
	if p.json {
		_ = p.JSON(e)
		return
	}
	if p.quiet && e.Kind != progress.KindError && e.Kind != progress.KindLaunchError {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch e.Kind {
	case progress.KindStarted:
		fmt.Fprintln(p.out, "Installing...")
	case progress.KindProgress:
		p.renderProgress(e)
	case progress.KindFinished:
		if e.Version != nil {
			fmt.Fprintf(p.out, "Ready: %s\n", e.Version)
		} else {
			fmt.Fprintln(p.out, "Done.")
		}
	case progress.KindError:
		fmt.Fprintf(p.out, "Failed: %s\n", e.Message)
	case progress.KindLaunched:
		fmt.Fprintln(p.out, "Game started.")
	case progress.KindLaunchFinished:
		fmt.Fprintln(p.out, "Game exited.")
	case progress.KindLaunchError:
		if e.Message != "" {
			fmt.Fprintf(p.out, "Game failed: %s\n", e.Message)
		} else {
			fmt.Fprintln(p.out, "Game failed.")
		}
	}
}

func (p *Printer) renderProgress(e progress.Event) {
	label, ok := phaseLabels[e.Phase]
	if !ok {
		label = string(e.Phase)
	}

	if e.Phase != p.phase {
		p.phase = e.Phase
		p.step = -1
		if e.Percent == progress.Indeterminate {
			fmt.Fprintf(p.out, "%s...\n", label)
			return
		}
	}
	if e.Percent == progress.Indeterminate {
		return
	}

	step := e.Percent / 10
	if step <= p.step {
		return
	}
	p.step = step
	fmt.Fprintf(p.out, "%s... %d%%\n", label, e.Percent)
}
