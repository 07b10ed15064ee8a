// Package progress carries install, patch and launch events from the
// orchestration core to whatever presentation layer subscribes to them.
//
// Every operation gets its own Sink. Producers call Emit from download and
// subprocess goroutines, so implementations must be safe for concurrent use
// and must never block for long.
package progress

import (
	"sync"

	"github.com/distantorigin/butter-launcher/internal/version"
)

// Kind identifies the shape of an Event
type Kind string

const (
	KindStarted  Kind = "started"
	KindProgress Kind = "progress"
	KindFinished Kind = "finished"
	KindError    Kind = "error"

	KindLaunched       Kind = "launched"
	KindLaunchFinished Kind = "launch-finished"
	KindLaunchError    Kind = "launch-error"
)

// Phase names the step a progress event belongs to
type Phase string

const (
	PhasePWRDownload Phase = "pwr-download"
	PhasePatching    Phase = "patching"
	PhaseFixDownload Phase = "fix-download"
	PhaseFixExtract  Phase = "fix-extract"
	PhaseJREDownload Phase = "jre-download"
	PhaseJREExtract  Phase = "jre-extract"
	PhaseOnlinePatch Phase = "online-patch"
)

// Indeterminate is reported whenever a percentage cannot be computed
const Indeterminate = -1

// Event is a single progress or result notification
type Event struct {
	Kind    Kind                 `json:"kind"`
	Phase   Phase                `json:"phase,omitempty"`
	Percent int                  `json:"percent"`
	Total   int64                `json:"total,omitempty"`
	Current int64                `json:"current,omitempty"`
	Version *version.GameVersion `json:"version,omitempty"`
	Message string               `json:"message,omitempty"`
}

// Terminal reports whether e ends an operation
func (e Event) Terminal() bool {
	switch e.Kind {
	case KindFinished, KindError, KindLaunchFinished, KindLaunchError:
		return true
	}
	return false
}

// Boundary reports whether e must survive throttling: phase edges,
// indeterminate updates and anything that is not plain progress.
func (e Event) Boundary() bool {
	if e.Kind != KindProgress {
		return true
	}
	return e.Percent == Indeterminate || e.Percent == 0 || e.Percent == 100
}

// Started builds the event emitted at the top of an operation
func Started() Event {
	return Event{Kind: KindStarted}
}

// Update builds a progress event without byte counts
func Update(phase Phase, percent int) Event {
	return Event{Kind: KindProgress, Phase: phase, Percent: percent}
}

// Bytes builds a progress event carrying byte or entry counts
func Bytes(phase Phase, percent int, total, current int64) Event {
	if total < 0 {
		total = 0
	}
	return Event{Kind: KindProgress, Phase: phase, Percent: percent, Total: total, Current: current}
}

// Finished builds the success terminal event
func Finished(v version.GameVersion) Event {
	return Event{Kind: KindFinished, Percent: 100, Version: &v}
}

// Failed builds the failure terminal event
func Failed(message string) Event {
	return Event{Kind: KindError, Message: message}
}

// Sink receives events for one operation
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event
var Discard Sink = SinkFunc(func(Event) {})

// OrDiscard returns s, or Discard when s is nil
func OrDiscard(s Sink) Sink {
	if s == nil {
		return Discard
	}
	return s
}

type tee []Sink

func (t tee) Emit(e Event) {
	for _, s := range t {
		s.Emit(e)
	}
}

// Tee fans events out to several sinks in order
func Tee(sinks ...Sink) Sink {
	out := make(tee, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Recorder keeps an ordered, replayable copy of every event
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a snapshot of the recorded events
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Phase returns the progress events recorded for one phase
func (r *Recorder) Phase(p Phase) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == KindProgress && e.Phase == p {
			out = append(out, e)
		}
	}
	return out
}

// Phases returns the distinct phases in the order they were first seen
func (r *Recorder) Phases() []Phase {
	var out []Phase
	seen := make(map[Phase]bool)
	for _, e := range r.Events() {
		if e.Kind != KindProgress || seen[e.Phase] {
			continue
		}
		seen[e.Phase] = true
		out = append(out, e.Phase)
	}
	return out
}

// Terminal returns the terminal events recorded so far
func (r *Recorder) Terminal() []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Terminal() {
			out = append(out, e)
		}
	}
	return out
}
