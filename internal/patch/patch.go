// Package patch drives the external binary patch tool (butler) that turns a
// .pwr file into an installed build.
package patch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/distantorigin/butter-launcher/internal/progress"
)

// ErrToolExit is returned when the patch tool exits with a non-zero code
var ErrToolExit = errors.New("patch tool failed")

// StagingDirName is created inside the install directory while patching
const StagingDirName = "staging-temp"

// Applier runs "butler apply" against an install directory
type Applier struct {
	tool string
	// StrictExit turns a non-zero exit code into ErrToolExit. When false the
	// exit code is only logged.
	StrictExit bool

	command func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewApplier creates an applier for the tool at path
func NewApplier(tool string) *Applier {
	return &Applier{
		tool:       tool,
		StrictExit: true,
		command:    exec.CommandContext,
	}
}

// Apply patches destDir with patchFile, reporting "patching" progress. The
// sequence always starts indeterminate and ends at 100 once the tool exits.
func (a *Applier) Apply(ctx context.Context, patchFile, destDir string, sink progress.Sink) error {
	sink = progress.OrDiscard(sink)

	stagingDir := filepath.Join(destDir, StagingDirName)
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(stagingDir); err != nil {
			log.Debugf("failed to remove staging directory %s: %v", stagingDir, err)
		}
	}()

	sink.Emit(progress.Update(progress.PhasePatching, progress.Indeterminate))

	cmd := a.command(ctx, a.tool, "apply", "--json", "--staging-dir", stagingDir, patchFile, destDir)

	stderr := log.WithField("tool", filepath.Base(a.tool)).WriterLevel(log.WarnLevel)
	defer stderr.Close()
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to capture patch tool output: %w", err)
	}

	log.Debugf("running %s", cmd.String())
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start patch tool: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	malformed := 0
	for scanner.Scan() {
		line := ParseLine(scanner.Text())
		switch line.Kind {
		case LineProgress:
			sink.Emit(progress.Update(progress.PhasePatching, line.Percent))
		case LineMalformed:
			malformed++
		}
	}
	if err := scanner.Err(); err != nil {
		log.Debugf("stopped parsing patch tool output: %v", err)
		// keep the pipe flowing so the tool can exit
		if _, err := io.Copy(io.Discard, stdout); err != nil {
			log.Debugf("failed to drain patch tool output: %v", err)
		}
	}
	if malformed > 0 {
		log.Debugf("ignored %d non-JSON lines from patch tool", malformed)
	}

	waitErr := cmd.Wait()
	sink.Emit(progress.Update(progress.PhasePatching, 100))

	if waitErr == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("patching interrupted: %w", ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		if !a.StrictExit {
			log.Warnf("patch tool exited with code %d, continuing", exitErr.ExitCode())
			return nil
		}
		return fmt.Errorf("%w: exit code %d", ErrToolExit, exitErr.ExitCode())
	}
	return fmt.Errorf("failed to run patch tool: %w", waitErr)
}
