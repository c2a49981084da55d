// Package engine invokes the external transformation engine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"

	"github.com/timmy/transformer/internal/domain"
)

// Engine runs one transformation described by an execution context and
// writes its task reports to ec.ReportsSink.
type Engine interface {
	Execute(ctx context.Context, ec *domain.ExecutionContext) error
}

// Func adapts a function to Engine.
type Func func(ctx context.Context, ec *domain.ExecutionContext) error

// Execute calls f.
func (f Func) Execute(ctx context.Context, ec *domain.ExecutionContext) error {
	return f(ctx, ec)
}

// Command runs the hale command line interface as a child process.
// The process only stops early when ctx is cancelled.
type Command struct {
	Path string
	Args []string
}

// NewCommand creates a command engine; args precede the generated arguments.
func NewCommand(path string, args ...string) *Command {
	return &Command{Path: path, Args: args}
}

// Execute runs the engine and waits for it to exit. Output goes to the job's log sink.
func (c *Command) Execute(ctx context.Context, ec *domain.ExecutionContext) error {
	if c.Path == "" {
		return errors.New("engine command is not configured")
	}

	cmd := exec.CommandContext(ctx, c.Path, c.Arguments(ec)...)
	out := ec.LogSink
	if out == nil {
		out = io.Discard
	}
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("engine exited with code %d: %w", exitErr.ExitCode(), err)
		}
		return fmt.Errorf("failed to run engine: %w", err)
	}
	return nil
}

// Arguments builds the command line for an execution context.
func (c *Command) Arguments(ec *domain.ExecutionContext) []string {
	args := append([]string{}, c.Args...)
	args = append(args, "-project", ec.ProjectLocation)

	for _, src := range ec.TransformedSources() {
		args = append(args, "-source", src.Location)
		if src.ProviderID != "" {
			args = append(args, "-providerId", src.ProviderID)
		}
		args = appendSettings(args, src.Settings)
	}

	args = append(args, "-target", ec.TargetLocation)
	if ec.PresetID != "" {
		args = append(args, "-preset", ec.PresetID)
	} else {
		args = append(args, "-providerId", ec.TargetProviderID)
	}
	args = appendSettings(args, ec.TargetSettings)

	if ec.ReportsSink != "" {
		args = append(args, "-reportsOut", ec.ReportsSink)
	}
	if ec.LogException {
		args = append(args, "-stacktrace")
	}
	return args
}

func appendSettings(args []string, settings domain.Settings) []string {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-S"+k, fmt.Sprint(settings[k]))
	}
	return args
}
