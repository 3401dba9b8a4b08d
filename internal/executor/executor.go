// Package executor runs the external commands behind every upgrade step,
// either for real or as a dry run that only reports what would run.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/breeze-rmm/osupgrade/internal/logging"
	"github.com/breeze-rmm/osupgrade/internal/privilege"
)

var log = logging.L("executor")

const (
	// DefaultTimeout bounds a single command when no timeout is configured.
	DefaultTimeout = time.Hour

	// MaxOutputSize is the maximum size of stdout/stderr to capture
	MaxOutputSize = 1024 * 1024 // 1MB
)

// Mode selects whether commands actually run.
type Mode int

const (
	// ModeReal runs commands and captures their output.
	ModeReal Mode = iota
	// ModeSimulate prints the commands that would run and runs nothing.
	ModeSimulate
)

// ModeFor maps the dry-run setting to a Mode.
func ModeFor(dryRun bool) Mode {
	if dryRun {
		return ModeSimulate
	}
	return ModeReal
}

func (m Mode) String() string {
	if m == ModeSimulate {
		return "simulate"
	}
	return "real"
}

// Outcome is the result of an Output call. Simulated outcomes carry no output.
type Outcome struct {
	Simulated bool
	Stdout    []byte
	Stderr    string
	ExitCode  int
}

// CommandError reports a command that could not be started, timed out, or
// exited non-zero on a status-checked call.
type CommandError struct {
	Argv     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	cmd := strings.Join(e.Argv, " ")
	if e.Err != nil {
		return fmt.Sprintf("command %q failed: %v", cmd, e.Err)
	}
	msg := fmt.Sprintf("command %q exited with status %d", cmd, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ExecFunc starts argv, streams its output to stdout and stderr, and waits.
// A non-zero exit is reported through exitCode with a nil error; err is
// reserved for commands that could not run to completion.
type ExecFunc func(ctx context.Context, argv []string, stdout, stderr io.Writer) (exitCode int, err error)

// Recorder is told about every command that reached the process layer.
type Recorder interface {
	RecordCommand(argv []string, exitCode int, err error)
}

// Options configures a Runner. Zero values select the defaults.
type Options struct {
	Timeout time.Duration
	// DryRunOutput receives the "Dry running:" lines in simulate mode.
	DryRunOutput io.Writer
	// Terminal receives the live output of status-checked commands.
	Terminal io.Writer
	Exec     ExecFunc
	Recorder Recorder
}

// Runner is the single entry point through which commands are executed.
type Runner struct {
	mode Mode
	opts Options
}

// New creates a Runner for mode.
func New(mode Mode, opts Options) *Runner {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.DryRunOutput == nil {
		opts.DryRunOutput = os.Stdout
	}
	if opts.Terminal == nil {
		opts.Terminal = os.Stdout
	}
	if opts.Exec == nil {
		opts.Exec = SystemExec
	}
	return &Runner{mode: mode, opts: opts}
}

// Mode reports the runner's execution mode.
func (r *Runner) Mode() Mode {
	return r.mode
}

// Status runs argv under cred and fails if it exits non-zero.
func (r *Runner) Status(ctx context.Context, cred privilege.Credential, argv ...string) error {
	full := cred.Wrap(argv)
	if r.simulate(full) {
		return nil
	}

	var stderr bytes.Buffer
	exitCode, err := r.run(ctx, full, r.opts.Terminal, io.MultiWriter(r.opts.Terminal, &limitedWriter{buf: &stderr, limit: MaxOutputSize}))
	if err != nil {
		return &CommandError{Argv: full, ExitCode: -1, Stderr: tail(stderr.String()), Err: err}
	}
	if exitCode != 0 {
		return &CommandError{Argv: full, ExitCode: exitCode, Stderr: tail(stderr.String())}
	}
	return nil
}

// Output runs argv under cred and captures its stdout. The exit code is left
// for the caller to judge; only spawn failures and timeouts are errors.
func (r *Runner) Output(ctx context.Context, cred privilege.Credential, argv ...string) (Outcome, error) {
	full := cred.Wrap(argv)
	if r.simulate(full) {
		return Outcome{Simulated: true}, nil
	}

	var stdout, stderr bytes.Buffer
	exitCode, err := r.run(ctx, full,
		&limitedWriter{buf: &stdout, limit: MaxOutputSize},
		&limitedWriter{buf: &stderr, limit: MaxOutputSize},
	)
	if err != nil {
		return Outcome{}, &CommandError{Argv: full, ExitCode: -1, Stderr: tail(stderr.String()), Err: err}
	}
	if exitCode != 0 {
		log.Debug("command exited non-zero", "argv", full, "exitCode", exitCode, "stderr", tail(stderr.String()))
	}
	return Outcome{Stdout: stdout.Bytes(), Stderr: tail(stderr.String()), ExitCode: exitCode}, nil
}

func (r *Runner) simulate(argv []string) bool {
	if r.mode != ModeSimulate {
		return false
	}
	fmt.Fprintf(r.opts.DryRunOutput, "Dry running: %s\n", strings.Join(argv, " "))
	log.Debug("simulated command", "argv", argv)
	return true
}

func (r *Runner) run(ctx context.Context, argv []string, stdout, stderr io.Writer) (int, error) {
	if len(argv) == 0 {
		return -1, errors.New("empty command")
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	logger := logging.FromContext(ctx, log)
	logAt := logger.Debug
	if privilege.RequiresElevation(commandName(argv)) {
		logAt = logger.Info
	}
	logAt("running command", "argv", argv)

	start := time.Now()
	exitCode, err := r.opts.Exec(ctx, argv, stdout, stderr)
	if err == nil && ctx.Err() == context.DeadlineExceeded {
		err = fmt.Errorf("timed out after %s", r.opts.Timeout)
	}

	logger.Debug("command finished", "argv", argv, "exitCode", exitCode, logging.KeyDurationMs, time.Since(start).Milliseconds())
	if r.opts.Recorder != nil {
		r.opts.Recorder.RecordCommand(argv, exitCode, err)
	}
	return exitCode, err
}

// commandName returns the tool being run, looking past an elevation prefix.
func commandName(argv []string) string {
	for _, arg := range argv {
		switch baseName(arg) {
		case "doas", "sudo":
			continue
		}
		return arg
	}
	return ""
}

func baseName(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// SystemExec is the ExecFunc backed by os/exec. The child runs in its own
// process group, which is killed when ctx ends.
func SystemExec(ctx context.Context, argv []string, stdout, stderr io.Writer) (int, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return -1, fmt.Errorf("timed out: %w", ctxErr)
		}
		return -1, ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// tail keeps the last lines of stderr for error messages.
func tail(s string) string {
	s = strings.TrimSpace(s)
	lines := strings.Split(s, "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, "\n")
}

// limitedWriter wraps a buffer with a size limit
type limitedWriter struct {
	buf     *bytes.Buffer
	limit   int
	written int
}

// Write always reports the full length of p so that io.MultiWriter chains
// keep going once the cap is reached.
func (w *limitedWriter) Write(p []byte) (int, error) {
	orig := len(p)
	if w.written >= w.limit {
		return orig, nil
	}

	remaining := w.limit - w.written
	if len(p) > remaining {
		p = p[:remaining]
	}

	n, err := w.buf.Write(p)
	w.written += n
	return orig, err
}
