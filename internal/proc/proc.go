// Package proc runs external toolchain commands (git, cmake, ninja) with
// captured exit status, a bounded stderr tail and process-group cancellation.
package proc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
)

var (
	// ErrToolMissing is returned when the executable cannot be found.
	ErrToolMissing = errors.New("tool missing")

	// ErrCancelled is returned when the context ended while the command ran.
	ErrCancelled = errors.New("cancelled")
)

// tailSize bounds the stderr kept for diagnostics.
const tailSize = 4 << 10

// ExitError reports a command that ran and exited with a nonzero status.
type ExitError struct {
	Tool   string
	Args   []string
	Code   int
	Stderr string // last bytes of stderr
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s %s: exit status %d", e.Tool, strings.Join(e.Args, " "), e.Code)
	if e.Stderr != "" {
		msg += ": " + strings.TrimSpace(e.Stderr)
	}
	return msg
}

// Cmd describes one invocation.
type Cmd struct {
	Path string
	Args []string
	Dir  string
	Env  map[string]string // merged over os.Environ()

	// Stdout and Stderr additionally receive the output when non-nil.
	Stdout io.Writer
	Stderr io.Writer
}

func (c *Cmd) String() string {
	return strings.TrimSpace(c.Path + " " + strings.Join(c.Args, " "))
}

// Runner executes commands. Implementations must honor ctx cancellation.
type Runner interface {
	Run(ctx context.Context, c *Cmd) (stdout string, err error)
}

// Exec is the Runner backed by os/exec.
type Exec struct {
	// WaitDelay is how long a terminated process gets to exit before it is
	// killed. Whatever is left of its process group is killed when Run
	// returns.
	WaitDelay time.Duration
}

// NewExec returns an Exec runner with a 10s termination grace period.
func NewExec() *Exec {
	return &Exec{WaitDelay: 10 * time.Second}
}

func (e *Exec) Run(ctx context.Context, c *Cmd) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%s: %w: %w", c.Path, ErrCancelled, err)
	}
	path, err := exec.LookPath(c.Path)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", c.Path, ErrToolMissing, err)
	}

	cmd := exec.CommandContext(ctx, path, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = MergeEnv(os.Environ(), c.Env)
	}
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return terminate(cmd) }
	cmd.WaitDelay = e.WaitDelay

	var stdout strings.Builder
	stderr := &tailWriter{max: tailSize}
	cmd.Stdout = teeTo(&stdout, c.Stdout)
	cmd.Stderr = teeTo(stderr, c.Stderr)

	err = cmd.Run()
	if ctx.Err() != nil {
		killGroup(cmd)
		return "", fmt.Errorf("%s: %w: %w", c.Path, ErrCancelled, ctx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), &ExitError{
				Tool:   c.Path,
				Args:   c.Args,
				Code:   exitErr.ExitCode(),
				Stderr: stderr.String(),
			}
		}
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("%s: %w: %w", c.Path, ErrToolMissing, err)
		}
		return "", fmt.Errorf("%s: %w", c.Path, err)
	}
	return stdout.String(), nil
}

func teeTo(w io.Writer, extra io.Writer) io.Writer {
	if extra == nil {
		return w
	}
	return io.MultiWriter(w, extra)
}

// MergeEnv overlays override on top of base and returns a sorted environ.
func MergeEnv(base []string, override map[string]string) []string {
	envMap := make(map[string]string, len(base))
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			envMap[k] = v
		}
	}
	for k, v := range override {
		envMap[k] = v
	}
	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+envMap[k])
	}
	return out
}

// tailWriter keeps the last max bytes written to it.
type tailWriter struct {
	max int
	buf []byte
}

func (t *tailWriter) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) >= t.max {
		t.buf = append(t.buf[:0], p[len(p)-t.max:]...)
		return n, nil
	}
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return n, nil
}

func (t *tailWriter) String() string { return string(t.buf) }
