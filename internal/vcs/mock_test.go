package vcs

import (
	"context"
	"strings"

	"github.com/goplus/llvmsrc/internal/proc"
)

// mockRunner implements proc.Runner for unit testing.
type mockRunner struct {
	calls   []string
	runFunc func(c *proc.Cmd) (string, error)
}

func (m *mockRunner) Run(ctx context.Context, c *proc.Cmd) (string, error) {
	m.calls = append(m.calls, strings.Join(c.Args, " "))
	if m.runFunc != nil {
		return m.runFunc(c)
	}
	return "", nil
}
