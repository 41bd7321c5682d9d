package vcs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goplus/llvmsrc/internal/proc"
)

var (
	// ErrRevisionNotFound means the remote has no such tag, branch or commit.
	ErrRevisionNotFound = errors.New("revision not found")

	// ErrNetwork means the remote could not be reached.
	ErrNetwork = errors.New("network failure")

	// ErrNotRepository means a local directory is not a usable checkout.
	ErrNotRepository = errors.New("not a git checkout")
)

// VCS defines the interface for version control operations.
type VCS interface {
	// Sync ensures the local repo exists and is at the specified ref.
	// ref can be branch, tag, or commit hash.
	// If dir doesn't exist, initializes it and fetches ref.
	// If dir exists, fetches ref and checks it out in place.
	Sync(ctx context.Context, remote, ref, dir string) error

	// Head returns the commit hash checked out in dir.
	Head(ctx context.Context, dir string) (string, error)

	// Tags returns all tags from the remote repository.
	Tags(ctx context.Context, remote string) ([]string, error)
}

// gitVCS implements VCS using git.
type gitVCS struct {
	git    string
	runner proc.Runner
}

// GitOption configures gitVCS.
type GitOption func(*gitVCS)

// WithGitPath sets a custom git executable path.
func WithGitPath(path string) GitOption {
	return func(g *gitVCS) {
		if path != "" {
			g.git = path
		}
	}
}

// WithRunner sets the process runner used to invoke git.
func WithRunner(r proc.Runner) GitOption {
	return func(g *gitVCS) {
		g.runner = r
	}
}

// NewGitVCS creates a new git VCS instance.
func NewGitVCS(opts ...GitOption) VCS {
	g := &gitVCS{git: "git", runner: proc.NewExec()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *gitVCS) ensureInit(ctx context.Context, dir string) error {
	if _, err := os.Stat(filepath.Join(dir, ".git")); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		return g.run(ctx, dir, "init", "--quiet")
	}
	return nil
}

func (g *gitVCS) Sync(ctx context.Context, remote, ref, dir string) error {
	if err := g.ensureInit(ctx, dir); err != nil {
		return err
	}
	if err := g.fetch(ctx, remote, dir, ref); err != nil {
		return err
	}
	return g.checkout(ctx, dir, "FETCH_HEAD")
}

func (g *gitVCS) fetch(ctx context.Context, remote, dir, ref string) error {
	args := []string{"fetch", "--depth", "1", remote, ref}
	if err := g.run(ctx, dir, args...); err != nil {
		return fmt.Errorf("fetch %s: %w", ref, err)
	}
	return nil
}

func (g *gitVCS) checkout(ctx context.Context, dir, ref string) error {
	if err := g.run(ctx, dir, "checkout", "--force", "--quiet", ref); err != nil {
		return fmt.Errorf("checkout %s: %w", ref, err)
	}
	return nil
}

// Head reads the checked-out commit straight from .git so that an up-to-date
// tree costs no process invocation. Symbolic refs git stores elsewhere fall
// back to "git rev-parse".
func (g *gitVCS) Head(ctx context.Context, dir string) (string, error) {
	hash, err := readHead(filepath.Join(dir, ".git"))
	switch {
	case err == nil:
		return hash, nil
	case !errors.Is(err, errSymbolicHead):
		return "", fmt.Errorf("%s: %w: %w", dir, ErrNotRepository, err)
	}

	output, err := g.output(ctx, dir, "rev-parse", "--verify", "HEAD")
	if err != nil {
		var exitErr *proc.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("%s: %w: %w", dir, ErrNotRepository, err)
		}
		return "", err
	}
	hash = strings.TrimSpace(output)
	if !isHash(hash) {
		return "", fmt.Errorf("%s: %w: unexpected HEAD %q", dir, ErrNotRepository, hash)
	}
	return hash, nil
}

var errSymbolicHead = errors.New("symbolic HEAD")

func readHead(gitDir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(gitDir, "HEAD"))
	if err != nil {
		return "", err
	}
	head := strings.TrimSpace(string(data))
	if isHash(head) {
		return head, nil
	}
	ref, ok := strings.CutPrefix(head, "ref: ")
	if !ok {
		return "", fmt.Errorf("malformed HEAD %q", head)
	}
	data, err = os.ReadFile(filepath.Join(gitDir, filepath.FromSlash(ref)))
	if err != nil {
		return "", fmt.Errorf("%w: %s", errSymbolicHead, ref)
	}
	if hash := strings.TrimSpace(string(data)); isHash(hash) {
		return hash, nil
	}
	return "", fmt.Errorf("%w: %s", errSymbolicHead, ref)
}

func isHash(s string) bool {
	if len(s) != 40 && len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}

func (g *gitVCS) Tags(ctx context.Context, remote string) ([]string, error) {
	output, err := g.output(ctx, "", "ls-remote", "--tags", "--refs", remote)
	if err != nil {
		return nil, fmt.Errorf("list remote tags: %w", err)
	}

	output = strings.TrimSpace(output)
	if output == "" {
		return nil, nil
	}

	var tags []string
	for _, line := range strings.Split(output, "\n") {
		// format: <hash>\trefs/tags/<tag>
		parts := strings.Split(line, "\t")
		if len(parts) == 2 {
			tag := strings.TrimPrefix(parts[1], "refs/tags/")
			tags = append(tags, tag)
		}
	}
	return tags, nil
}

func (g *gitVCS) run(ctx context.Context, dir string, args ...string) error {
	_, err := g.output(ctx, dir, args...)
	return err
}

func (g *gitVCS) output(ctx context.Context, dir string, args ...string) (string, error) {
	out, err := g.runner.Run(ctx, &proc.Cmd{
		Path: g.git,
		Args: args,
		Dir:  dir,
		// Never block on a credential prompt.
		Env: map[string]string{"GIT_TERMINAL_PROMPT": "0"},
	})
	if err != nil {
		return "", classify(err)
	}
	return out, nil
}

// classify tags git failures with the sentinel matching git's stderr.
func classify(err error) error {
	var exitErr *proc.ExitError
	if !errors.As(err, &exitErr) {
		return err
	}
	msg := strings.ToLower(exitErr.Stderr)
	switch {
	case containsAny(msg,
		"couldn't find remote ref",
		"not our ref",
		"unknown revision",
		"did not match any",
		"invalid refspec"):
		return fmt.Errorf("%w: %w", ErrRevisionNotFound, err)
	case containsAny(msg,
		"could not resolve host",
		"unable to access",
		"could not read from remote",
		"connection refused",
		"connection timed out",
		"operation timed out",
		"network is unreachable",
		"early eof",
		"the remote end hung up"):
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	case containsAny(msg,
		"not a git repository",
		"bad object",
		"corrupt",
		"index file"):
		return fmt.Errorf("%w: %w", ErrNotRepository, err)
	}
	return err
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
