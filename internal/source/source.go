// Package source keeps working copies of the LLVM source tree under the cache
// root, one directory per requested revision.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goplus/llvmsrc/internal/jsonfile"
	"github.com/goplus/llvmsrc/internal/vcs"
)

var (
	ErrNetworkFailure   = vcs.ErrNetwork
	ErrRevisionNotFound = vcs.ErrRevisionNotFound
	ErrCorruptLocalTree = errors.New("corrupt local tree")
)

// recordFile sits at the root of every tree and names what was checked out.
const recordFile = ".llvmsrc-revision.json"

// Tree is a working copy at a known revision.
type Tree struct {
	Dir      string
	Revision string // as requested: tag, branch or commit
	Commit   string // resolved HEAD
}

type record struct {
	Remote   string    `json:"remote"`
	Revision string    `json:"revision"`
	Commit   string    `json:"commit"`
	SyncTime time.Time `json:"sync_time"`
}

// Error wraps every acquisition failure with the revision and directory.
type Error struct {
	Revision string
	Dir      string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("acquire %s in %s: %v", e.Revision, e.Dir, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Acquirer fetches and reuses source trees below root.
type Acquirer struct {
	vcs    vcs.VCS
	remote string
	root   string
	log    *slog.Logger
}

// NewAcquirer returns an Acquirer storing trees in root/<revision>.
func NewAcquirer(v vcs.VCS, remote, root string, log *slog.Logger) *Acquirer {
	if log == nil {
		log = slog.Default()
	}
	return &Acquirer{
		vcs:    v,
		remote: remote,
		root:   root,
		log:    log.With("component", "source"),
	}
}

// Dir returns the directory holding revision.
func (a *Acquirer) Dir(revision string) string {
	return filepath.Join(a.root, EscapeRevision(revision))
}

// Acquire returns a tree at revision. A matching tree is reused without any
// network access; a stale one is updated in place; a corrupted one is evicted
// and fetched again, once.
func (a *Acquirer) Acquire(ctx context.Context, revision string) (*Tree, error) {
	dir := a.Dir(revision)
	if err := ValidateRevision(revision); err != nil {
		return nil, &Error{Revision: revision, Dir: dir, Err: err}
	}

	tree, err := a.acquire(ctx, revision, dir)
	if errors.Is(err, ErrCorruptLocalTree) {
		a.log.Warn("evicting corrupted source tree", "dir", dir, "err", err)
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			return nil, &Error{Revision: revision, Dir: dir, Err: errors.Join(err, rmErr)}
		}
		tree, err = a.acquire(ctx, revision, dir)
	}
	if err != nil {
		return nil, &Error{Revision: revision, Dir: dir, Err: err}
	}
	return tree, nil
}

func (a *Acquirer) acquire(ctx context.Context, revision, dir string) (*Tree, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		a.log.Info("fetching source", "revision", revision, "remote", a.remote, "dir", dir)
		tree, err := a.sync(ctx, revision, dir)
		if err != nil {
			os.RemoveAll(dir)
		}
		return tree, err
	} else if err != nil {
		return nil, err
	}

	head, err := a.vcs.Head(ctx, dir)
	if err != nil {
		if errors.Is(err, vcs.ErrNotRepository) {
			return nil, fmt.Errorf("%w: %w", ErrCorruptLocalTree, err)
		}
		return nil, err
	}

	var rec record
	if err := jsonfile.Load(filepath.Join(dir, recordFile), &rec); err == nil &&
		rec.Remote == a.remote && rec.Revision == revision && rec.Commit == head {
		a.log.Debug("source tree up to date", "revision", revision, "commit", head)
		return &Tree{Dir: dir, Revision: revision, Commit: head}, nil
	}

	a.log.Info("updating stale source tree", "revision", revision, "recorded", rec.Commit, "head", head)
	return a.sync(ctx, revision, dir)
}

func (a *Acquirer) sync(ctx context.Context, revision, dir string) (*Tree, error) {
	// The record goes first so an interrupted update is never mistaken for a
	// finished one.
	if err := os.Remove(filepath.Join(dir, recordFile)); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err := a.vcs.Sync(ctx, a.remote, revision, dir); err != nil {
		if errors.Is(err, vcs.ErrNotRepository) {
			return nil, fmt.Errorf("%w: %w", ErrCorruptLocalTree, err)
		}
		return nil, err
	}
	head, err := a.vcs.Head(ctx, dir)
	if err != nil {
		if errors.Is(err, vcs.ErrNotRepository) {
			return nil, fmt.Errorf("%w: %w", ErrCorruptLocalTree, err)
		}
		return nil, err
	}
	rec := record{
		Remote:   a.remote,
		Revision: revision,
		Commit:   head,
		SyncTime: time.Now(),
	}
	if err := jsonfile.Save(filepath.Join(dir, recordFile), &rec); err != nil {
		return nil, err
	}
	return &Tree{Dir: dir, Revision: revision, Commit: head}, nil
}

// ValidateRevision rejects revisions git would read as an option or that
// cannot name a directory.
func ValidateRevision(revision string) error {
	switch {
	case revision == "":
		return errors.New("empty revision")
	case strings.HasPrefix(revision, "-"):
		return fmt.Errorf("invalid revision %q", revision)
	case revision == "." || revision == "..":
		return fmt.Errorf("invalid revision %q", revision)
	}
	return nil
}

// EscapeRevision maps a revision to a single path element. Characters outside
// [A-Za-z0-9._+-] are percent-encoded, so distinct revisions never collide.
func EscapeRevision(revision string) string {
	var b strings.Builder
	for i := 0; i < len(revision); i++ {
		c := revision[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9',
			c == '.', c == '_', c == '-', c == '+':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}
