package source

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goplus/llvmsrc/internal/vcs"
)

// fakeVCS checks out a deterministic commit per ref by writing .git/HEAD.
type fakeVCS struct {
	syncs   []string
	known   map[string]bool // nil means every ref exists
	syncErr error
}

func commitOf(ref string) string {
	sum := sha1.Sum([]byte(ref))
	return hex.EncodeToString(sum[:])
}

func (f *fakeVCS) Sync(ctx context.Context, remote, ref, dir string) error {
	f.syncs = append(f.syncs, ref)
	if f.syncErr != nil {
		return f.syncErr
	}
	if f.known != nil && !f.known[ref] {
		return vcs.ErrRevisionNotFound
	}
	if err := os.MkdirAll(filepath.Join(dir, ".git"), 0o755); err != nil {
		return err
	}
	os.WriteFile(filepath.Join(dir, "README.md"), []byte(ref), 0o644)
	return os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte(commitOf(ref)+"\n"), 0o644)
}

func (f *fakeVCS) Head(ctx context.Context, dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, ".git", "HEAD"))
	if err != nil {
		return "", vcs.ErrNotRepository
	}
	return strings.TrimSpace(string(data)), nil
}

func (f *fakeVCS) Tags(ctx context.Context, remote string) ([]string, error) {
	return nil, nil
}

func newTestAcquirer(t *testing.T, v vcs.VCS) *Acquirer {
	t.Helper()
	return NewAcquirer(v, "https://example.com/llvm-project.git", filepath.Join(t.TempDir(), "src"), nil)
}

func TestAcquire_FetchThenCacheHit(t *testing.T) {
	v := &fakeVCS{}
	a := newTestAcquirer(t, v)
	ctx := context.Background()

	tree, err := a.Acquire(ctx, "llvmorg-16.0.0")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if tree.Commit != commitOf("llvmorg-16.0.0") || tree.Revision != "llvmorg-16.0.0" {
		t.Errorf("tree = %+v", tree)
	}
	if tree.Dir != a.Dir("llvmorg-16.0.0") {
		t.Errorf("Dir = %q, want %q", tree.Dir, a.Dir("llvmorg-16.0.0"))
	}

	again, err := a.Acquire(ctx, "llvmorg-16.0.0")
	if err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}
	if *again != *tree {
		t.Errorf("second tree = %+v, want %+v", again, tree)
	}
	if len(v.syncs) != 1 {
		t.Errorf("syncs = %v, want exactly one", v.syncs)
	}
}

func TestAcquire_RevisionSwitch(t *testing.T) {
	v := &fakeVCS{}
	a := newTestAcquirer(t, v)
	ctx := context.Background()

	if _, err := a.Acquire(ctx, "llvmorg-15.0.7"); err != nil {
		t.Fatal(err)
	}
	tree, err := a.Acquire(ctx, "llvmorg-16.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if tree.Revision != "llvmorg-16.0.0" || tree.Commit != commitOf("llvmorg-16.0.0") {
		t.Errorf("tree = %+v", tree)
	}
	data, _ := os.ReadFile(filepath.Join(tree.Dir, "README.md"))
	if string(data) != "llvmorg-16.0.0" {
		t.Errorf("working copy holds %q", data)
	}
}

func TestAcquire_StaleTreeUpdatedInPlace(t *testing.T) {
	v := &fakeVCS{}
	a := newTestAcquirer(t, v)
	ctx := context.Background()

	tree, err := a.Acquire(ctx, "release/16.x")
	if err != nil {
		t.Fatal(err)
	}
	// Someone moved HEAD behind our back.
	os.WriteFile(filepath.Join(tree.Dir, ".git", "HEAD"), []byte(commitOf("other")+"\n"), 0o644)

	tree, err = a.Acquire(ctx, "release/16.x")
	if err != nil {
		t.Fatal(err)
	}
	if tree.Commit != commitOf("release/16.x") {
		t.Errorf("Commit = %q, want re-synced commit", tree.Commit)
	}
	if len(v.syncs) != 2 {
		t.Errorf("syncs = %v, want 2", v.syncs)
	}
}

func TestAcquire_CorruptTreeEvicted(t *testing.T) {
	v := &fakeVCS{}
	a := newTestAcquirer(t, v)
	dir := a.Dir("llvmorg-16.0.0")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	junk := filepath.Join(dir, "junk")
	os.WriteFile(junk, []byte("x"), 0o644)

	tree, err := a.Acquire(context.Background(), "llvmorg-16.0.0")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if tree.Commit != commitOf("llvmorg-16.0.0") {
		t.Errorf("Commit = %q", tree.Commit)
	}
	if _, err := os.Stat(junk); !os.IsNotExist(err) {
		t.Errorf("corrupted tree was not evicted")
	}
}

func TestAcquire_Errors(t *testing.T) {
	tests := []struct {
		name string
		vcs  *fakeVCS
		rev  string
		want error
	}{
		{"revision not found", &fakeVCS{known: map[string]bool{}}, "llvmorg-99.0.0", ErrRevisionNotFound},
		{"network", &fakeVCS{syncErr: vcs.ErrNetwork}, "llvmorg-16.0.0", ErrNetworkFailure},
		{"corrupt twice", &fakeVCS{syncErr: vcs.ErrNotRepository}, "llvmorg-16.0.0", ErrCorruptLocalTree},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAcquirer(t, tt.vcs)
			_, err := a.Acquire(context.Background(), tt.rev)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Acquire error = %v, want %v", err, tt.want)
			}
			var srcErr *Error
			if !errors.As(err, &srcErr) || srcErr.Revision != tt.rev {
				t.Errorf("error lacks context: %v", err)
			}
			if _, err := os.Stat(a.Dir(tt.rev)); !os.IsNotExist(err) {
				t.Errorf("failed fetch left %s behind", a.Dir(tt.rev))
			}
		})
	}
}

func TestAcquire_InvalidRevision(t *testing.T) {
	v := &fakeVCS{}
	a := newTestAcquirer(t, v)
	for _, rev := range []string{"", "--upload-pack=evil", ".."} {
		if _, err := a.Acquire(context.Background(), rev); err == nil {
			t.Errorf("Acquire(%q) succeeded", rev)
		}
	}
	if len(v.syncs) != 0 {
		t.Errorf("invalid revisions reached git: %v", v.syncs)
	}
}

func TestEscapeRevision(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"llvmorg-16.0.0", "llvmorg-16.0.0"},
		{"release/16.x", "release%2F16.x"},
		{"a:b", "a%3Ab"},
		{"a%2Fb", "a%252Fb"},
	}
	for _, tt := range tests {
		if got := EscapeRevision(tt.in); got != tt.want {
			t.Errorf("EscapeRevision(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
