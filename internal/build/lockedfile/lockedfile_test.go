package lockedfile

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestLockUnlock(t *testing.T) {
	mu := MutexAt(filepath.Join(t.TempDir(), "sub", ".lock"))

	unlock, err := mu.Lock()
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if _, err := mu.Lock(); !errors.Is(err, ErrContended) {
		t.Fatalf("second Lock: got %v, want ErrContended", err)
	}
	unlock()

	unlock, err = mu.Lock()
	if err != nil {
		t.Fatalf("Lock after unlock failed: %v", err)
	}
	unlock()
}

func TestLockContextTimeout(t *testing.T) {
	mu := MutexAt(filepath.Join(t.TempDir(), ".lock"))
	unlock, err := mu.Lock()
	if err != nil {
		t.Fatal(err)
	}
	defer unlock()

	start := time.Now()
	_, err = mu.LockContext(context.Background(), 150*time.Millisecond)
	if !errors.Is(err, ErrContended) {
		t.Fatalf("got %v, want ErrContended", err)
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("gave up after %v, before the timeout", elapsed)
	}
}

func TestLockContextWaits(t *testing.T) {
	mu := MutexAt(filepath.Join(t.TempDir(), ".lock"))
	unlock, err := mu.Lock()
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		time.Sleep(100 * time.Millisecond)
		unlock()
	}()

	unlock2, err := mu.LockContext(context.Background(), 5*time.Second)
	if err != nil {
		t.Fatalf("LockContext failed: %v", err)
	}
	unlock2()
}

func TestLockContextCancelled(t *testing.T) {
	mu := MutexAt(filepath.Join(t.TempDir(), ".lock"))
	unlock, err := mu.Lock()
	if err != nil {
		t.Fatal(err)
	}
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := mu.LockContext(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}
