package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func waitSignal(t *testing.T, ch <-chan struct{}, timeout time.Duration) bool {
	t.Helper()
	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}

func TestWatch_signalsAfterChange(t *testing.T) {
	n := NewFSNotifier(WithDebounce(50 * time.Millisecond))
	defer n.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	root := t.TempDir()
	signals, err := n.Watch(ctx, root)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !waitSignal(t, signals, 2*time.Second) {
		t.Fatal("no signal after file creation")
	}
}

func TestWatch_coalescesBursts(t *testing.T) {
	n := NewFSNotifier(WithDebounce(100 * time.Millisecond))
	defer n.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	root := t.TempDir()
	signals, err := n.Watch(ctx, root)
	if err != nil {
		t.Fatal(err)
	}

	// A burst of writes within the debounce window yields one signal.
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(filepath.Join(root, "burst.txt"), []byte{byte(i)}, 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !waitSignal(t, signals, 2*time.Second) {
		t.Fatal("no signal after burst")
	}
	if waitSignal(t, signals, 300*time.Millisecond) {
		t.Error("burst produced more than one signal")
	}
}

func TestWatch_createsMissingRoot(t *testing.T) {
	n := NewFSNotifier(WithDebounce(50 * time.Millisecond))
	defer n.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	root := filepath.Join(t.TempDir(), "inbox")
	if _, err := n.Watch(ctx, root); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		t.Errorf("root not created: %v", err)
	}
}

func TestWatch_newSubdirectory(t *testing.T) {
	n := NewFSNotifier(WithDebounce(50 * time.Millisecond))
	defer n.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	root := t.TempDir()
	signals, err := n.Watch(ctx, root)
	if err != nil {
		t.Fatal(err)
	}

	sub := filepath.Join(root, "nested")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if !waitSignal(t, signals, 2*time.Second) {
		t.Fatal("no signal after mkdir")
	}

	// Files in the new directory are watched too.
	if err := os.WriteFile(filepath.Join(sub, "deep.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !waitSignal(t, signals, 2*time.Second) {
		t.Fatal("no signal for file in new subdirectory")
	}
}

func TestWatch_pendingSignalNotDropped(t *testing.T) {
	n := NewFSNotifier(WithDebounce(30 * time.Millisecond))
	defer n.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	root := t.TempDir()
	signals, err := n.Watch(ctx, root)
	if err != nil {
		t.Fatal(err)
	}

	// Two settled bursts with nobody reading: capacity 1 keeps one pending.
	if err := os.WriteFile(filepath.Join(root, "one.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(150 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(root, "two.txt"), []byte("y"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(150 * time.Millisecond)

	if !waitSignal(t, signals, time.Second) {
		t.Fatal("pending signal was dropped")
	}
}
