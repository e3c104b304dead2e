package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, cfg Config) *Watcher {
	t.Helper()
	w, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w
}

func nextBatch(t *testing.T, w *Watcher) []Event {
	t.Helper()
	select {
	case b, ok := <-w.Events():
		require.True(t, ok, "events channel closed")
		return b
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watch events")
		return nil
	}
}

func TestWatcher_DebouncesWrites(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, Config{Root: root, Debounce: 50 * time.Millisecond})

	path := filepath.Join(root, "main.go")
	for i := range 3 {
		require.NoError(t, os.WriteFile(path, []byte("package main // "+string(rune('a'+i))), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))

	batch := nextBatch(t, w)
	require.Len(t, batch, 1)
	assert.Equal(t, "main.go", batch[0].Rel)
	assert.Equal(t, path, batch[0].Path)
	assert.Equal(t, OpWrite, batch[0].Op)
}

func TestWatcher_RemoveAndNewDirectory(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "lib.py")
	require.NoError(t, os.WriteFile(path, []byte("x = 1\n"), 0o644))

	w := startWatcher(t, Config{Root: root, Debounce: 50 * time.Millisecond})

	require.NoError(t, os.Remove(path))
	batch := nextBatch(t, w)
	require.Len(t, batch, 1)
	assert.Equal(t, OpRemove, batch[0].Op)

	sub := filepath.Join(root, "pkg")
	require.NoError(t, os.Mkdir(sub, 0o755))
	// Give the watcher a moment to register the new directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "mod.rs"), []byte("fn f() {}\n"), 0o644))

	batch = nextBatch(t, w)
	require.Len(t, batch, 1)
	assert.Equal(t, "pkg/mod.rs", batch[0].Rel)
}

func TestWatcher_Exclude(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, Config{Root: root, Debounce: 50 * time.Millisecond, Exclude: []string{"skip_*.go"}})

	require.NoError(t, os.WriteFile(filepath.Join(root, "skip_me.go"), []byte("package a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "keep.go"), []byte("package a"), 0o644))

	batch := nextBatch(t, w)
	require.Len(t, batch, 1)
	assert.Equal(t, "keep.go", batch[0].Rel)
}

func TestNew_InvalidPattern(t *testing.T) {
	_, err := New(Config{Root: t.TempDir(), Include: []string{"[bad"}})
	require.Error(t, err)
}
