package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherDetectsWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o644))

	w, err := NewFileWatcher([]string{path},
		WithPollInterval(10*time.Millisecond),
		WithDebounceDelay(10*time.Millisecond),
	)
	require.NoError(t, err)

	var events atomic.Int32
	var lastOp atomic.Value
	w.OnChange(func(e FileEvent) {
		events.Add(1)
		lastOp.Store(e.Op)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()
	assert.True(t, w.IsRunning())

	// Some filesystems have coarse mtime resolution.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("a: 2\n"), 0o644))
	future := time.Now().Add(time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	require.Eventually(t, func() bool {
		return events.Load() > 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, FileOpWrite, lastOp.Load())
}

func TestWatcherDetectsCreateAndRemove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "late.yaml")

	w, err := NewFileWatcher([]string{path},
		WithPollInterval(10*time.Millisecond),
		WithDebounceDelay(10*time.Millisecond),
	)
	require.NoError(t, err)

	ops := make(chan FileOp, 10)
	w.OnChange(func(e FileEvent) { ops <- e.Op })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("x: 1\n"), 0o644))
	select {
	case op := <-ops:
		assert.Equal(t, FileOpCreate, op)
	case <-time.After(2 * time.Second):
		t.Fatal("expected create event")
	}

	require.NoError(t, os.Remove(path))
	select {
	case op := <-ops:
		assert.Equal(t, FileOpRemove, op)
	case <-time.After(2 * time.Second):
		t.Fatal("expected remove event")
	}
}

func TestWatcherDoubleStart(t *testing.T) {
	w, err := NewFileWatcher(nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	assert.Error(t, w.Start(ctx))
}

func TestFileOpString(t *testing.T) {
	assert.Equal(t, "CREATE", FileOpCreate.String())
	assert.Equal(t, "WRITE", FileOpWrite.String())
	assert.Equal(t, "REMOVE", FileOpRemove.String())
	assert.Equal(t, "UNKNOWN", FileOp(99).String())
}
