package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDebounce = 50 * time.Millisecond

// startWatcher runs a watcher on a fresh directory and returns the change
// counter. The watcher is stopped and drained when the test ends.
func startWatcher(t *testing.T) (string, *atomic.Int32) {
	t.Helper()
	dir := t.TempDir()
	var changes atomic.Int32

	w, err := NewWatcher(dir, testDebounce, func(context.Context) { changes.Add(1) }, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	// Give the watch time to register before the test touches the directory.
	time.Sleep(50 * time.Millisecond)
	return dir, &changes
}

func TestWatcher_NotifiesOnNewFile(t *testing.T) {
	dir, changes := startWatcher(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))

	require.Eventually(t, func() bool { return changes.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	dir, changes := startWatcher(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "burst.txt"), []byte{byte(i)}, 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return changes.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(4 * testDebounce)
	assert.EqualValues(t, 1, changes.Load())
}

func TestWatcher_PublishRenameIsOneChange(t *testing.T) {
	dir, changes := startWatcher(t)

	temp := filepath.Join(dir, ".upload-123.part")
	require.NoError(t, os.WriteFile(temp, []byte("payload"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "final.bin"), nil, 0o644))
	require.NoError(t, os.Rename(temp, filepath.Join(dir, "final.bin")))

	require.Eventually(t, func() bool { return changes.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(4 * testDebounce)
	assert.EqualValues(t, 1, changes.Load())
}

func TestWatcher_IgnoresHiddenFiles(t *testing.T) {
	dir, changes := startWatcher(t)

	temp := filepath.Join(dir, ".upload-abc.part")
	require.NoError(t, os.WriteFile(temp, []byte("partial"), 0o644))
	require.NoError(t, os.Remove(temp))

	time.Sleep(6 * testDebounce)
	assert.EqualValues(t, 0, changes.Load())
}

func TestWatcher_NotifiesOnRemove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	var changes atomic.Int32
	w, err := NewWatcher(dir, testDebounce, func(context.Context) { changes.Add(1) }, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool { return changes.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_MissingDirectory(t *testing.T) {
	w, err := NewWatcher(filepath.Join(t.TempDir(), "missing"), testDebounce, func(context.Context) {}, nil)
	require.NoError(t, err)

	assert.Error(t, w.Run(context.Background()))
}

func TestChangesListing(t *testing.T) {
	w := &Watcher{root: "/data/uploads"}
	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{name: "create", event: fsnotify.Event{Name: "/data/uploads/a.txt", Op: fsnotify.Create}, want: true},
		{name: "write", event: fsnotify.Event{Name: "/data/uploads/a.txt", Op: fsnotify.Write}, want: true},
		{name: "remove", event: fsnotify.Event{Name: "/data/uploads/a.txt", Op: fsnotify.Remove}, want: true},
		{name: "rename", event: fsnotify.Event{Name: "/data/uploads/a.txt", Op: fsnotify.Rename}, want: true},
		{name: "chmod", event: fsnotify.Event{Name: "/data/uploads/a.txt", Op: fsnotify.Chmod}, want: false},
		{name: "hidden temp", event: fsnotify.Event{Name: "/data/uploads/.upload-1.part", Op: fsnotify.Write}, want: false},
		{name: "root itself", event: fsnotify.Event{Name: "/data/uploads", Op: fsnotify.Remove}, want: false},
		{name: "outside root", event: fsnotify.Event{Name: "/data/other/a.txt", Op: fsnotify.Create}, want: false},
		{name: "nested", event: fsnotify.Event{Name: "/data/uploads/sub/a.txt", Op: fsnotify.Create}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.changesListing(tt.event))
		})
	}
}

func TestDebouncer(t *testing.T) {
	d := newDebouncer(20 * time.Millisecond)
	defer d.Stop()
	assert.Nil(t, d.C())

	d.Trigger()
	d.Trigger()
	select {
	case <-d.C():
		d.Fired()
	case <-time.After(time.Second):
		t.Fatal("debouncer never fired")
	}
	assert.Nil(t, d.C())

	d.Trigger()
	d.Stop()
	assert.Nil(t, d.C())
}
