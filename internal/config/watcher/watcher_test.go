package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WithOptions(t *testing.T) {
	w, err := New(WithDebounce(50 * time.Millisecond))
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, 50*time.Millisecond, w.debounce)
}

func TestOperation_String(t *testing.T) {
	tests := []struct {
		op   Operation
		want string
	}{
		{OpWrite, "write"},
		{OpCreate, "create"},
		{OpRemove, "remove"},
		{OpRename, "rename"},
		{Operation(99), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.op.String())
	}
}

func TestCoalesce(t *testing.T) {
	tests := []struct {
		existing, next, want Operation
	}{
		{OpWrite, OpWrite, OpWrite},
		{OpCreate, OpWrite, OpCreate},
		{OpWrite, OpRemove, OpRemove},
		{OpCreate, OpRemove, OpRemove},
		{OpRemove, OpWrite, OpCreate},
		{OpRemove, OpCreate, OpCreate},
		{OpWrite, OpRename, OpRename},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, coalesce(tt.existing, tt.next), "coalesce(%s, %s)", tt.existing, tt.next)
	}
}

func TestWatcher_Watch(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "envforge.ini")

	w, err := New()
	require.NoError(t, err)
	defer w.Close()

	// The file does not exist yet; only its directory must.
	require.NoError(t, w.Watch(path))
	assert.Error(t, w.Watch(filepath.Join(tmpDir, "missing", "x.ini")))

	assert.Equal(t, []string{path}, w.WatchedFiles())
}

func TestWatcher_WatchAfterClose(t *testing.T) {
	w, err := New()
	require.NoError(t, err)

	require.NoError(t, w.Close())
	assert.NoError(t, w.Close())
	assert.ErrorIs(t, w.Watch(t.TempDir()), ErrClosed)
}

func TestWatcher_DeliversCoalescedChange(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "envforge.ini")
	other := filepath.Join(tmpDir, "unrelated.txt")
	require.NoError(t, os.WriteFile(path, []byte("[envforge]\n"), 0o644))

	w, err := New(WithDebounce(200 * time.Millisecond))
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Watch(path))

	var (
		mu     sync.Mutex
		events []Event
	)
	got := make(chan struct{}, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(e Event) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
			got <- struct{}{}
		})
	}()

	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("[envforge]\nenv_list = a\n"), 0o644))
	}

	select {
	case <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("no event delivered")
	}
	// Give a stray second delivery a chance to show up.
	time.Sleep(500 * time.Millisecond)

	cancel()
	assert.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1, "want one coalesced event: %v", events)
	assert.Equal(t, path, events[0].Path)
}
