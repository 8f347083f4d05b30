package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) handle(_ context.Context, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func TestWatcherReportsSettledScans(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w, err := New(dir, rec.handle, nil)
	require.NoError(t, err)
	w.SetDebounce(50 * time.Millisecond)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	scanPath := filepath.Join(dir, "run1.pxscan")
	require.NoError(t, os.WriteFile(scanPath, []byte("a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("b"), 0644))
	// Rewrites within the quiet period collapse into one report.
	require.NoError(t, os.WriteFile(scanPath, []byte("ab"), 0644))

	assert.Eventually(t, func() bool {
		return len(rec.seen()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{scanPath}, rec.seen())
}

func TestWatcherStopsOnContextCancel(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w, err := New(dir, rec.handle, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	cancel()
	w.Stop()
	assert.Empty(t, rec.seen())
}

func TestWatcherStartMissingDir(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "missing"), func(context.Context, string) {}, nil)
	require.NoError(t, err)
	assert.Error(t, w.Start(context.Background()))
	w.Stop()
}

func TestNewRequiresHandler(t *testing.T) {
	_, err := New(t.TempDir(), nil, nil)
	assert.Error(t, err)
}

func TestSettledOrdersAndDrains(t *testing.T) {
	w := &Watcher{pending: map[string]time.Time{}}
	now := time.Now()
	w.pending["b.pxscan"] = now.Add(-time.Second)
	w.pending["a.pxscan"] = now.Add(-time.Second)
	w.pending["c.pxscan"] = now

	assert.Equal(t, []string{"a.pxscan", "b.pxscan"}, w.settled(now, 500*time.Millisecond))
	assert.Len(t, w.pending, 1)
	assert.Empty(t, w.settled(now, 500*time.Millisecond))
}

func TestTinyDebounceStillTicks(t *testing.T) {
	assert.Equal(t, minTick, tickInterval(time.Nanosecond))
	assert.Equal(t, minTick, tickInterval(0))
	assert.Equal(t, 100*time.Millisecond, tickInterval(DefaultDebounce))

	dir := t.TempDir()
	rec := &recorder{}
	w, err := New(dir, rec.handle, nil)
	require.NoError(t, err)
	w.SetDebounce(time.Nanosecond)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	scanPath := filepath.Join(dir, "fast.pxscan")
	require.NoError(t, os.WriteFile(scanPath, []byte("a"), 0644))
	assert.Eventually(t, func() bool {
		return len(rec.seen()) >= 1
	}, 2*time.Second, 10*time.Millisecond)
}
