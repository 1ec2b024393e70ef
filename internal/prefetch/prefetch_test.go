package prefetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/scanwalk/engine/internal/cache"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSource serves canned bytes and counts fetches; Fetch blocks until
// release is closed when set.
type fakeSource struct {
	img     []byte
	err     error
	release chan struct{}
	calls   atomic.Int32
}

func (s *fakeSource) Fetch(ctx context.Context, ref string) ([]byte, error) {
	s.calls.Add(1)
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.img, s.err
}

func TestManager_PrefetchAndAwait(t *testing.T) {
	src := &fakeSource{img: []byte("pano")}
	images := cache.NewImageCache()
	m := NewManager(testLogger(), src, images)

	task := m.Prefetch(context.Background(), 1, "0_frame_1.jpg")
	img, err := task.Await(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(img, []byte("pano")) {
		t.Errorf("expected fetched bytes, got %q", img)
	}
	if cached, ok := images.Get(1); !ok || !bytes.Equal(cached, []byte("pano")) {
		t.Error("expected result landed in image cache")
	}
}

func TestManager_DeduplicatesInFlight(t *testing.T) {
	src := &fakeSource{img: []byte("pano"), release: make(chan struct{})}
	m := NewManager(testLogger(), src, cache.NewImageCache())

	t1 := m.Prefetch(context.Background(), 1, "a.jpg")
	t2 := m.Prefetch(context.Background(), 1, "a.jpg")
	if t1 != t2 {
		t.Error("expected same task for same viewpoint id")
	}
	close(src.release)
	if _, err := t1.Await(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("expected a single fetch, got %d", got)
	}
}

func TestManager_CacheHitSkipsFetch(t *testing.T) {
	src := &fakeSource{img: []byte("fresh")}
	images := cache.NewImageCache()
	images.Add(7, []byte("cached"))
	m := NewManager(testLogger(), src, images)

	task := m.Prefetch(context.Background(), 7, "b.jpg")
	img, err := task.Await(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(img, []byte("cached")) {
		t.Errorf("expected cached bytes, got %q", img)
	}
	if got := src.calls.Load(); got != 0 {
		t.Errorf("expected no fetch on cache hit, got %d", got)
	}
}

func TestManager_FetchErrorSurfaced(t *testing.T) {
	src := &fakeSource{err: errors.New("boom")}
	m := NewManager(testLogger(), src, cache.NewImageCache())

	task := m.Prefetch(context.Background(), 2, "c.jpg")
	if _, err := task.Await(context.Background()); err == nil {
		t.Fatal("expected fetch error surfaced")
	}

	// A failed task is forgotten so the next request retries.
	src.err = nil
	src.img = []byte("second try")
	task = m.Prefetch(context.Background(), 2, "c.jpg")
	img, err := task.Await(context.Background())
	if err != nil {
		t.Fatalf("unexpected error on retry: %v", err)
	}
	if !bytes.Equal(img, []byte("second try")) {
		t.Errorf("expected retry result, got %q", img)
	}
}

func TestManager_CancelAll(t *testing.T) {
	src := &fakeSource{img: []byte("pano"), release: make(chan struct{})}
	m := NewManager(testLogger(), src, cache.NewImageCache())

	task := m.Prefetch(context.Background(), 3, "d.jpg")
	m.CancelAll()

	if _, err := task.Await(context.Background()); err == nil {
		t.Fatal("expected cancelled task to return an error")
	}
}

func TestTask_AwaitHonorsContext(t *testing.T) {
	src := &fakeSource{img: []byte("pano"), release: make(chan struct{})}
	m := NewManager(testLogger(), src, cache.NewImageCache())
	task := m.Prefetch(context.Background(), 4, "e.jpg")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := task.Await(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	close(src.release)
}

func TestFileSource_Fetch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0_frame_1.jpg")
	if err := os.WriteFile(path, []byte("imagedata"), 0o644); err != nil {
		t.Fatal(err)
	}

	src := FileSource{Dir: dir}
	img, err := src.Fetch(context.Background(), "0_frame_1.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(img, []byte("imagedata")) {
		t.Errorf("expected file contents, got %q", img)
	}

	if _, err := src.Fetch(context.Background(), "missing.jpg"); err == nil {
		t.Error("expected error for missing file")
	}
}
