// Package prefetch loads panorama images ahead of the viewpoint switch
// that needs them. Fetches run concurrently with the frame loop and are
// cancellable; the Switching state awaits the task instead of polling.
package prefetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/scanwalk/engine/internal/cache"
)

// Source fetches raw panorama image bytes for an image reference.
type Source interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// FileSource reads panoramas from a local frames directory.
type FileSource struct {
	Dir string
}

func (s FileSource) Fetch(_ context.Context, ref string) ([]byte, error) {
	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.Dir, ref)
	}
	img, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read panorama %s: %w", ref, err)
	}
	return img, nil
}

// HTTPSource fetches panoramas from a tile/asset server.
type HTTPSource struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPSource creates a source rooted at baseURL.
func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *HTTPSource) Fetch(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/"+strings.TrimLeft(ref, "/"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("panorama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("panorama fetch returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Task is one in-flight prefetch. Await blocks until the fetch finishes
// or either context is cancelled.
type Task struct {
	ID     uint32
	done   chan struct{}
	cancel context.CancelFunc

	img []byte
	err error
}

// Await blocks until the task completes and returns the image bytes.
func (t *Task) Await(ctx context.Context) ([]byte, error) {
	select {
	case <-t.done:
		return t.img, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel aborts the fetch. Await then returns the cancellation error.
func (t *Task) Cancel() {
	t.cancel()
}

// Manager runs prefetch tasks keyed by viewpoint id, deduplicating
// concurrent requests for the same viewpoint and landing results in the
// image cache.
type Manager struct {
	logger *slog.Logger
	source Source
	images *cache.ImageCache

	m     sync.Mutex
	tasks map[uint32]*Task
}

func NewManager(logger *slog.Logger, source Source, images *cache.ImageCache) *Manager {
	return &Manager{
		logger: logger.With("component", "prefetch"),
		source: source,
		images: images,
		tasks:  make(map[uint32]*Task),
	}
}

// Prefetch starts loading the panorama for a viewpoint. A cached image or
// an in-flight task for the same id is reused.
func (m *Manager) Prefetch(ctx context.Context, id uint32, ref string) *Task {
	m.m.Lock()
	defer m.m.Unlock()

	if t, ok := m.tasks[id]; ok {
		return t
	}

	fetchCtx, cancel := context.WithCancel(ctx)
	t := &Task{ID: id, done: make(chan struct{}), cancel: cancel}
	m.tasks[id] = t

	if img, ok := m.images.Get(id); ok {
		t.img = img
		close(t.done)
		cancel()
		return t
	}

	go m.run(fetchCtx, t, ref)
	return t
}

func (m *Manager) run(ctx context.Context, t *Task, ref string) {
	defer close(t.done)

	img, err := m.source.Fetch(ctx, ref)
	if err != nil {
		t.err = err
		m.logger.Warn("prefetch failed", "viewpoint", t.ID, "ref", ref, "error", err)
		m.forget(t.ID)
		return
	}
	t.img = img
	m.images.Add(t.ID, img)
	m.logger.Debug("panorama prefetched", "viewpoint", t.ID, "bytes", len(img))
}

// CancelAll aborts every in-flight task. Called on session teardown.
func (m *Manager) CancelAll() {
	m.m.Lock()
	defer m.m.Unlock()
	for id, t := range m.tasks {
		t.cancel()
		delete(m.tasks, id)
	}
}

func (m *Manager) forget(id uint32) {
	m.m.Lock()
	defer m.m.Unlock()
	delete(m.tasks, id)
}
