package cache

import "sync"

// ImageCache holds decoded panorama images keyed by viewpoint id so a
// revisited viewpoint skips the fetch. Latency here matters: the Switching
// state blocks on image availability.
type ImageCache struct {
	m      sync.Mutex
	images map[uint32][]byte
}

func NewImageCache() *ImageCache {
	return &ImageCache{
		images: make(map[uint32][]byte),
	}
}

func (c *ImageCache) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.images = make(map[uint32][]byte)
}

func (c *ImageCache) Get(id uint32) ([]byte, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	if img, ok := c.images[id]; ok {
		return img, true
	}
	return nil, false
}

func (c *ImageCache) Add(id uint32, img []byte) {
	c.m.Lock()
	defer c.m.Unlock()
	c.images[id] = img
}

func (c *ImageCache) Len() int {
	c.m.Lock()
	defer c.m.Unlock()
	return len(c.images)
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
