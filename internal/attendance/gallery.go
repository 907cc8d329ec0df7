package attendance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/your-org/attend/internal/vision"
)

// GalleryLoader fetches the full gallery from its backing store.
type GalleryLoader func(ctx context.Context) (vision.Gallery, error)

// GalleryCache holds the gallery shared by all sessions of a process. The
// returned gallery must be treated as read-only; updates swap the whole map.
type GalleryCache struct {
	mu      sync.RWMutex
	gallery vision.Gallery
	load    GalleryLoader
}

func NewGalleryCache(load GalleryLoader) *GalleryCache {
	return &GalleryCache{gallery: vision.Gallery{}, load: load}
}

func (c *GalleryCache) Gallery() vision.Gallery {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gallery
}

func (c *GalleryCache) Set(g vision.Gallery) {
	if g == nil {
		g = vision.Gallery{}
	}
	c.mu.Lock()
	c.gallery = g
	c.mu.Unlock()
}

// Add appends embeddings for one person.
func (c *GalleryCache) Add(name string, embs []vision.Embedding) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make(vision.Gallery, len(c.gallery)+1)
	for n, e := range c.gallery {
		next[n] = e
	}
	next[name] = append(append([]vision.Embedding(nil), next[name]...), embs...)
	c.gallery = next
}

// Remove drops a person.
func (c *GalleryCache) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make(vision.Gallery, len(c.gallery))
	for n, e := range c.gallery {
		if n != name {
			next[n] = e
		}
	}
	c.gallery = next
}

// Refresh reloads the gallery. On error the current gallery is kept.
func (c *GalleryCache) Refresh(ctx context.Context) error {
	if c.load == nil {
		return nil
	}
	g, err := c.load(ctx)
	if err != nil {
		return err
	}
	c.Set(g)
	return nil
}

// Run refreshes the gallery every interval until ctx is done.
func (c *GalleryCache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				slog.Warn("refresh gallery", "error", err)
				continue
			}
			g := c.Gallery()
			slog.Debug("gallery refreshed", "persons", len(g), "embeddings", g.Size())
		}
	}
}
