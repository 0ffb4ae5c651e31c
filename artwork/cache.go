package artwork

import (
	"context"
	"image"
	"sync"

	"earshot/log"
)

type slot struct {
	img  image.Image
	err  error
	done bool
}

// Cache maps track titles to decoded artwork. Each title is fetched at most
// once; failures are remembered so a broken URL is not retried. With a
// non-zero limit the oldest titles are evicted first.
type Cache struct {
	ctx     context.Context
	fetcher Fetcher
	limit   int

	mu    sync.Mutex
	slots map[string]*slot
	order []string
	wg    sync.WaitGroup
}

func NewCache(ctx context.Context, f Fetcher, limit int) *Cache {
	return &Cache{
		ctx:     ctx,
		fetcher: f,
		limit:   limit,
		slots:   make(map[string]*slot),
	}
}

// Lookup returns the artwork for title if it is ready. The first call for a
// title starts a background fetch of url and returns immediately.
func (c *Cache) Lookup(title, url string) (image.Image, bool) {
	if title == "" || url == "" {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.slots[title]; ok {
		if s.done && s.err == nil {
			return s.img, true
		}
		return nil, false
	}

	s := &slot{}
	c.slots[title] = s
	c.order = append(c.order, title)
	c.evictLocked()

	c.wg.Add(1)
	go c.fetch(title, url, s)
	return nil, false
}

func (c *Cache) fetch(title, url string, s *slot) {
	defer c.wg.Done()
	img, err := c.fetcher.Fetch(c.ctx, url)
	if err != nil {
		log.Warnf("artwork for %q: %v", title, err)
	}
	c.mu.Lock()
	s.img, s.err, s.done = img, err, true
	c.mu.Unlock()
}

func (c *Cache) evictLocked() {
	if c.limit <= 0 {
		return
	}
	for len(c.order) > c.limit {
		delete(c.slots, c.order[0])
		c.order = c.order[1:]
	}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slots)
}

// Wait blocks until every fetch started so far has finished.
func (c *Cache) Wait() {
	c.wg.Wait()
}
