package dataset

import (
	"container/list"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"

	"github.com/disintegration/imaging"
)

// Cache errors.
var (
	// ErrCacheClosed is returned when operating on a closed Cache.
	ErrCacheClosed = errors.New("dataset: cache is closed")
	// ErrImageTooLarge is returned when a single decoded image exceeds the
	// cache's entire byte budget.
	ErrImageTooLarge = errors.New("dataset: decoded image exceeds cache budget")
)

// Default cache limits (spec.md §6.2's bounded, evicting image cache).
const (
	DefaultMaxCacheMB = 2048
	bytesPerPixel     = 4 // decoded cache entries are RGBA8
)

// decodedEntry tracks one decoded, resized image in the LRU list.
type decodedEntry struct {
	key       string
	img       *image.NRGBA
	sizeBytes uint64
	element   *list.Element
}

// Cache is a byte-bounded LRU cache of decoded, resized training images,
// adapted from the eviction strategy gogpu-gg's GPU texture memory
// manager uses for VRAM, applied here to host-side decode results instead
// (spec.md C8 names this as the dataset's bounded image cache; there is
// no GPU texture atlas in this domain, so the budget tracks host bytes).
//
// Cache is safe for concurrent use.
type Cache struct {
	mu sync.Mutex

	budgetBytes uint64
	usedBytes   uint64

	entries map[string]*decodedEntry
	lru     *list.List // front = most recently used

	evictions uint64
	closed    bool
}

// NewCache creates a Cache with the given byte budget.
func NewCache(budgetBytes uint64) *Cache {
	if budgetBytes == 0 {
		budgetBytes = DefaultMaxCacheMB * 1024 * 1024
	}
	return &Cache{
		budgetBytes: budgetBytes,
		entries:     make(map[string]*decodedEntry),
		lru:         list.New(),
	}
}

// Stats reports the cache's current utilization.
type Stats struct {
	UsedBytes, BudgetBytes uint64
	Entries                int
	Evictions              uint64
}

// Stats returns the current cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{UsedBytes: c.usedBytes, BudgetBytes: c.budgetBytes, Entries: len(c.entries), Evictions: c.evictions}
}

// Get decodes and resizes the image at path to targetWidth x targetHeight
// (0 means keep the decoded size on that axis), serving from cache when
// available and evicting least-recently-used entries to stay within
// budget.
func (c *Cache) Get(path string, targetWidth, targetHeight int) (*image.NRGBA, error) {
	key := fmt.Sprintf("%s@%dx%d", path, targetWidth, targetHeight)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrCacheClosed
	}
	if e, ok := c.entries[key]; ok {
		c.lru.MoveToFront(e.element)
		img := e.img
		c.mu.Unlock()
		return img, nil
	}
	c.mu.Unlock()

	img, err := decodeAndResize(path, targetWidth, targetHeight)
	if err != nil {
		return nil, err
	}
	size := uint64(len(img.Pix))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrCacheClosed
	}
	if size > c.budgetBytes {
		return img, fmt.Errorf("%w: %d bytes (budget %d)", ErrImageTooLarge, size, c.budgetBytes)
	}

	c.evictLocked(size)

	entry := &decodedEntry{key: key, img: img, sizeBytes: size}
	entry.element = c.lru.PushFront(entry)
	c.entries[key] = entry
	c.usedBytes += size

	return img, nil
}

// evictLocked removes least-recently-used entries until there is room for
// `need` additional bytes. The caller must hold c.mu.
func (c *Cache) evictLocked(need uint64) {
	for c.usedBytes+need > c.budgetBytes {
		back := c.lru.Back()
		if back == nil {
			return
		}
		entry := back.Value.(*decodedEntry)
		c.lru.Remove(back)
		delete(c.entries, entry.key)
		c.usedBytes -= entry.sizeBytes
		c.evictions++
		slogger().Debug("dataset: cache evicted", "key", entry.key, "bytes", entry.sizeBytes)
	}
}

// Close releases all cached entries.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*decodedEntry)
	c.lru = list.New()
	c.usedBytes = 0
	c.closed = true
}

func decodeAndResize(path string, w, h int) (*image.NRGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open %s: %w", path, err)
	}
	defer f.Close()

	decoded, err := decodeImage(f)
	if err != nil {
		return nil, fmt.Errorf("dataset: decode %s: %w", path, err)
	}

	if w <= 0 {
		w = decoded.Bounds().Dx()
	}
	if h <= 0 {
		h = decoded.Bounds().Dy()
	}

	// imaging.Resize with a triangle (linear) filter, matching the
	// resampling spec.md §4.7 calls for when training-resolution differs
	// from the source image.
	resized := imaging.Resize(decoded, w, h, imaging.Linear)
	return resized, nil
}
