package cache

import (
	"log/slog"
	"time"

	"github.com/coocood/freecache"
)

// Codes holds recently rendered code images keyed by kind and parameters.
type Codes interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
	Clear()
}

type FreeCache struct {
	cache  *freecache.Cache
	ttl    int
	logger *slog.Logger
}

// New returns a freecache-backed cache of sizeMB megabytes, or a no-op when sizeMB
// or ttl is not positive. Entries expire after ttl rounded up to whole seconds.
// freecache refuses entries larger than 1/1024 of its size, so sizeMB also caps
// the largest cacheable entry at sizeMB KiB.
func New(sizeMB int, ttl time.Duration, logger *slog.Logger) Codes {
	if logger == nil {
		logger = slog.Default()
	}
	if sizeMB <= 0 || ttl <= 0 {
		logger.Info("code cache disabled")
		return noopCache{}
	}

	secs := int((ttl + time.Second - 1) / time.Second)
	logger.Info("code cache initialized", "size_mb", sizeMB, "ttl_seconds", secs)
	return &FreeCache{
		cache:  freecache.NewCache(sizeMB * 1024 * 1024),
		ttl:    secs,
		logger: logger,
	}
}

func (c *FreeCache) Get(key string) ([]byte, bool) {
	val, err := c.cache.Get([]byte(key))
	if err != nil {
		return nil, false
	}
	return val, true
}

func (c *FreeCache) Set(key string, value []byte) {
	if err := c.cache.Set([]byte(key), value, c.ttl); err != nil {
		c.logger.Debug("code not cached", "key", key, "bytes", len(value), "error", err)
	}
}

func (c *FreeCache) Clear() {
	c.cache.Clear()
}

type noopCache struct{}

func (noopCache) Get(_ string) ([]byte, bool) { return nil, false }
func (noopCache) Set(_ string, _ []byte)      {}
func (noopCache) Clear()                      {}
