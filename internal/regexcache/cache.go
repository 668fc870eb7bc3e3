package regexcache

import (
	"container/list"
	"regexp"
	"sync"
	"time"
)

// DefaultSize holds enough patterns for every reference key of a large store
const DefaultSize = 4096

// CachedPattern is one compiled pattern and its access metadata
type CachedPattern struct {
	Pattern  string
	Compiled *regexp.Regexp

	CacheKey     string
	LastAccessed time.Time
	AccessCount  int64
}

// RegexCache is an LRU of compiled patterns shared across scans.
// Matchers build one alternation per reference key and the same keys
// come back on every scan of a store, so compilation is paid once.
type RegexCache struct {
	entries map[string]*list.Element
	lru     *list.List

	mu sync.Mutex

	maxSize          int
	maxPatternLength int

	stats CacheStats
}

// CacheStats tracks cache performance statistics
type CacheStats struct {
	Hits          int64
	Misses        int64
	Evictions     int64
	CompileErrors int64
	TotalRequests int64
}

// NewRegexCache creates a new regex cache holding at most maxSize patterns
func NewRegexCache(maxSize int) *RegexCache {
	if maxSize <= 0 {
		maxSize = DefaultSize
	}
	return &RegexCache{
		entries:          make(map[string]*list.Element),
		lru:              list.New(),
		maxSize:          maxSize,
		maxPatternLength: 16 * 1024,
	}
}

var (
	shared     *RegexCache
	sharedOnce sync.Once
)

// Shared returns the process-wide cache
func Shared() *RegexCache {
	sharedOnce.Do(func() {
		shared = NewRegexCache(DefaultSize)
	})
	return shared
}

// Compile returns the compiled form of pattern, compiling and caching it on a miss.
// Patterns longer than the length limit are compiled but not cached.
func (rc *RegexCache) Compile(pattern string, caseInsensitive bool) (*regexp.Regexp, error) {
	cacheKey := buildCacheKey(pattern, caseInsensitive)

	rc.mu.Lock()
	rc.stats.TotalRequests++
	if elem, ok := rc.entries[cacheKey]; ok {
		entry := elem.Value.(*CachedPattern)
		entry.LastAccessed = time.Now()
		entry.AccessCount++
		rc.lru.MoveToFront(elem)
		rc.stats.Hits++
		rc.mu.Unlock()
		return entry.Compiled, nil
	}
	rc.stats.Misses++
	rc.mu.Unlock()

	// Compile outside the lock
	compiled, err := regexp.Compile(cacheKey)
	if err != nil {
		rc.mu.Lock()
		rc.stats.CompileErrors++
		rc.mu.Unlock()
		return nil, err
	}

	if len(pattern) > rc.maxPatternLength {
		return compiled, nil
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()

	// Another goroutine may have raced us here
	if elem, ok := rc.entries[cacheKey]; ok {
		return elem.Value.(*CachedPattern).Compiled, nil
	}

	if rc.lru.Len() >= rc.maxSize {
		rc.evict()
	}

	entry := &CachedPattern{
		Pattern:      pattern,
		Compiled:     compiled,
		CacheKey:     cacheKey,
		LastAccessed: time.Now(),
		AccessCount:  1,
	}
	rc.entries[cacheKey] = rc.lru.PushFront(entry)
	return compiled, nil
}

// MustCompile is like Compile but panics on invalid patterns.
// Only for patterns that are constants in the source.
func (rc *RegexCache) MustCompile(pattern string, caseInsensitive bool) *regexp.Regexp {
	re, err := rc.Compile(pattern, caseInsensitive)
	if err != nil {
		panic("regexcache: " + err.Error())
	}
	return re
}

// buildCacheKey creates a consistent cache key for a pattern
func buildCacheKey(pattern string, caseInsensitive bool) string {
	if caseInsensitive {
		return "(?i)" + pattern
	}
	return pattern
}

// evict removes the least recently used pattern. Caller holds mu.
func (rc *RegexCache) evict() {
	back := rc.lru.Back()
	if back == nil {
		return
	}
	entry := back.Value.(*CachedPattern)
	delete(rc.entries, entry.CacheKey)
	rc.lru.Remove(back)
	rc.stats.Evictions++
}

// GetStats returns cache statistics
func (rc *RegexCache) GetStats() CacheStats {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.stats
}

// Clear clears all cached patterns
func (rc *RegexCache) Clear() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.entries = make(map[string]*list.Element)
	rc.lru = list.New()

	// Reset statistics
	rc.stats = CacheStats{}
}

// GetSize returns the number of cached patterns
func (rc *RegexCache) GetSize() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.lru.Len()
}

// CleanupExpired removes patterns that haven't been accessed within maxAge
func (rc *RegexCache) CleanupExpired(maxAge time.Duration) int {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	now := time.Now()
	removed := 0
	for e := rc.lru.Back(); e != nil; {
		prev := e.Prev()
		entry := e.Value.(*CachedPattern)
		if now.Sub(entry.LastAccessed) > maxAge {
			delete(rc.entries, entry.CacheKey)
			rc.lru.Remove(e)
			removed++
		}
		e = prev
	}
	return removed
}

// GetHitRatio returns the cache hit ratio
func (rc *RegexCache) GetHitRatio() float64 {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	total := rc.stats.Hits + rc.stats.Misses
	if total == 0 {
		return 0.0
	}
	return float64(rc.stats.Hits) / float64(total)
}
