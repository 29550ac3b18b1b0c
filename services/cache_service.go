package services

import (
	"context"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/ncnu-assistant/dormmail-backend/models"
)

// ResponseStore keeps serialized responses keyed by normalized request URL.
// Entries leave the store only by expiring.
type ResponseStore interface {
	Get(ctx context.Context, key string) (*models.CachedResponse, bool, error)
	Set(ctx context.Context, key string, response *models.CachedResponse, ttl time.Duration) error
	DeleteExpired(ctx context.Context) (int, error)
	Size(ctx context.Context) (int, error)
}

// CacheKeyFromURL normalizes a request URL into a cache key.
// Scheme and host are lower-cased, the path is cleaned, query parameters are sorted
// and the fragment is dropped. Unparsable input is used verbatim.
func CacheKeyFromURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	parsed.RawFragment = ""

	if parsed.Path == "" {
		parsed.Path = "/"
	} else {
		cleaned := path.Clean(parsed.Path)
		if strings.HasSuffix(parsed.Path, "/") && cleaned != "/" {
			cleaned += "/"
		}
		parsed.Path = cleaned
	}
	parsed.RawPath = ""

	// Encode sorts by key
	parsed.RawQuery = parsed.Query().Encode()

	return parsed.String()
}

// memoryEntry is a cached response with its own expiry
type memoryEntry struct {
	response  *models.CachedResponse
	expiresAt time.Time
}

func (e *memoryEntry) isExpired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// MemoryResponseStore is an in-process TTL map with a size cap.
// When full, the entry closest to expiry is evicted.
type MemoryResponseStore struct {
	cache   map[string]*memoryEntry
	mutex   sync.RWMutex
	maxSize int
	now     func() time.Time
}

// NewMemoryResponseStore creates an in-memory response store
func NewMemoryResponseStore(maxSize int) *MemoryResponseStore {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &MemoryResponseStore{
		cache:   make(map[string]*memoryEntry),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get retrieves a live entry
func (s *MemoryResponseStore) Get(ctx context.Context, key string) (*models.CachedResponse, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entry, exists := s.cache[key]
	if !exists || entry.isExpired(s.now()) {
		return nil, false, nil
	}

	return entry.response, true, nil
}

// Set stores an entry, replacing any previous one under the same key
func (s *MemoryResponseStore) Set(ctx context.Context, key string, response *models.CachedResponse, ttl time.Duration) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.cache[key]; !exists && len(s.cache) >= s.maxSize {
		s.evictOldest()
	}

	s.cache[key] = &memoryEntry{
		response:  response,
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

// evictOldest removes the entry that expires first. Caller holds the write lock.
func (s *MemoryResponseStore) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range s.cache {
		if oldestKey == "" || entry.expiresAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.expiresAt
		}
	}

	if oldestKey != "" {
		delete(s.cache, oldestKey)
	}
}

// DeleteExpired drops every expired entry and reports how many were removed
func (s *MemoryResponseStore) DeleteExpired(ctx context.Context) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	removed := 0
	for key, entry := range s.cache {
		if entry.isExpired(now) {
			delete(s.cache, key)
			removed++
		}
	}
	return removed, nil
}

// Size returns the number of entries, live or not yet swept
func (s *MemoryResponseStore) Size(ctx context.Context) (int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.cache), nil
}
