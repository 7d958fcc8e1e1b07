package store

import (
	"time"

	"github.com/conductor-hq/conductor/internal/profile"
	"github.com/conductor-hq/conductor/store/cache"
)

const (
	pendingCountCacheKey = "proposal:pending_count"
	playbookListCacheKey = "playbook:list"
)

// Store provides database access to all raw objects. It is the single
// source of truth: pipeline stages never share in-memory episode or
// proposal objects across component boundaries.
type Store struct {
	profile *profile.Profile
	driver  Driver

	cacheConfig cache.Config

	pendingCache  *cache.Cache // cache for the pending-proposal count
	playbookCache *cache.Cache // cache for playbook listings
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	cacheConfig := cache.Config{
		DefaultTTL:      time.Minute,
		CleanupInterval: 5 * time.Minute,
		MaxItems:        100,
		OnEviction:      nil,
	}

	store := &Store{
		driver:        driver,
		profile:       profile,
		cacheConfig:   cacheConfig,
		pendingCache:  cache.New(cacheConfig),
		playbookCache: cache.New(cacheConfig),
	}

	return store
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	// Stop all cache cleanup goroutines
	s.pendingCache.Close()
	s.playbookCache.Close()

	return s.driver.Close()
}
