package service

import (
	"context"
	"sync"
	"time"

	"github.com/noah-isme/examslot-api/internal/models"
)

const runCachePrefix = "runs:"

// ScheduleRunStore keeps asynchronous run state in memory for a TTL and mirrors
// every write to the cache so other replicas can answer status reads.
type ScheduleRunStore struct {
	ttl   time.Duration
	cache *CacheService
	now   func() time.Time

	mu    sync.RWMutex
	items map[string]models.ScheduleRun
}

// NewScheduleRunStore builds a run store. A nil cache keeps state process-local.
func NewScheduleRunStore(ttl time.Duration, cache *CacheService) *ScheduleRunStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ScheduleRunStore{ttl: ttl, cache: cache, now: time.Now, items: make(map[string]models.ScheduleRun)}
}

// Save records the run and refreshes its timestamps.
func (s *ScheduleRunStore) Save(ctx context.Context, run models.ScheduleRun) models.ScheduleRun {
	now := s.now().UTC().Unix()
	if run.CreatedAt == 0 {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	s.mu.Lock()
	s.items[run.ID] = run
	s.mu.Unlock()

	_ = s.cache.Set(ctx, runCachePrefix+run.ID, run, s.ttl)
	return run
}

// Get returns a live run from memory, falling back to the cache mirror.
func (s *ScheduleRunStore) Get(ctx context.Context, id string) (models.ScheduleRun, bool) {
	s.mu.RLock()
	run, ok := s.items[id]
	s.mu.RUnlock()
	if ok {
		if s.now().UTC().Unix()-run.UpdatedAt > int64(s.ttl/time.Second) {
			s.Delete(id)
			return models.ScheduleRun{}, false
		}
		return run, true
	}

	var cached models.ScheduleRun
	if hit, err := s.cache.Get(ctx, runCachePrefix+id, &cached); err == nil && hit {
		return cached, true
	}
	return models.ScheduleRun{}, false
}

// Delete drops a run from memory.
func (s *ScheduleRunStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}
