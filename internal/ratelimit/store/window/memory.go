package window

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"quiz/internal/ratelimit/models"
)

const defaultShards = 32

// MemoryStore implements ports.WindowStore with sharded in-process maps.
// Hits for the same key serialize on the key's shard; different shards proceed in parallel.
type MemoryStore struct {
	shards []*shard
}

type shard struct {
	mu      sync.Mutex
	entries map[string]models.Entry
}

// NewMemoryStore creates a new in-memory window store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{shards: make([]*shard, defaultShards)}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]models.Entry)}
	}
	return s
}

func (s *MemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// Hit resets or increments the counter for key.
func (s *MemoryStore) Hit(_ context.Context, key string, window time.Duration, now time.Time) (models.Entry, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	var current *models.Entry
	if e, ok := sh.entries[key]; ok {
		current = &e
	}
	next := models.Advance(current, now, window)
	sh.entries[key] = next
	return next, nil
}

// Sweep removes entries whose window started before cutoff.
func (s *MemoryStore) Sweep(_ context.Context, cutoff time.Time) (int, error) {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, e := range sh.entries {
			if e.WindowStart.Before(cutoff) {
				delete(sh.entries, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed, nil
}

// Reset clears the rate limit counter for a key.
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.entries, key)
	return nil
}

// Get returns the stored entry for key, if any.
func (s *MemoryStore) Get(key string) (models.Entry, bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.entries[key]
	return e, ok
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}
