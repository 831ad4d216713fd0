package transform

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"github.com/conneroisu/bundlr/internal/errors"
)

const shardCount = 32

// Entry is a cached chain result.
type Entry struct {
	Output      []byte
	Style       []byte
	Diagnostics []errors.LintDiagnostic
}

// Store is a content-addressed transform cache keyed by input hash. It is
// sharded to keep lock contention low across pool workers, and concurrent
// misses on the same hash run the chain once.
type Store struct {
	shards [shardCount]*shard
	group  singleflight.Group

	// Statistics tracking (atomic for thread safety)
	hits   int64
	misses int64
	sets   int64
}

type shard struct {
	mutex   sync.RWMutex
	entries map[string]*Entry
}

// NewStore creates an empty store.
func NewStore() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]*Entry)}
	}
	return s
}

func (s *Store) shardFor(hash string) *shard {
	return s.shards[xxhash.Sum64String(hash)%shardCount]
}

// Get returns the entry for hash.
func (s *Store) Get(hash string) (*Entry, bool) {
	sh := s.shardFor(hash)
	sh.mutex.RLock()
	e, ok := sh.entries[hash]
	sh.mutex.RUnlock()
	return e, ok
}

// LoadOrStore inserts e unless an entry for hash already exists. It returns
// the entry now stored and whether it was already present.
func (s *Store) LoadOrStore(hash string, e *Entry) (*Entry, bool) {
	sh := s.shardFor(hash)
	sh.mutex.Lock()
	defer sh.mutex.Unlock()
	if existing, ok := sh.entries[hash]; ok {
		return existing, true
	}
	sh.entries[hash] = e
	atomic.AddInt64(&s.sets, 1)
	return e, false
}

// Do returns the cached entry for hash or computes it with fn. Failures are
// not cached. hit reports whether fn was skipped for this caller.
func (s *Store) Do(hash string, fn func() (*Entry, error)) (entry *Entry, hit bool, err error) {
	if e, ok := s.Get(hash); ok {
		atomic.AddInt64(&s.hits, 1)
		return e, true, nil
	}
	atomic.AddInt64(&s.misses, 1)

	v, err, _ := s.group.Do(hash, func() (interface{}, error) {
		if e, ok := s.Get(hash); ok {
			return e, nil
		}
		e, err := fn()
		if err != nil {
			return nil, err
		}
		stored, _ := s.LoadOrStore(hash, e)
		return stored, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*Entry), false, nil
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mutex.RLock()
		n += len(sh.entries)
		sh.mutex.RUnlock()
	}
	return n
}

// Clear drops every entry and resets statistics.
func (s *Store) Clear() {
	for _, sh := range s.shards {
		sh.mutex.Lock()
		sh.entries = make(map[string]*Entry)
		sh.mutex.Unlock()
	}
	atomic.StoreInt64(&s.hits, 0)
	atomic.StoreInt64(&s.misses, 0)
	atomic.StoreInt64(&s.sets, 0)
}

// GetHits returns the number of cache hits
func (s *Store) GetHits() int64 {
	return atomic.LoadInt64(&s.hits)
}

// GetMisses returns the number of cache misses
func (s *Store) GetMisses() int64 {
	return atomic.LoadInt64(&s.misses)
}

// GetHitRate returns the cache hit rate as a fraction between 0 and 1
func (s *Store) GetHitRate() float64 {
	hits := s.GetHits()
	total := hits + s.GetMisses()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
