package store

import (
	"context"
	"sync"
	"time"
)

type memoryCrawl struct {
	desc      Descriptor
	urls      map[string]struct{}
	jobs      []string
	expiresAt time.Time
}

// MemoryStore is an in-process CrawlStore with the same atomic test-and-add
// contract as RedisStore. It backs tests and local development; a single
// mutex gives it the serialisation Redis provides natively.
type MemoryStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	crawls map[string]*memoryCrawl
}

// NewMemoryStore creates an empty in-memory store with the given TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:    ttl,
		crawls: make(map[string]*memoryCrawl),
	}
}

// live returns the crawl entry if it exists and has not expired. Expired
// entries are removed so they are indistinguishable from never-created ones.
// Callers must hold the mutex.
func (s *MemoryStore) live(id string) (*memoryCrawl, bool) {
	entry, ok := s.crawls[id]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.crawls, id)
		return nil, false
	}
	return entry, true
}

// Save upserts the descriptor and refreshes the TTL.
func (s *MemoryStore) Save(ctx context.Context, id string, desc *Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(id)
	if !ok {
		entry = &memoryCrawl{urls: make(map[string]struct{})}
		s.crawls[id] = entry
	}
	entry.desc = *desc
	entry.expiresAt = time.Now().Add(s.ttl)

	return nil
}

// Get returns a copy of the descriptor or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Descriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(id)
	if !ok {
		return nil, ErrNotFound
	}

	desc := entry.desc
	return &desc, nil
}

// LockURL atomically tests-and-adds a URL to the crawl's admission set.
func (s *MemoryStore) LockURL(ctx context.Context, id, url string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.admissionEntry(id)
	if _, exists := entry.urls[url]; exists {
		return false, nil
	}
	entry.urls[url] = struct{}{}

	return true, nil
}

// LockURLs bulk-admits URLs under one lock acquisition, mirroring the
// MULTI/EXEC window of the Redis implementation.
func (s *MemoryStore) LockURLs(ctx context.Context, id string, urls []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.admissionEntry(id)
	admitted := make([]string, 0, len(urls))
	for _, url := range urls {
		if _, exists := entry.urls[url]; exists {
			continue
		}
		entry.urls[url] = struct{}{}
		admitted = append(admitted, url)
	}

	return admitted, nil
}

// admissionEntry returns the live crawl entry, creating one if needed so the
// admission set can exist independently of a saved descriptor (matching
// Redis, where the set key is separate from the descriptor key).
// Callers must hold the mutex.
func (s *MemoryStore) admissionEntry(id string) *memoryCrawl {
	entry, ok := s.live(id)
	if !ok {
		entry = &memoryCrawl{
			urls:      make(map[string]struct{}),
			expiresAt: time.Now().Add(s.ttl),
		}
		s.crawls[id] = entry
	}
	return entry
}

// RegisterJob appends one job id to the registry.
func (s *MemoryStore) RegisterJob(ctx context.Context, id, jobID string) error {
	return s.RegisterJobs(ctx, id, []string{jobID})
}

// RegisterJobs appends job ids to the registry.
func (s *MemoryStore) RegisterJobs(ctx context.Context, id string, jobIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.admissionEntry(id)
	entry.jobs = append(entry.jobs, jobIDs...)

	return nil
}

// JobCount returns the registry size for the crawl.
func (s *MemoryStore) JobCount(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(id)
	if !ok {
		return 0, nil
	}

	return len(entry.jobs), nil
}
