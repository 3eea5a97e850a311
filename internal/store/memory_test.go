//go:build unit || !integration

package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDescriptor() *Descriptor {
	return &Descriptor{
		OriginURL: "https://example.com",
		Filters: FilterOptions{
			IncludePaths: []string{"/blog/.*"},
			Limit:        100,
		},
		TenantID:  "tenant-1",
		PlanTier:  "standard",
		CreatedAt: time.Now().UTC(),
	}
}

func TestSaveAndGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)

	desc := testDescriptor()
	require.NoError(t, s.Save(ctx, "crawl-1", desc))

	got, err := s.Get(ctx, "crawl-1")
	require.NoError(t, err)
	assert.Equal(t, desc.OriginURL, got.OriginURL)
	assert.Equal(t, desc.TenantID, got.TenantID)
	assert.False(t, got.Cancelled)
}

func TestGetReturnsCopy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)

	require.NoError(t, s.Save(ctx, "crawl-1", testDescriptor()))

	first, err := s.Get(ctx, "crawl-1")
	require.NoError(t, err)
	first.Cancelled = true

	second, err := s.Get(ctx, "crawl-1")
	require.NoError(t, err)
	assert.False(t, second.Cancelled, "mutating a returned descriptor must not affect the store")
}

func TestCancellationVisibleAfterSave(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)

	require.NoError(t, s.Save(ctx, "crawl-1", testDescriptor()))

	desc, err := s.Get(ctx, "crawl-1")
	require.NoError(t, err)
	desc.Cancelled = true
	require.NoError(t, s.Save(ctx, "crawl-1", desc))

	got, err := s.Get(ctx, "crawl-1")
	require.NoError(t, err)
	assert.True(t, got.Cancelled)
}

func TestNotFoundAndExpiredIndistinguishable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore(10 * time.Millisecond)

	// Never created
	_, err := s.Get(ctx, "never-existed")
	assert.ErrorIs(t, err, ErrNotFound)

	// Created, then expired
	require.NoError(t, s.Save(ctx, "crawl-1", testDescriptor()))
	time.Sleep(25 * time.Millisecond)

	_, err = s.Get(ctx, "crawl-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLockURLIdempotentAdmission(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)

	admitted, err := s.LockURL(ctx, "crawl-1", "https://example.com/a")
	require.NoError(t, err)
	assert.True(t, admitted)

	admitted, err = s.LockURL(ctx, "crawl-1", "https://example.com/a")
	require.NoError(t, err)
	assert.False(t, admitted)

	// The registry is untouched by admission attempts
	count, err := s.JobCount(ctx, "crawl-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestLockURLAtomicUnderConcurrency(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)

	const goroutines = 64

	var wg sync.WaitGroup
	results := make(chan bool, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			admitted, err := s.LockURL(ctx, "crawl-1", "https://example.com/contested")
			assert.NoError(t, err)
			results <- admitted
		}()
	}

	wg.Wait()
	close(results)

	winners := 0
	for admitted := range results {
		if admitted {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one concurrent caller must win admission")
}

func TestLockURLsBulkAdmission(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)

	// Pre-admit one URL through the single-URL path, as a link-discovery
	// worker racing the sitemap fan-out would
	admitted, err := s.LockURL(ctx, "crawl-1", "https://example.com/b")
	require.NoError(t, err)
	require.True(t, admitted)

	urls := []string{
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/c",
	}

	bulkAdmitted, err := s.LockURLs(ctx, "crawl-1", urls)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/c"}, bulkAdmitted)

	// Re-running the bulk admission admits nothing
	bulkAdmitted, err = s.LockURLs(ctx, "crawl-1", urls)
	require.NoError(t, err)
	assert.Empty(t, bulkAdmitted)
}

func TestLockURLsConcurrentWithLockURL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)

	const goroutines = 32
	urls := []string{"https://example.com/x", "https://example.com/y"}

	var wg sync.WaitGroup
	admissions := make(chan int, goroutines*2)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bulkAdmitted, err := s.LockURLs(ctx, "crawl-1", urls)
			assert.NoError(t, err)
			admissions <- len(bulkAdmitted)
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			admitted, err := s.LockURL(ctx, "crawl-1", urls[0])
			assert.NoError(t, err)
			if admitted {
				admissions <- 1
			} else {
				admissions <- 0
			}
		}()
	}

	wg.Wait()
	close(admissions)

	total := 0
	for n := range admissions {
		total += n
	}
	assert.Equal(t, len(urls), total, "each URL must be admitted exactly once across all callers")
}

func TestRegisterJobs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)

	require.NoError(t, s.RegisterJob(ctx, "crawl-1", "job-1"))
	require.NoError(t, s.RegisterJobs(ctx, "crawl-1", []string{"job-2", "job-3"}))

	count, err := s.JobCount(ctx, "crawl-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// Duplicates are tolerated; the registry grows monotonically
	require.NoError(t, s.RegisterJob(ctx, "crawl-1", "job-1"))
	count, err = s.JobCount(ctx, "crawl-1")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}
