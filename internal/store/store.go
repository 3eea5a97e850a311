package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a crawl id does not exist in the store.
// A crawl whose TTL has elapsed is indistinguishable from one that was
// never created.
var ErrNotFound = errors.New("crawl not found")

// ErrUnavailable wraps transport-level failures of the underlying store.
var ErrUnavailable = errors.New("crawl store unavailable")

// FilterOptions holds the caller-supplied crawl scoping knobs. Raw patterns
// are kept here so the descriptor stays serialisable; compilation happens in
// the planner.
type FilterOptions struct {
	IncludePaths  []string `json:"include_paths,omitempty"`
	ExcludePaths  []string `json:"exclude_paths,omitempty"`
	MaxDepth      int      `json:"max_depth,omitempty"`
	Limit         int      `json:"limit,omitempty"`
	IgnoreSitemap bool     `json:"ignore_sitemap,omitempty"`
}

// Descriptor is the persisted state of one crawl. All fields except
// RobotsText and Cancelled are write-once at creation.
type Descriptor struct {
	OriginURL    string         `json:"origin_url"`
	Filters      FilterOptions  `json:"filter_options"`
	FetchOptions map[string]any `json:"fetch_options,omitempty"`
	TenantID     string         `json:"tenant_id"`
	PlanTier     string         `json:"plan_tier"`
	CreatedAt    time.Time      `json:"created_at"`
	RobotsText   string         `json:"robots_txt,omitempty"`
	Cancelled    bool           `json:"cancelled"`
}

// CrawlStore persists crawl descriptors, the URL admission set and the job
// registry for each crawl id. Implementations must guarantee that LockURL and
// LockURLs are atomic test-and-add operations: under concurrent admission
// attempts for the same (crawl id, URL) pair exactly one caller observes a
// successful admission.
type CrawlStore interface {
	// Save upserts the descriptor and refreshes its TTL.
	Save(ctx context.Context, id string, desc *Descriptor) error

	// Get returns the descriptor or ErrNotFound.
	Get(ctx context.Context, id string) (*Descriptor, error)

	// LockURL atomically adds url to the crawl's admission set. It reports
	// true only for the caller that performed the first successful add.
	LockURL(ctx context.Context, id, url string) (bool, error)

	// LockURLs is the bulk variant of LockURL with the same per-URL
	// atomicity. It returns the subset of urls that were newly admitted.
	LockURLs(ctx context.Context, id string, urls []string) ([]string, error)

	// RegisterJob appends a job id to the crawl's job registry.
	RegisterJob(ctx context.Context, id, jobID string) error

	// RegisterJobs appends many job ids in one round trip.
	RegisterJobs(ctx context.Context, id string, jobIDs []string) error

	// JobCount returns the number of jobs registered for the crawl so far.
	JobCount(ctx context.Context, id string) (int, error)
}
