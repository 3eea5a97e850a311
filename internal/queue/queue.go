package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/amberline/crawlcore/internal/store"
)

// ErrWaitTimeout is returned by WaitFor when the job result does not arrive
// within the deadline. Timing out is an expected outcome at call sites that
// speculatively wait on freshly created jobs, so it gets a sentinel rather
// than an opaque error.
var ErrWaitTimeout = errors.New("timed out waiting for job result")

// ErrUnavailable wraps transport-level failures of the underlying queue.
var ErrUnavailable = errors.New("job queue unavailable")

// Mode tags how a job's URL entered the crawl frontier.
type Mode string

const (
	ModeSeed       Mode = "seed"
	ModeSitemap    Mode = "sitemap"
	ModeDiscovered Mode = "discovered"
)

// Payload is the job body handed to the fetch workers. It carries everything
// a stateless worker needs to process one URL and attribute the work.
type Payload struct {
	URL          string              `json:"url"`
	Mode         Mode                `json:"mode"`
	CrawlID      string              `json:"crawl_id"`
	TenantID     string              `json:"tenant_id"`
	Filters      store.FilterOptions `json:"filter_options"`
	FetchOptions map[string]any      `json:"fetch_options,omitempty"`
	Origin       string              `json:"origin"`
}

// Entry is one job to be placed on the shared queue. Priority is a hint to
// the queue: a smaller value is serviced earlier.
type Entry struct {
	ID       string
	Payload  Payload
	Priority int
}

// Result is the outcome of a completed job as published by a worker.
type Result struct {
	JobID   string          `json:"job_id"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Handle refers to an enqueued job. Remove discards ephemeral jobs that must
// not linger in the queue's history after their result is consumed.
type Handle interface {
	ID() string
	Remove(ctx context.Context) error
}

// Client is the contract this engine requires from the shared priority
// queue. It does not own job execution; consumers are external workers.
type Client interface {
	// Enqueue places a single job. The entry's ID must be globally unique.
	Enqueue(ctx context.Context, entry Entry) (Handle, error)

	// EnqueueBulk places a batch of jobs so that consumers observe the whole
	// batch within one observable window, never a partial prefix pending
	// indefinitely.
	EnqueueBulk(ctx context.Context, entries []Entry) ([]Handle, error)

	// WaitFor blocks the calling goroutine until the named job's result is
	// available or the timeout elapses, in which case it returns
	// ErrWaitTimeout.
	WaitFor(ctx context.Context, jobID string, timeout time.Duration) (*Result, error)

	// TenantLoad reports how many of the tenant's jobs are currently
	// in flight on the queue. Feeds the admission priority computation.
	TenantLoad(ctx context.Context, tenantID string) (int64, error)
}
