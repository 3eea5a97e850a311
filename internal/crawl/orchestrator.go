// Package crawl composes the store, queue, planner and priority scheduler
// into the crawl orchestration flow: start, cancel, status, and worker-side
// admission of organically discovered links.
package crawl

import (
	"context"
	"fmt"
	"time"

	"github.com/amberline/crawlcore/internal/planner"
	"github.com/amberline/crawlcore/internal/queue"
	"github.com/amberline/crawlcore/internal/store"
	"github.com/amberline/crawlcore/internal/util"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Queue priorities. Smaller is serviced earlier. Sitemap fan-out runs at the
// bulk default; seed jobs start a crawl and get one tier more urgent, in
// line with direct on-demand fetches.
const (
	PriorityTierStep = 5
	PrioritySitemap  = 20
	PrioritySeed     = PrioritySitemap - PriorityTierStep
)

// SitemapPriorityThreshold is the fan-out size above which the per-tenant
// priority computation kicks in. At or below it the fixed default applies,
// skipping the scheduler entirely for small crawls.
const SitemapPriorityThreshold = 1000

// CrawlPlanner validates a request and decides the discovery strategy.
type CrawlPlanner interface {
	Plan(ctx context.Context, req planner.Request) (*planner.Plan, error)
}

// PriorityScheduler computes the admission priority for a tenant.
type PriorityScheduler interface {
	ComputePriority(ctx context.Context, tenantID, planTier string, base int) int
}

// Orchestrator realises the crawl lifecycle against injected collaborators.
// It holds no per-crawl state of its own; every worker process can run one.
type Orchestrator struct {
	store     store.CrawlStore
	queue     queue.Client
	planner   CrawlPlanner
	scheduler PriorityScheduler
}

// NewOrchestrator wires an orchestrator from its collaborators.
func NewOrchestrator(st store.CrawlStore, q queue.Client, p CrawlPlanner, sched PriorityScheduler) *Orchestrator {
	return &Orchestrator{
		store:     st,
		queue:     q,
		planner:   p,
		scheduler: sched,
	}
}

// Status is the crawl state reported to callers.
type Status struct {
	ID         string              `json:"id"`
	OriginURL  string              `json:"origin_url"`
	Filters    store.FilterOptions `json:"filter_options"`
	CreatedAt  string              `json:"created_at"`
	Cancelled  bool                `json:"cancelled"`
	JobsQueued int                 `json:"jobs_queued"`
}

// StartCrawl validates the request, persists the descriptor, and seeds the
// frontier via sitemap fan-out or single-seed discovery. It returns the new
// crawl id once at least one job is registered.
//
// A failed enqueue after the descriptor save leaves a job-less crawl behind;
// there is no compensating delete, and Get still reports it accurately.
func (o *Orchestrator) StartCrawl(ctx context.Context, req planner.Request) (string, error) {
	span := sentry.StartSpan(ctx, "crawl.start")
	defer span.Finish()

	plan, err := o.planner.Plan(ctx, req)
	if err != nil {
		// Validation failures carry zero side effects by construction:
		// nothing has been persisted before this point.
		return "", err
	}

	crawlID := uuid.New().String()
	span.SetTag("crawl_id", crawlID)

	if err := o.store.Save(ctx, crawlID, &plan.Descriptor); err != nil {
		sentry.CaptureException(err)
		return "", fmt.Errorf("failed to persist crawl descriptor: %w", err)
	}

	switch plan.Strategy {
	case planner.StrategySitemap:
		err = o.seedFromSitemap(ctx, crawlID, plan)
	default:
		err = o.seedFromOrigin(ctx, crawlID, plan)
	}
	if err != nil {
		sentry.CaptureException(err)
		return "", err
	}

	crawlsStarted.WithLabelValues(string(plan.Strategy)).Inc()

	log.Info().
		Str("crawl_id", crawlID).
		Str("origin_url", plan.Descriptor.OriginURL).
		Str("strategy", string(plan.Strategy)).
		Msg("Crawl started")

	return crawlID, nil
}

// seedFromSitemap bulk-admits the sitemap URLs and enqueues one job per
// admitted URL in a single batch sharing one priority value.
func (o *Orchestrator) seedFromSitemap(ctx context.Context, crawlID string, plan *planner.Plan) error {
	desc := &plan.Descriptor

	prio := PrioritySitemap
	if len(plan.SitemapURLs) > SitemapPriorityThreshold {
		prio = o.scheduler.ComputePriority(ctx, desc.TenantID, desc.PlanTier, PrioritySitemap)
	}

	admitted, err := o.store.LockURLs(ctx, crawlID, plan.SitemapURLs)
	if err != nil {
		return fmt.Errorf("failed to admit sitemap URLs: %w", err)
	}

	urlsAdmitted.WithLabelValues(string(queue.ModeSitemap)).Add(float64(len(admitted)))
	urlsDuplicate.WithLabelValues(string(queue.ModeSitemap)).Add(float64(len(plan.SitemapURLs) - len(admitted)))

	if len(admitted) == 0 {
		log.Warn().Str("crawl_id", crawlID).Msg("No sitemap URLs admitted, nothing to enqueue")
		return nil
	}

	entries := make([]queue.Entry, len(admitted))
	jobIDs := make([]string, len(admitted))
	for i, u := range admitted {
		jobIDs[i] = uuid.New().String()
		entries[i] = queue.Entry{
			ID:       jobIDs[i],
			Priority: prio,
			Payload: queue.Payload{
				URL:          u,
				Mode:         queue.ModeSitemap,
				CrawlID:      crawlID,
				TenantID:     desc.TenantID,
				Filters:      desc.Filters,
				FetchOptions: desc.FetchOptions,
				Origin:       "crawl:sitemap",
			},
		}
	}

	if _, err := o.queue.EnqueueBulk(ctx, entries); err != nil {
		return fmt.Errorf("failed to enqueue sitemap batch: %w", err)
	}

	if err := o.store.RegisterJobs(ctx, crawlID, jobIDs); err != nil {
		return fmt.Errorf("failed to register sitemap jobs: %w", err)
	}

	jobsEnqueued.WithLabelValues(string(queue.ModeSitemap)).Add(float64(len(entries)))

	log.Info().
		Str("crawl_id", crawlID).
		Int("job_count", len(entries)).
		Int("priority", prio).
		Msg("Sitemap fan-out enqueued")

	return nil
}

// seedFromOrigin admits the seed URL and enqueues the single crawl-starting
// job at the seed priority.
func (o *Orchestrator) seedFromOrigin(ctx context.Context, crawlID string, plan *planner.Plan) error {
	desc := &plan.Descriptor

	admitted, err := o.store.LockURL(ctx, crawlID, desc.OriginURL)
	if err != nil {
		return fmt.Errorf("failed to admit seed URL: %w", err)
	}
	if !admitted {
		// The crawl id is fresh, so the seed can only already be admitted if
		// the caller reused an id. Treat as done rather than double-enqueue.
		log.Warn().Str("crawl_id", crawlID).Str("url", desc.OriginURL).Msg("Seed URL already admitted")
		return nil
	}

	urlsAdmitted.WithLabelValues(string(queue.ModeSeed)).Inc()

	jobID := uuid.New().String()
	entry := queue.Entry{
		ID:       jobID,
		Priority: PrioritySeed,
		Payload: queue.Payload{
			URL:          desc.OriginURL,
			Mode:         queue.ModeSeed,
			CrawlID:      crawlID,
			TenantID:     desc.TenantID,
			Filters:      desc.Filters,
			FetchOptions: desc.FetchOptions,
			Origin:       "crawl:seed",
		},
	}

	if _, err := o.queue.Enqueue(ctx, entry); err != nil {
		return fmt.Errorf("failed to enqueue seed job: %w", err)
	}

	if err := o.store.RegisterJob(ctx, crawlID, jobID); err != nil {
		return fmt.Errorf("failed to register seed job: %w", err)
	}

	jobsEnqueued.WithLabelValues(string(queue.ModeSeed)).Inc()

	return nil
}

// CancelCrawl marks the crawl cancelled. Cancellation is cooperative:
// workers stop producing new admissions once they next observe the flag, so
// jobs already dispatched may still complete. The write-back is best-effort
// by policy; its failure is logged here and not surfaced.
func (o *Orchestrator) CancelCrawl(ctx context.Context, crawlID string) error {
	span := sentry.StartSpan(ctx, "crawl.cancel")
	defer span.Finish()
	span.SetTag("crawl_id", crawlID)

	desc, err := o.store.Get(ctx, crawlID)
	if err != nil {
		return err
	}

	if desc.Cancelled {
		return nil
	}

	desc.Cancelled = true
	if err := o.store.Save(ctx, crawlID, desc); err != nil {
		sentry.CaptureException(err)
		log.Warn().
			Err(err).
			Str("crawl_id", crawlID).
			Msg("Failed to persist cancellation, crawl may admit a little longer")
		return nil
	}

	crawlsCancelled.Inc()

	log.Info().Str("crawl_id", crawlID).Msg("Crawl cancelled")

	return nil
}

// GetCrawl returns the crawl's descriptor summary and registered job count.
func (o *Orchestrator) GetCrawl(ctx context.Context, crawlID string) (*Status, error) {
	desc, err := o.store.Get(ctx, crawlID)
	if err != nil {
		return nil, err
	}

	count, err := o.store.JobCount(ctx, crawlID)
	if err != nil {
		return nil, err
	}

	return &Status{
		ID:         crawlID,
		OriginURL:  desc.OriginURL,
		Filters:    desc.Filters,
		CreatedAt:  desc.CreatedAt.Format(time.RFC3339),
		Cancelled:  desc.Cancelled,
		JobsQueued: count,
	}, nil
}

// AdmitDiscovered admits links found while processing a page and enqueues
// jobs for the ones that won their admission race. Workers call this
// concurrently with each other and with sitemap fan-out for the same crawl;
// the store's atomic test-and-add keeps each URL single-admission. Returns
// the job ids enqueued for newly admitted URLs.
func (o *Orchestrator) AdmitDiscovered(ctx context.Context, crawlID string, urls []string) ([]string, error) {
	span := sentry.StartSpan(ctx, "crawl.admit_discovered")
	defer span.Finish()
	span.SetTag("crawl_id", crawlID)

	desc, err := o.store.Get(ctx, crawlID)
	if err != nil {
		return nil, err
	}

	// Cooperative cancellation: a cancelled crawl is no longer a source of
	// new admissions.
	if desc.Cancelled {
		log.Debug().Str("crawl_id", crawlID).Msg("Crawl cancelled, dropping discovered URLs")
		return nil, nil
	}

	filters, err := planner.CompileFilters(desc.Filters.IncludePaths, desc.Filters.ExcludePaths)
	if err != nil {
		// Patterns were validated at crawl start, so this indicates a
		// corrupted descriptor.
		return nil, fmt.Errorf("failed to recompile crawl filters: %w", err)
	}

	var jobIDs []string
	var entries []queue.Entry
	for _, raw := range urls {
		u := util.NormaliseURL(raw)
		if u == "" || !filters.Matches(u) {
			continue
		}

		admitted, err := o.store.LockURL(ctx, crawlID, u)
		if err != nil {
			return jobIDs, fmt.Errorf("failed to admit discovered URL: %w", err)
		}
		if !admitted {
			urlsDuplicate.WithLabelValues(string(queue.ModeDiscovered)).Inc()
			continue
		}

		urlsAdmitted.WithLabelValues(string(queue.ModeDiscovered)).Inc()

		jobID := uuid.New().String()
		jobIDs = append(jobIDs, jobID)
		entries = append(entries, queue.Entry{
			ID: jobID,
			Payload: queue.Payload{
				URL:          u,
				Mode:         queue.ModeDiscovered,
				CrawlID:      crawlID,
				TenantID:     desc.TenantID,
				Filters:      desc.Filters,
				FetchOptions: desc.FetchOptions,
				Origin:       "crawl:discovered",
			},
		})
	}

	if len(entries) == 0 {
		return nil, nil
	}

	prio := o.scheduler.ComputePriority(ctx, desc.TenantID, desc.PlanTier, PrioritySitemap)
	for i := range entries {
		entries[i].Priority = prio
	}

	if _, err := o.queue.EnqueueBulk(ctx, entries); err != nil {
		return nil, fmt.Errorf("failed to enqueue discovered URLs: %w", err)
	}

	if err := o.store.RegisterJobs(ctx, crawlID, jobIDs); err != nil {
		return nil, fmt.Errorf("failed to register discovered jobs: %w", err)
	}

	jobsEnqueued.WithLabelValues(string(queue.ModeDiscovered)).Add(float64(len(entries)))

	return jobIDs, nil
}
