// Package planner turns a raw crawl request into a validated plan: compiled
// filters, a canonical seed URL, best-effort robots.txt, and the discovery
// strategy (sitemap fan-out vs single-seed).
package planner

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/amberline/crawlcore/internal/store"
	"github.com/amberline/crawlcore/internal/util"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Strategy selects how the initial frontier is seeded.
type Strategy string

const (
	// StrategySitemap fans every sitemap URL out as an independent job.
	StrategySitemap Strategy = "sitemap"
	// StrategySeed creates exactly one job for the seed URL.
	StrategySeed Strategy = "seed"
)

// Request is the raw crawl request as received from the transport layer.
type Request struct {
	URL           string         `json:"url"`
	IncludePaths  []string       `json:"include_paths,omitempty"`
	ExcludePaths  []string       `json:"exclude_paths,omitempty"`
	MaxDepth      int            `json:"max_depth,omitempty"`
	Limit         int            `json:"limit,omitempty"`
	IgnoreSitemap bool           `json:"ignore_sitemap,omitempty"`
	FetchOptions  map[string]any `json:"fetch_options,omitempty"`
	TenantID      string         `json:"-"`
	PlanTier      string         `json:"-"`
}

// Plan is a validated crawl plan. Nothing has been persisted or enqueued
// when Plan is returned; the orchestrator owns those side effects.
type Plan struct {
	Descriptor  store.Descriptor
	Filters     *FilterSet
	Strategy    Strategy
	SitemapURLs []string
}

// Config tunes the planner's outbound HTTP behaviour.
type Config struct {
	UserAgent      string
	FetchTimeout   time.Duration
	RequestsPerSec float64
	DefaultLimit   int
}

// DefaultConfig returns the planner defaults used in production.
func DefaultConfig() Config {
	return Config{
		UserAgent:      "crawlcore/1.0",
		FetchTimeout:   30 * time.Second,
		RequestsPerSec: 5,
		DefaultLimit:   10000,
	}
}

// Planner validates crawl requests and decides the discovery strategy.
type Planner struct {
	client       *http.Client
	limiter      *rate.Limiter
	userAgent    string
	defaultLimit int
}

// New creates a Planner from config, filling zero values with defaults.
func New(cfg Config) *Planner {
	defaults := DefaultConfig()
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = defaults.FetchTimeout
	}
	if cfg.RequestsPerSec == 0 {
		cfg.RequestsPerSec = defaults.RequestsPerSec
	}
	if cfg.DefaultLimit == 0 {
		cfg.DefaultLimit = defaults.DefaultLimit
	}

	return &Planner{
		client: &http.Client{
			Timeout: cfg.FetchTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		limiter:      rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1),
		userAgent:    cfg.UserAgent,
		defaultLimit: cfg.DefaultLimit,
	}
}

// Plan validates the request and produces a crawl plan. Validation failures
// return *ValidationError with zero side effects; robots and sitemap
// problems degrade the plan rather than failing it.
func (p *Planner) Plan(ctx context.Context, req Request) (*Plan, error) {
	// 1. Compile filters eagerly so a malformed pattern fails the whole
	// request before any state exists.
	filters, err := CompileFilters(req.IncludePaths, req.ExcludePaths)
	if err != nil {
		return nil, err
	}

	// 2. Validate and canonicalise the seed URL.
	seedURL := util.NormaliseURL(req.URL)
	if seedURL == "" {
		return nil, &ValidationError{Field: "url", Message: fmt.Sprintf("%q is not a valid URL", req.URL)}
	}

	baseURL := util.BaseURL(seedURL)
	if baseURL == "" {
		return nil, &ValidationError{Field: "url", Message: fmt.Sprintf("%q has no usable host", req.URL)}
	}

	limit := req.Limit
	if limit <= 0 {
		limit = p.defaultLimit
	}

	// 3. Robots.txt is best-effort: this is the single site where its
	// failure is deliberately discarded, absence means permissive.
	robotsText, err := p.FetchRobots(ctx, baseURL)
	if err != nil {
		log.Warn().
			Err(err).
			Str("url", seedURL).
			Msg("Failed to fetch robots.txt, proceeding without restrictions")
		robotsText = ""
	}

	plan := &Plan{
		Descriptor: store.Descriptor{
			OriginURL: seedURL,
			Filters: store.FilterOptions{
				IncludePaths:  req.IncludePaths,
				ExcludePaths:  req.ExcludePaths,
				MaxDepth:      req.MaxDepth,
				Limit:         limit,
				IgnoreSitemap: req.IgnoreSitemap,
			},
			FetchOptions: req.FetchOptions,
			TenantID:     req.TenantID,
			PlanTier:     req.PlanTier,
			CreatedAt:    time.Now().UTC(),
			RobotsText:   robotsText,
		},
		Filters:  filters,
		Strategy: StrategySeed,
	}

	// 4. Discovery strategy: sitemap fan-out when a usable sitemap exists,
	// single-seed otherwise. Sitemap failures fall back, never fail.
	if !req.IgnoreSitemap {
		plan.SitemapURLs = p.collectSitemapURLs(ctx, baseURL, robotsText, filters, limit)
		if len(plan.SitemapURLs) > 0 {
			plan.Strategy = StrategySitemap
		}
	}

	log.Info().
		Str("url", seedURL).
		Str("strategy", string(plan.Strategy)).
		Int("sitemap_urls", len(plan.SitemapURLs)).
		Msg("Crawl planned")

	return plan, nil
}

// collectSitemapURLs gathers, filters and caps the URLs from all discovered
// sitemaps. Any sitemap error is swallowed here; an empty result simply
// selects single-seed discovery.
func (p *Planner) collectSitemapURLs(ctx context.Context, baseURL, robotsText string, filters *FilterSet, limit int) []string {
	sitemaps := p.DiscoverSitemaps(ctx, baseURL, robotsText)

	var urls []string
	for _, sitemapURL := range sitemaps {
		sitemapURLs, err := p.ParseSitemap(ctx, sitemapURL)
		if err != nil {
			log.Warn().
				Err(err).
				Str("sitemap_url", sitemapURL).
				Msg("Error parsing sitemap, skipping")
			continue
		}
		urls = append(urls, sitemapURLs...)
	}

	urls = filters.FilterURLs(urls)

	// Deduplicate while preserving sitemap order
	seen := make(map[string]bool, len(urls))
	unique := urls[:0]
	for _, u := range urls {
		if !seen[u] {
			seen[u] = true
			unique = append(unique, u)
		}
	}

	if len(unique) > limit {
		unique = unique[:limit]
	}

	return unique
}
