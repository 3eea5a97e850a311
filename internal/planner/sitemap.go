package planner

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/amberline/crawlcore/internal/util"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// sitemapMaxDepth bounds sitemap-index recursion so a self-referencing index
// cannot loop forever.
const sitemapMaxDepth = 5

// sitemapChildConcurrency limits parallel child-sitemap fetches per index.
const sitemapChildConcurrency = 4

type sitemapIndex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

type urlSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

// DiscoverSitemaps returns candidate sitemap URLs for the origin: Sitemap
// directives from robots.txt first, then the conventional locations checked
// with HEAD requests. The result is deduplicated, discovery order preserved.
func (p *Planner) DiscoverSitemaps(ctx context.Context, baseURL, robotsText string) []string {
	candidates := sitemapsFromRobots(robotsText)

	if len(candidates) == 0 {
		for _, path := range []string{"/sitemap.xml", "/sitemap_index.xml"} {
			sitemapURL := baseURL + path
			if p.sitemapExists(ctx, sitemapURL) {
				candidates = append(candidates, sitemapURL)
			}
		}
	}

	seen := make(map[string]bool)
	var unique []string
	for _, candidate := range candidates {
		normalised := util.NormaliseURL(candidate)
		if normalised == "" || seen[normalised] {
			continue
		}
		seen[normalised] = true
		unique = append(unique, normalised)
	}

	log.Debug().
		Str("base_url", baseURL).
		Int("sitemap_count", len(unique)).
		Msg("Sitemap discovery completed")

	return unique
}

// sitemapExists probes a conventional sitemap location with a HEAD request.
func (p *Planner) sitemapExists(ctx context.Context, sitemapURL string) bool {
	if err := p.limiter.Wait(ctx); err != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, sitemapURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("url", sitemapURL).Msg("Sitemap location check failed")
		return false
	}
	resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// ParseSitemap fetches one sitemap and returns its normalised URLs. Sitemap
// indexes recurse into child sitemaps, parsed concurrently; a child that
// fails to parse is skipped, not fatal.
func (p *Planner) ParseSitemap(ctx context.Context, sitemapURL string) ([]string, error) {
	return p.parseSitemap(ctx, sitemapURL, 0)
}

func (p *Planner) parseSitemap(ctx context.Context, sitemapURL string, depth int) ([]string, error) {
	if depth >= sitemapMaxDepth {
		return nil, fmt.Errorf("sitemap nesting exceeds depth %d at %s", sitemapMaxDepth, sitemapURL)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch sitemap: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	// Try the index shape first; an empty Sitemaps slice means it was a
	// plain urlset (or junk, which the urlset decode will reject).
	var index sitemapIndex
	if err := xml.Unmarshal(body, &index); err == nil && len(index.Sitemaps) > 0 {
		return p.parseSitemapIndex(ctx, index, depth)
	}

	var set urlSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("failed to parse sitemap XML: %w", err)
	}

	var urls []string
	for _, entry := range set.URLs {
		if normalised := util.NormaliseURL(entry.Loc); normalised != "" {
			urls = append(urls, normalised)
		} else {
			log.Debug().Str("invalid_url", entry.Loc).Msg("Skipping invalid URL from sitemap")
		}
	}

	log.Debug().
		Str("sitemap_url", sitemapURL).
		Int("url_count", len(urls)).
		Msg("Parsed URLs from sitemap")

	return urls, nil
}

// parseSitemapIndex fans out over child sitemaps with bounded concurrency.
func (p *Planner) parseSitemapIndex(ctx context.Context, index sitemapIndex, depth int) ([]string, error) {
	var (
		mu   sync.Mutex
		urls []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sitemapChildConcurrency)

	for _, child := range index.Sitemaps {
		childURL := util.NormaliseURL(child.Loc)
		if childURL == "" {
			log.Warn().Str("url", child.Loc).Msg("Invalid child sitemap URL, skipping")
			continue
		}

		g.Go(func() error {
			childURLs, err := p.parseSitemap(gctx, childURL, depth+1)
			if err != nil {
				log.Warn().Err(err).Str("url", childURL).Msg("Failed to parse child sitemap")
				return nil
			}

			mu.Lock()
			urls = append(urls, childURLs...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return urls, nil
}
