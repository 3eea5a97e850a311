package planner

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// robotsMaxSize limits robots.txt reads to 1MB to prevent memory exhaustion.
const robotsMaxSize = 1 * 1024 * 1024

// FetchRobots retrieves the raw robots.txt for the seed's origin. It is
// best-effort by policy: callers discard the error at exactly one site and
// proceed as if no robots rules exist.
func (p *Planner) FetchRobots(ctx context.Context, baseURL string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", err
	}

	robotsURL := strings.TrimSuffix(baseURL, "/") + "/robots.txt"

	log.Debug().Str("robots_url", robotsURL).Msg("Fetching robots.txt")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// No robots.txt means no restrictions
		if resp.StatusCode == http.StatusNotFound {
			return "", nil
		}
		return "", fmt.Errorf("robots.txt returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, robotsMaxSize))
	if err != nil {
		return "", fmt.Errorf("failed to read robots.txt: %w", err)
	}

	if len(body) == robotsMaxSize {
		log.Warn().Int("size_bytes", len(body)).Msg("robots.txt truncated at 1MB limit")
	}

	return string(body), nil
}

// sitemapsFromRobots extracts Sitemap directives from robots.txt content.
// The directive applies globally, regardless of user-agent sections.
func sitemapsFromRobots(robotsText string) []string {
	var sitemaps []string

	for _, line := range strings.Split(robotsText, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(strings.ToLower(line), "sitemap:") {
			sitemapURL := strings.TrimSpace(line[len("sitemap:"):])
			if sitemapURL != "" {
				sitemaps = append(sitemaps, sitemapURL)
			}
		}
	}

	return sitemaps
}
