//go:build unit || !integration

package planner

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPlanner() *Planner {
	cfg := DefaultConfig()
	cfg.RequestsPerSec = 10000 // no outbound throttling in tests
	return New(cfg)
}

// siteMux builds a test origin with the given robots.txt and sitemap bodies.
// Empty strings serve 404 for the respective path.
func siteMux(robots, sitemap string) *http.ServeMux {
	mux := http.NewServeMux()
	if robots != "" {
		mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, robots)
		})
	}
	if sitemap != "" {
		mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/xml")
			fmt.Fprint(w, sitemap)
		})
	}
	return mux
}

func sitemapXML(urls ...string) string {
	body := `<?xml version="1.0" encoding="UTF-8"?><urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`
	for _, u := range urls {
		body += "<url><loc>" + u + "</loc></url>"
	}
	return body + "</urlset>"
}

func TestPlanInvalidSeedURL(t *testing.T) {
	t.Parallel()

	p := testPlanner()

	for _, raw := range []string{"", "   ", "https://", "https://http://bad"} {
		_, err := p.Plan(context.Background(), Request{URL: raw})

		var validationErr *ValidationError
		require.ErrorAs(t, err, &validationErr, "url %q", raw)
		assert.Equal(t, "url", validationErr.Field)
	}
}

func TestPlanInvalidFilterFailsBeforeAnyFetch(t *testing.T) {
	t.Parallel()

	fetched := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetched = true
	}))
	defer srv.Close()

	p := testPlanner()
	_, err := p.Plan(context.Background(), Request{
		URL:          srv.URL,
		ExcludePaths: []string{"[bad"},
	})

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.False(t, fetched, "validation must fail before any outbound request")
}

func TestPlanSitemapFanOut(t *testing.T) {
	t.Parallel()

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			fmt.Fprintf(w, "User-agent: *\nAllow: /\nSitemap: %s/sitemap.xml\n", srv.URL)
		case "/sitemap.xml":
			fmt.Fprint(w, sitemapXML(srv.URL+"/a", srv.URL+"/b", srv.URL+"/c"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := testPlanner()
	plan, err := p.Plan(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)

	assert.Equal(t, StrategySitemap, plan.Strategy)
	assert.Equal(t, []string{srv.URL + "/a", srv.URL + "/b", srv.URL + "/c"}, plan.SitemapURLs)
	assert.Contains(t, plan.Descriptor.RobotsText, "Sitemap:")
}

func TestPlanSitemapIndexRecursion(t *testing.T) {
	t.Parallel()

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap.xml":
			fmt.Fprintf(w, `<?xml version="1.0"?><sitemapindex><sitemap><loc>%s/pages.xml</loc></sitemap><sitemap><loc>%s/posts.xml</loc></sitemap></sitemapindex>`, srv.URL, srv.URL)
		case "/pages.xml":
			fmt.Fprint(w, sitemapXML(srv.URL+"/page-1"))
		case "/posts.xml":
			fmt.Fprint(w, sitemapXML(srv.URL+"/post-1", srv.URL+"/post-2"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := testPlanner()
	plan, err := p.Plan(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)

	assert.Equal(t, StrategySitemap, plan.Strategy)
	assert.ElementsMatch(t, []string{
		srv.URL + "/page-1",
		srv.URL + "/post-1",
		srv.URL + "/post-2",
	}, plan.SitemapURLs)
}

func TestPlanFallsBackToSeedWhenNoSitemap(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	p := testPlanner()
	plan, err := p.Plan(context.Background(), Request{URL: srv.URL + "/start"})
	require.NoError(t, err)

	assert.Equal(t, StrategySeed, plan.Strategy)
	assert.Empty(t, plan.SitemapURLs)
	assert.Equal(t, srv.URL+"/start", plan.Descriptor.OriginURL)
	// No robots.txt means no restrictions, not a failure
	assert.Empty(t, plan.Descriptor.RobotsText)
}

func TestPlanFallsBackToSeedOnMalformedSitemap(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sitemap.xml" {
			fmt.Fprint(w, "this is not xml at all {")
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	p := testPlanner()
	plan, err := p.Plan(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)

	assert.Equal(t, StrategySeed, plan.Strategy)
}

func TestPlanIgnoreSitemapSkipsDiscovery(t *testing.T) {
	t.Parallel()

	sitemapRequested := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sitemap.xml" {
			sitemapRequested = true
			fmt.Fprint(w, sitemapXML("https://example.com/a"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	p := testPlanner()
	plan, err := p.Plan(context.Background(), Request{URL: srv.URL, IgnoreSitemap: true})
	require.NoError(t, err)

	assert.Equal(t, StrategySeed, plan.Strategy)
	assert.False(t, sitemapRequested)
}

func TestPlanAppliesFiltersAndLimitToSitemapURLs(t *testing.T) {
	t.Parallel()

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sitemap.xml" {
			fmt.Fprint(w, sitemapXML(
				srv.URL+"/blog/1",
				srv.URL+"/blog/2",
				srv.URL+"/blog/3",
				srv.URL+"/about",
			))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	p := testPlanner()
	plan, err := p.Plan(context.Background(), Request{
		URL:          srv.URL,
		IncludePaths: []string{"^/blog/"},
		Limit:        2,
	})
	require.NoError(t, err)

	assert.Equal(t, StrategySitemap, plan.Strategy)
	assert.Equal(t, []string{srv.URL + "/blog/1", srv.URL + "/blog/2"}, plan.SitemapURLs)
	assert.Equal(t, 2, plan.Descriptor.Filters.Limit)
}
