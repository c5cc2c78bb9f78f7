package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	aether "github.com/nmang004/projectaether"
)

func testSite(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, `<html><head><title>Acme Widgets</title>
<meta name="description" content="Widgets for every occasion"></head>
<body><h1>Welcome to Acme</h1>
<p>We build widgets, sprockets, and gadgets for industrial customers
around the world. Browse the catalog to learn more.</p>
<a href="/catalog">Catalog</a>
<a href="/about">About</a>
<a href="/catalog#pricing">Pricing anchor</a>
<a href="https://partner.example/widgets">Partner</a>
</body></html>`)
	})
	mux.HandleFunc("/catalog", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html><head><title>Catalog</title></head>
<body><h1>Catalog</h1><p>Sprockets and gadgets.</p>
<a href="/catalog/widgets">Widgets</a></body></html>`)
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, r *http.Request) {
		// No title, description, or h1.
		io.WriteString(w, `<html><head></head><body><p>About us.</p>
<a href="/missing">Old page</a></body></html>`)
	})
	mux.HandleFunc("/catalog/widgets", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html><head><title>Widgets</title></head>
<body><h1>Widgets</h1><p>All the widgets.</p></body></html>`)
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testCrawler(srv *httptest.Server) *Crawler {
	return NewCrawler(
		WithHTTPClient(srv.Client()),
		WithCrawlerLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithHostRate(1000, 100),
	)
}

func pageByURL(report *CrawlReport, u string) *Page {
	for i := range report.Pages {
		if report.Pages[i].URL == u {
			return &report.Pages[i]
		}
	}
	return nil
}

func TestCrawl_ExtractsSEOSignals(t *testing.T) {
	srv := testSite(t, nil)
	c := testCrawler(srv)

	report, err := c.Crawl(context.Background(), CrawlSpec{RootURL: srv.URL, MaxDepth: 3, MaxPages: 20}, nil)
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}

	// Root, /catalog, /about, /catalog/widgets, and the 404 /missing.
	if report.PagesCrawled != 5 {
		t.Fatalf("PagesCrawled = %d, want 5", report.PagesCrawled)
	}

	root := pageByURL(report, srv.URL)
	if root == nil {
		t.Fatalf("root page missing from report: %+v", report.Pages)
	}
	if root.Title != "Acme Widgets" {
		t.Errorf("root Title = %q", root.Title)
	}
	if root.MetaDescription != "Widgets for every occasion" {
		t.Errorf("root MetaDescription = %q", root.MetaDescription)
	}
	if root.H1 != "Welcome to Acme" {
		t.Errorf("root H1 = %q", root.H1)
	}
	if root.WordCount == 0 {
		t.Error("root WordCount = 0")
	}
	// The fragment link deduplicates onto /catalog.
	if len(root.InternalLinks) != 2 {
		t.Errorf("root InternalLinks = %v, want catalog and about", root.InternalLinks)
	}
	if len(root.ExternalLinks) != 1 {
		t.Errorf("root ExternalLinks = %v, want one partner link", root.ExternalLinks)
	}

	if report.Issues.MissingTitles != 1 || report.Issues.MissingH1 != 1 {
		t.Errorf("Issues = %+v, want the about page flagged", report.Issues)
	}
	if report.Issues.BrokenPages != 1 {
		t.Errorf("BrokenPages = %d, want the missing page counted", report.Issues.BrokenPages)
	}
	if report.DepthReached != 2 {
		t.Errorf("DepthReached = %d, want 2", report.DepthReached)
	}
}

func TestCrawl_RespectsMaxDepth(t *testing.T) {
	srv := testSite(t, nil)
	c := testCrawler(srv)

	report, err := c.Crawl(context.Background(), CrawlSpec{RootURL: srv.URL, MaxDepth: 0, MaxPages: 20}, nil)
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if report.PagesCrawled != 1 {
		t.Errorf("PagesCrawled = %d, want root only", report.PagesCrawled)
	}
	if report.PagesDiscovered < 3 {
		t.Errorf("PagesDiscovered = %d, want links counted though not followed", report.PagesDiscovered)
	}
}

func TestCrawl_RespectsMaxPages(t *testing.T) {
	srv := testSite(t, nil)
	c := testCrawler(srv)

	report, err := c.Crawl(context.Background(), CrawlSpec{RootURL: srv.URL, MaxDepth: 3, MaxPages: 2}, nil)
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if report.PagesCrawled > 2 {
		t.Errorf("PagesCrawled = %d, want at most 2", report.PagesCrawled)
	}
}

func TestCrawl_ZeroMaxPagesFetchesNothing(t *testing.T) {
	var hits atomic.Int64
	srv := testSite(t, &hits)
	c := testCrawler(srv)

	report, err := c.Crawl(context.Background(), CrawlSpec{RootURL: srv.URL, MaxDepth: 3, MaxPages: 0}, nil)
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if report.PagesCrawled != 0 {
		t.Errorf("PagesCrawled = %d, want 0", report.PagesCrawled)
	}
	if hits.Load() != 0 {
		t.Errorf("server hits = %d, want 0", hits.Load())
	}
}

func TestCrawl_RootFetchFailureIsTransient(t *testing.T) {
	srv := testSite(t, nil)
	client := srv.Client()
	srv.Close()

	c := NewCrawler(
		WithHTTPClient(client),
		WithCrawlerLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithHostRate(1000, 100),
	)
	_, err := c.Crawl(context.Background(), CrawlSpec{RootURL: srv.URL, MaxDepth: 1, MaxPages: 5}, nil)
	if err == nil {
		t.Fatal("Crawl succeeded against a closed server")
	}
	if aether.KindOf(err) != aether.KindTransient {
		t.Errorf("KindOf(err) = %q, want transient", aether.KindOf(err))
	}
}

func TestCrawl_OnPageCallback(t *testing.T) {
	srv := testSite(t, nil)
	c := testCrawler(srv)

	var seen atomic.Int64
	report, err := c.Crawl(context.Background(), CrawlSpec{RootURL: srv.URL, MaxDepth: 3, MaxPages: 20},
		func(p Page) { seen.Add(1) })
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if int(seen.Load()) != report.PagesCrawled {
		t.Errorf("callback fired %d times for %d pages", seen.Load(), report.PagesCrawled)
	}
}

func TestCrawl_Cancellation(t *testing.T) {
	srv := testSite(t, nil)
	c := testCrawler(srv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Crawl(ctx, CrawlSpec{RootURL: srv.URL, MaxDepth: 3, MaxPages: 20}, nil)
	if err == nil {
		t.Fatal("Crawl succeeded with a cancelled context")
	}
	if !errors.Is(err, context.Canceled) && aether.KindOf(err) != aether.KindPermanent {
		t.Errorf("err = %v, want cancellation surfaced", err)
	}
}
