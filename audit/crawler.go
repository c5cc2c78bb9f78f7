package audit

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	aether "github.com/nmang004/projectaether"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// maxBodyBytes bounds how much of a page the crawler reads.
const maxBodyBytes = 2 << 20

// Crawler fetches pages breadth-first from a root URL, staying on the
// root's host, and extracts the SEO signals each page carries. Fetch
// concurrency is bounded and each host is rate limited so the crawl never
// hammers the target.
type Crawler struct {
	client      *http.Client
	logger      *slog.Logger
	concurrency int
	hostRate    rate.Limit
	hostBurst   int
	userAgent   string

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// CrawlerOption configures a Crawler.
type CrawlerOption func(*Crawler)

// WithHTTPClient sets the HTTP client used for page fetches.
func WithHTTPClient(c *http.Client) CrawlerOption {
	return func(cr *Crawler) { cr.client = c }
}

// WithCrawlerLogger sets the logger.
func WithCrawlerLogger(l *slog.Logger) CrawlerOption {
	return func(cr *Crawler) { cr.logger = l }
}

// WithConcurrency bounds how many pages are fetched at once.
func WithConcurrency(n int) CrawlerOption {
	return func(cr *Crawler) { cr.concurrency = n }
}

// WithHostRate sets the per-host politeness limit in requests per second.
func WithHostRate(rps float64, burst int) CrawlerOption {
	return func(cr *Crawler) {
		cr.hostRate = rate.Limit(rps)
		cr.hostBurst = burst
	}
}

// NewCrawler creates a crawler with sane defaults: 5 concurrent fetches,
// 4 requests per second per host.
func NewCrawler(opts ...CrawlerOption) *Crawler {
	c := &Crawler{
		client:      &http.Client{Timeout: 15 * time.Second},
		logger:      slog.Default(),
		concurrency: 5,
		hostRate:    4,
		hostBurst:   2,
		userAgent:   "aether-crawler/1.0",
		limiters:    make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Crawl walks the site breadth-first from spec.RootURL up to MaxDepth
// link hops and MaxPages fetches. onPage, if non-nil, is called after
// every fetched page so the caller can publish progress.
//
// A root fetch that fails on the network is recoverable; deeper pages
// that fail are recorded in the report instead of failing the crawl.
func (c *Crawler) Crawl(ctx context.Context, spec CrawlSpec, onPage func(Page)) (*CrawlReport, error) {
	start := time.Now()

	root, err := url.Parse(spec.RootURL)
	if err != nil {
		return nil, aether.Validationf("root_url: %v", err)
	}

	if spec.MaxPages == 0 {
		return buildReport(spec.RootURL, nil, 0, time.Since(start)), nil
	}

	var (
		mu         sync.Mutex
		pages      []Page
		visited    = map[string]bool{canonical(root): true}
		discovered = 1
		frontier   = []string{canonical(root)}
	)

	for depth := 0; depth <= spec.MaxDepth && len(frontier) > 0; depth++ {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.concurrency)

		level := frontier
		frontier = nil

		for _, pageURL := range level {
			g.Go(func() error {
				p, fetchErr := c.fetchPage(gctx, pageURL, depth)
				if fetchErr != nil {
					if depth == 0 {
						return fetchErr
					}
					c.logger.Warn("page fetch failed",
						slog.String("url", pageURL),
						slog.String("error", fetchErr.Error()),
					)
					return nil
				}

				mu.Lock()
				pages = append(pages, *p)
				mu.Unlock()
				if onPage != nil {
					onPage(*p)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		// Queue the next level from this level's internal links, up to
		// the page budget.
		mu.Lock()
		sort.Slice(pages, func(i, j int) bool { return pages[i].URL < pages[j].URL })
		for _, p := range pages {
			if p.Depth != depth {
				continue
			}
			for _, link := range p.InternalLinks {
				if visited[link] {
					continue
				}
				visited[link] = true
				discovered++
				if len(visited) <= spec.MaxPages {
					frontier = append(frontier, link)
				}
			}
		}
		mu.Unlock()
	}

	return buildReport(spec.RootURL, pages, discovered, time.Since(start)), nil
}

func (c *Crawler) fetchPage(ctx context.Context, pageURL string, depth int) (*Page, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, aether.Permanentf("parse url %q: %v", pageURL, err)
	}
	if err := c.limiter(u.Host).Wait(ctx); err != nil {
		return nil, aether.AsError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, aether.Permanentf("build request for %q: %v", pageURL, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, aether.Transientf("fetch %s: %v", pageURL, err)
	}
	defer resp.Body.Close()

	p := &Page{URL: pageURL, StatusCode: resp.StatusCode, Depth: depth}
	if resp.StatusCode >= 400 {
		return p, nil
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "text/html") {
		return p, nil
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.logger.Warn("unparseable page body", slog.String("url", pageURL), slog.String("error", err.Error()))
		return p, nil
	}

	extractPage(doc, u, p)
	return p, nil
}

func (c *Crawler) limiter(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[host]
	if !ok {
		l = rate.NewLimiter(c.hostRate, c.hostBurst)
		c.limiters[host] = l
	}
	return l
}

// ── HTML extraction ─────────────────────────────────────────────────────

// extractPage walks the parsed document filling in the page's title,
// meta description, first h1, word count, and outbound links split by
// host.
func extractPage(doc *html.Node, base *url.URL, p *Page) {
	var words int
	var walk func(n *html.Node, inBody bool)
	walk = func(n *html.Node, inBody bool) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			case "body":
				inBody = true
			case "title":
				if p.Title == "" {
					p.Title = strings.TrimSpace(textContent(n))
				}
			case "h1":
				if p.H1 == "" {
					p.H1 = strings.TrimSpace(textContent(n))
				}
			case "meta":
				if attr(n, "name") == "description" && p.MetaDescription == "" {
					p.MetaDescription = strings.TrimSpace(attr(n, "content"))
				}
			case "a":
				if href := attr(n, "href"); href != "" {
					addLink(base, href, p)
				}
			}
		}
		if inBody && n.Type == html.TextNode {
			words += len(strings.Fields(n.Data))
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child, inBody)
		}
	}
	walk(doc, false)
	p.WordCount = words
}

func addLink(base *url.URL, href string, p *Page) {
	ref, err := url.Parse(href)
	if err != nil {
		return
	}
	abs := base.ResolveReference(ref)
	switch abs.Scheme {
	case "http", "https":
	default:
		return
	}
	if abs.Host == base.Host {
		p.InternalLinks = appendUnique(p.InternalLinks, canonical(abs))
	} else {
		p.ExternalLinks = appendUnique(p.ExternalLinks, canonical(abs))
	}
}

// canonical strips the fragment and trailing slash so the same page is
// never visited twice under different spellings.
func canonical(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.Path = strings.TrimSuffix(c.Path, "/")
	return c.String()
}

func textContent(n *html.Node) string {
	var b strings.Builder
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.TextNode {
			b.WriteString(child.Data)
		} else {
			b.WriteString(textContent(child))
		}
	}
	return b.String()
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func appendUnique(list []string, s string) []string {
	for _, have := range list {
		if have == s {
			return list
		}
	}
	return append(list, s)
}
