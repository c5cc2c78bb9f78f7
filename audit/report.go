package audit

import "time"

// Page is the per-page SEO extraction produced by the crawler.
type Page struct {
	URL             string   `json:"url"`
	StatusCode      int      `json:"status_code"`
	Depth           int      `json:"depth"`
	Title           string   `json:"title,omitempty"`
	MetaDescription string   `json:"meta_description,omitempty"`
	H1              string   `json:"h1,omitempty"`
	WordCount       int      `json:"word_count"`
	InternalLinks   []string `json:"internal_links,omitempty"`
	ExternalLinks   []string `json:"external_links,omitempty"`
}

// SEOIssues aggregates the page-level findings across a crawl.
type SEOIssues struct {
	MissingTitles       int `json:"missing_titles"`
	MissingDescriptions int `json:"missing_descriptions"`
	MissingH1           int `json:"missing_h1"`
	ThinContent         int `json:"thin_content"`
	BrokenPages         int `json:"broken_pages"`
}

// thinContentWords is the word count below which a page is flagged as
// thin.
const thinContentWords = 200

// CrawlReport is the result payload of audit.site_crawl.
type CrawlReport struct {
	RootURL          string    `json:"root_url"`
	PagesCrawled     int       `json:"pages_crawled"`
	PagesDiscovered  int       `json:"pages_discovered"`
	DepthReached     int       `json:"depth_reached"`
	Duration         string    `json:"duration"`
	Issues           SEOIssues `json:"issues"`
	AverageWordCount int       `json:"average_word_count"`
	InternalLinks    int       `json:"internal_links"`
	ExternalLinks    int       `json:"external_links"`
	Pages            []Page    `json:"pages"`
}

func buildReport(rootURL string, pages []Page, discovered int, elapsed time.Duration) *CrawlReport {
	r := &CrawlReport{
		RootURL:         rootURL,
		PagesCrawled:    len(pages),
		PagesDiscovered: discovered,
		Duration:        elapsed.Round(time.Millisecond).String(),
		Pages:           pages,
	}

	words := 0
	for _, p := range pages {
		if p.Depth > r.DepthReached {
			r.DepthReached = p.Depth
		}
		if p.StatusCode >= 400 {
			r.Issues.BrokenPages++
			continue
		}
		if p.Title == "" {
			r.Issues.MissingTitles++
		}
		if p.MetaDescription == "" {
			r.Issues.MissingDescriptions++
		}
		if p.H1 == "" {
			r.Issues.MissingH1++
		}
		if p.WordCount < thinContentWords {
			r.Issues.ThinContent++
		}
		words += p.WordCount
		r.InternalLinks += len(p.InternalLinks)
		r.ExternalLinks += len(p.ExternalLinks)
	}
	if ok := len(pages) - r.Issues.BrokenPages; ok > 0 {
		r.AverageWordCount = words / ok
	}
	return r
}

// PerformanceReport is the result payload of audit.page_performance.
type PerformanceReport struct {
	URL              string    `json:"url"`
	PerformanceScore int       `json:"performance_score"`
	SEOScore         int       `json:"seo_score"`
	Metrics          WebVitals `json:"metrics"`
	Opportunities    []string  `json:"opportunities,omitempty"`
	AnalyzedAt       time.Time `json:"analyzed_at"`
}

// WebVitals are the Core Web Vitals reported by the metrics service.
type WebVitals struct {
	FirstContentfulPaint   float64 `json:"first_contentful_paint"`
	LargestContentfulPaint float64 `json:"largest_contentful_paint"`
	CumulativeLayoutShift  float64 `json:"cumulative_layout_shift"`
	TimeToInteractive      float64 `json:"time_to_interactive"`
}

// ContentBrief is the result payload of audit.content_brief.
type ContentBrief struct {
	Keyword             string         `json:"keyword"`
	SearchVolume        int            `json:"search_volume"`
	Competition         string         `json:"competition"`
	TopResults          []SERPHit      `json:"top_results,omitempty"`
	CompetitorBacklinks map[string]int `json:"competitor_backlinks,omitempty"`
	Brief               string         `json:"brief"`
	GeneratedAt         time.Time      `json:"generated_at"`
}
