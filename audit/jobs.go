package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	aether "github.com/nmang004/projectaether"
	"github.com/nmang004/projectaether/cache"
	"github.com/nmang004/projectaether/job"
)

// Job kinds and the queues they run on.
const (
	KindSiteCrawl       = "audit.site_crawl"
	KindPagePerformance = "audit.page_performance"
	KindContentBrief    = "audit.content_brief"

	QueueCrawl    = "crawl"
	QueueAnalysis = "analysis"
	QueueContent  = "content"
)

// lookupTTL is how long an external lookup stays cached. Repeating an
// analysis within a day reuses the prior upstream response.
const lookupTTL = 24 * time.Hour

// Service owns the audit job handlers and the clients they call.
type Service struct {
	crawler   *Crawler
	metrics   MetricsAPI
	generator TextGenerator
	cache     *cache.Gateway
	logger    *slog.Logger
}

// NewService creates the audit service. All collaborators are required;
// the cache gateway may wrap the memory backend in single-node setups.
func NewService(
	crawler *Crawler,
	metrics MetricsAPI,
	generator TextGenerator,
	gateway *cache.Gateway,
	logger *slog.Logger,
) *Service {
	return &Service{
		crawler:   crawler,
		metrics:   metrics,
		generator: generator,
		cache:     gateway,
		logger:    logger,
	}
}

// Register registers the three audit job kinds on the registry.
func (s *Service) Register(reg *job.Registry) {
	job.RegisterDefinition(reg, job.NewDefinition(KindSiteCrawl, s.runSiteCrawl,
		job.WithQueue(QueueCrawl),
		job.WithMaxAttempts(3),
		job.WithTimeout(30*time.Minute),
	))
	job.RegisterDefinition(reg, job.NewDefinition(KindPagePerformance, s.runPagePerformance,
		job.WithQueue(QueueAnalysis),
		job.WithMaxAttempts(3),
		job.WithTimeout(5*time.Minute),
	))
	job.RegisterDefinition(reg, job.NewDefinition(KindContentBrief, s.runContentBrief,
		job.WithQueue(QueueContent),
		job.WithMaxAttempts(3),
		job.WithTimeout(10*time.Minute),
	))
}

// ── site crawl ──────────────────────────────────────────────────────────

func (s *Service) runSiteCrawl(ctx context.Context, spec CrawlSpec, rep job.Reporter) ([]byte, error) {
	rep.Report(ctx, job.ProgressUpdate{Phase: "initialization", Percent: 0, Total: spec.MaxPages, CurrentItem: spec.RootURL})
	rep.Report(ctx, job.ProgressUpdate{Phase: "discovery", Percent: 5, Total: spec.MaxPages, CurrentItem: spec.RootURL})

	var completed atomic.Int64
	report, err := s.crawler.Crawl(ctx, spec, func(p Page) {
		done := int(completed.Add(1))
		rep.Report(ctx, job.ProgressUpdate{
			Phase:       "crawling",
			Percent:     crawlPercent(done, spec.MaxPages),
			Total:       spec.MaxPages,
			Completed:   done,
			CurrentItem: p.URL,
		})
	})
	if err != nil {
		return nil, err
	}

	rep.Report(ctx, job.ProgressUpdate{
		Phase:     "analysis",
		Percent:   90,
		Total:     spec.MaxPages,
		Completed: report.PagesCrawled,
	})

	return marshalResult(report)
}

// crawlPercent maps pages completed onto the 20-90 band of the crawl.
func crawlPercent(completed, total int) int {
	if total <= 0 {
		return 90
	}
	pct := 20 + completed*70/total
	if pct > 90 {
		pct = 90
	}
	return pct
}

// ── page performance ────────────────────────────────────────────────────

func (s *Service) runPagePerformance(ctx context.Context, spec PerformanceSpec, rep job.Reporter) ([]byte, error) {
	rep.Report(ctx, job.ProgressUpdate{Phase: "initialization", Percent: 10, CurrentItem: spec.URL})

	rep.Report(ctx, job.ProgressUpdate{Phase: "fetch", Percent: 40, CurrentItem: spec.URL})
	ps, err := cache.Fetch(ctx, s.cache, "pagespeed", map[string]string{"url": spec.URL}, lookupTTL,
		func(ctx context.Context) (*PageSpeedResult, error) {
			return s.metrics.PageSpeed(ctx, spec.URL)
		})
	if err != nil {
		return nil, err
	}

	rep.Report(ctx, job.ProgressUpdate{Phase: "scoring", Percent: 80, CurrentItem: spec.URL})
	return marshalResult(&PerformanceReport{
		URL:              spec.URL,
		PerformanceScore: ps.PerformanceScore,
		SEOScore:         ps.SEOScore,
		Metrics:          ps.Metrics,
		Opportunities:    ps.Opportunities,
		AnalyzedAt:       time.Now().UTC(),
	})
}

// ── content brief ───────────────────────────────────────────────────────

func (s *Service) runContentBrief(ctx context.Context, raw BriefSpec, rep job.Reporter) ([]byte, error) {
	spec := raw.withDefaults()

	rep.Report(ctx, job.ProgressUpdate{Phase: "serp_analysis", Percent: 25, CurrentItem: spec.Keyword})
	serp, err := cache.Fetch(ctx, s.cache, "serp", map[string]string{
		"keyword":  spec.Keyword,
		"location": spec.Location,
		"language": spec.Language,
	}, lookupTTL, func(ctx context.Context) (*SERPResult, error) {
		return s.metrics.SERP(ctx, spec.Keyword, spec.Location, spec.Language)
	})
	if err != nil {
		return nil, err
	}

	rep.Report(ctx, job.ProgressUpdate{Phase: "competitor_analysis", Percent: 60, CurrentItem: spec.Keyword})
	backlinks := make(map[string]int)
	for _, domain := range competitorDomains(spec, serp) {
		bl, err := cache.Fetch(ctx, s.cache, "backlinks", map[string]string{"domain": domain}, lookupTTL,
			func(ctx context.Context) (*BacklinkResult, error) {
				return s.metrics.Backlinks(ctx, domain)
			})
		if err != nil {
			return nil, err
		}
		backlinks[domain] = bl.TotalBacklinks
	}

	rep.Report(ctx, job.ProgressUpdate{Phase: "ai_generation", Percent: 85, CurrentItem: spec.Keyword})
	brief, err := s.generator.Generate(ctx, briefPrompt(spec, serp, backlinks))
	if err != nil {
		return nil, err
	}

	return marshalResult(&ContentBrief{
		Keyword:             spec.Keyword,
		SearchVolume:        serp.SearchVolume,
		Competition:         serp.Competition,
		TopResults:          serp.Results,
		CompetitorBacklinks: backlinks,
		Brief:               brief,
		GeneratedAt:         time.Now().UTC(),
	})
}

// competitorDomains merges the spec's explicit competitor list with the
// domains of the top SERP hits, deduplicated.
func competitorDomains(spec BriefSpec, serp *SERPResult) []string {
	var domains []string
	for _, c := range spec.Competitors {
		if d := normalizeDomain(c); d != "" {
			domains = appendUnique(domains, d)
		}
	}
	for i, hit := range serp.Results {
		if i >= 3 {
			break
		}
		if d := normalizeDomain(hit.Domain); d != "" {
			domains = appendUnique(domains, d)
		}
	}
	return domains
}

func normalizeDomain(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil {
			return u.Host
		}
	}
	return s
}

func briefPrompt(spec BriefSpec, serp *SERPResult, backlinks map[string]int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a content brief for the keyword %q.\n", spec.Keyword)
	fmt.Fprintf(&b, "Monthly search volume: %d. Competition: %s.\n", serp.SearchVolume, serp.Competition)
	if len(serp.Results) > 0 {
		b.WriteString("Top ranking pages:\n")
		for _, hit := range serp.Results {
			fmt.Fprintf(&b, "%d. %s (%s)\n", hit.Position, hit.Title, hit.URL)
		}
	}
	for domain, count := range backlinks {
		fmt.Fprintf(&b, "Competitor %s has %d backlinks.\n", domain, count)
	}
	b.WriteString("Cover target audience, recommended structure, and word count.")
	return b.String()
}

func marshalResult(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, aether.Serializationf("encode result: %v", err)
	}
	return data, nil
}
