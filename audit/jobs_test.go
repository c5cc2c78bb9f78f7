package audit

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	aether "github.com/nmang004/projectaether"
	"github.com/nmang004/projectaether/cache"
	cachemem "github.com/nmang004/projectaether/cache/memory"
	"github.com/nmang004/projectaether/job"
)

// fakeMetrics counts calls so tests can assert cache behavior.
type fakeMetrics struct {
	mu        sync.Mutex
	pagespeed int
	serp      int
	backlinks int
	fail      error
}

func (f *fakeMetrics) PageSpeed(ctx context.Context, pageURL string) (*PageSpeedResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pagespeed++
	if f.fail != nil {
		return nil, f.fail
	}
	return &PageSpeedResult{
		URL:              pageURL,
		PerformanceScore: 78,
		SEOScore:         92,
		Metrics:          WebVitals{LargestContentfulPaint: 2.1},
		Opportunities:    []string{"Optimize images"},
	}, nil
}

func (f *fakeMetrics) SERP(ctx context.Context, keyword, location, language string) (*SERPResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.serp++
	if f.fail != nil {
		return nil, f.fail
	}
	return &SERPResult{
		Keyword:      keyword,
		SearchVolume: 8500,
		Competition:  "Medium",
		Results: []SERPHit{
			{Position: 1, Title: "Guide", URL: "https://example.com/guide", Domain: "example.com"},
			{Position: 2, Title: "Tutorial", URL: "https://tutorial.example/x", Domain: "tutorial.example"},
		},
	}, nil
}

func (f *fakeMetrics) Backlinks(ctx context.Context, domain string) (*BacklinkResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backlinks++
	if f.fail != nil {
		return nil, f.fail
	}
	return &BacklinkResult{Domain: domain, TotalBacklinks: 1234}, nil
}

type fakeGenerator struct {
	lastPrompt string
	fail       error
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.lastPrompt = prompt
	if f.fail != nil {
		return "", f.fail
	}
	return "A thorough brief.", nil
}

// recordingReporter captures the progress envelopes a handler publishes.
type recordingReporter struct {
	mu      sync.Mutex
	updates []job.ProgressUpdate
}

func (r *recordingReporter) Report(_ context.Context, p job.ProgressUpdate) {
	r.mu.Lock()
	r.updates = append(r.updates, p)
	r.mu.Unlock()
}

func (r *recordingReporter) phases() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, p := range r.updates {
		if len(out) == 0 || out[len(out)-1] != p.Phase {
			out = append(out, p.Phase)
		}
	}
	return out
}

func newTestService(t *testing.T, metrics MetricsAPI, gen TextGenerator) (*Service, *job.Registry) {
	t.Helper()
	gateway := cache.New(cachemem.New(), cache.WithLogger(discardLogger()))
	svc := NewService(NewCrawler(WithHostRate(1000, 100), WithCrawlerLogger(discardLogger())),
		metrics, gen, gateway, discardLogger())
	reg := job.NewRegistry()
	svc.Register(reg)
	return svc, reg
}

func runHandler(t *testing.T, reg *job.Registry, kind string, payload any) ([]byte, *recordingReporter, error) {
	t.Helper()
	h, ok := reg.Get(kind)
	if !ok {
		t.Fatalf("kind %q not registered", kind)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	rep := &recordingReporter{}
	result, err := h(context.Background(), raw, rep)
	return result, rep, err
}

func TestRegister_QueuesAndAttempts(t *testing.T) {
	_, reg := newTestService(t, &fakeMetrics{}, &fakeGenerator{})

	tests := []struct {
		kind  string
		queue string
	}{
		{KindSiteCrawl, QueueCrawl},
		{KindPagePerformance, QueueAnalysis},
		{KindContentBrief, QueueContent},
	}
	for _, tt := range tests {
		opts := reg.OptionsFor(tt.kind)
		if opts.Queue != tt.queue {
			t.Errorf("%s queue = %q, want %q", tt.kind, opts.Queue, tt.queue)
		}
		if opts.MaxAttempts != 3 {
			t.Errorf("%s max attempts = %d, want 3", tt.kind, opts.MaxAttempts)
		}
	}
}

func TestRegister_ValidatesPayloads(t *testing.T) {
	_, reg := newTestService(t, &fakeMetrics{}, &fakeGenerator{})

	if err := reg.Validate(KindSiteCrawl, []byte(`{"root_url":"https://example.com","max_pages":10}`)); err != nil {
		t.Errorf("valid payload rejected: %v", err)
	}
	if err := reg.Validate(KindSiteCrawl, []byte(`{"root_url":""}`)); err == nil {
		t.Error("empty root_url accepted")
	}
	if err := reg.Validate(KindContentBrief, []byte(`{"keyword":""}`)); err == nil {
		t.Error("empty keyword accepted")
	}
}

func TestPagePerformance_CachesLookup(t *testing.T) {
	metrics := &fakeMetrics{}
	_, reg := newTestService(t, metrics, &fakeGenerator{})

	payload := PerformanceSpec{URL: "https://example.com/pricing"}
	result, rep, err := runHandler(t, reg, KindPagePerformance, payload)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	var report PerformanceReport
	if err := json.Unmarshal(result, &report); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if report.PerformanceScore != 78 || report.URL != payload.URL {
		t.Errorf("report = %+v", report)
	}

	wantPhases := []string{"initialization", "fetch", "scoring"}
	if got := rep.phases(); len(got) != len(wantPhases) || got[0] != "initialization" || got[2] != "scoring" {
		t.Errorf("phases = %v, want %v", got, wantPhases)
	}

	// Second run within the TTL hits the cache.
	if _, _, err := runHandler(t, reg, KindPagePerformance, payload); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if metrics.pagespeed != 1 {
		t.Errorf("pagespeed calls = %d, want 1 (second served from cache)", metrics.pagespeed)
	}
}

func TestPagePerformance_UpstreamErrorPropagates(t *testing.T) {
	metrics := &fakeMetrics{fail: aether.Transientf("upstream returned 503")}
	_, reg := newTestService(t, metrics, &fakeGenerator{})

	_, _, err := runHandler(t, reg, KindPagePerformance, PerformanceSpec{URL: "https://example.com"})
	if err == nil {
		t.Fatal("handler succeeded with failing upstream")
	}
	if aether.KindOf(err) != aether.KindTransient {
		t.Errorf("KindOf = %q, want transient", aether.KindOf(err))
	}
}

func TestContentBrief_FullPipeline(t *testing.T) {
	metrics := &fakeMetrics{}
	gen := &fakeGenerator{}
	_, reg := newTestService(t, metrics, gen)

	payload := BriefSpec{Keyword: "technical seo", Competitors: []string{"https://rival.example/blog"}}
	result, rep, err := runHandler(t, reg, KindContentBrief, payload)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	var brief ContentBrief
	if err := json.Unmarshal(result, &brief); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if brief.Keyword != "technical seo" || brief.SearchVolume != 8500 {
		t.Errorf("brief = %+v", brief)
	}
	if brief.Brief != "A thorough brief." {
		t.Errorf("brief text = %q", brief.Brief)
	}

	// Explicit competitor plus the two SERP domains.
	if len(brief.CompetitorBacklinks) != 3 {
		t.Errorf("CompetitorBacklinks = %v, want 3 domains", brief.CompetitorBacklinks)
	}
	if _, ok := brief.CompetitorBacklinks["rival.example"]; !ok {
		t.Errorf("explicit competitor missing from %v", brief.CompetitorBacklinks)
	}

	wantPhases := []string{"serp_analysis", "competitor_analysis", "ai_generation"}
	got := rep.phases()
	if len(got) != 3 || got[0] != wantPhases[0] || got[2] != wantPhases[2] {
		t.Errorf("phases = %v, want %v", got, wantPhases)
	}

	if gen.lastPrompt == "" {
		t.Fatal("generator never called")
	}
	if want := `"technical seo"`; !strings.Contains(gen.lastPrompt, want) {
		t.Errorf("prompt %q missing keyword", gen.lastPrompt)
	}
}

func TestContentBrief_GeneratorErrorPropagates(t *testing.T) {
	gen := &fakeGenerator{fail: aether.Permanentf("model rejected the request")}
	_, reg := newTestService(t, &fakeMetrics{}, gen)

	_, _, err := runHandler(t, reg, KindContentBrief, BriefSpec{Keyword: "seo"})
	if err == nil {
		t.Fatal("handler succeeded with failing generator")
	}
	if aether.KindOf(err) != aether.KindPermanent {
		t.Errorf("KindOf = %q, want permanent", aether.KindOf(err))
	}
}

func TestSiteCrawl_ProgressAndResult(t *testing.T) {
	srv := testSite(t, nil)
	metrics := &fakeMetrics{}
	gateway := cache.New(cachemem.New(), cache.WithLogger(discardLogger()))
	svc := NewService(testCrawler(srv), metrics, &fakeGenerator{}, gateway, discardLogger())
	reg := job.NewRegistry()
	svc.Register(reg)

	payload := CrawlSpec{RootURL: srv.URL, MaxDepth: 3, MaxPages: 20}
	result, rep, err := runHandler(t, reg, KindSiteCrawl, payload)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	var report CrawlReport
	if err := json.Unmarshal(result, &report); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if report.PagesCrawled != 5 {
		t.Errorf("PagesCrawled = %d, want 5", report.PagesCrawled)
	}

	phases := rep.phases()
	if len(phases) < 4 || phases[0] != "initialization" || phases[1] != "discovery" || phases[len(phases)-1] != "analysis" {
		t.Errorf("phases = %v", phases)
	}

	// Crawling envelopes stay inside the 20-90 band and carry the page
	// being processed. Concurrent fetches may record out of order; the
	// store clamps regressions.
	for _, p := range rep.updates {
		if p.Phase != "crawling" {
			continue
		}
		if p.Percent < 20 || p.Percent > 90 {
			t.Errorf("crawling percent %d outside 20-90", p.Percent)
		}
		if p.CurrentItem == "" {
			t.Error("crawling envelope missing current item")
		}
	}
}

func TestSiteCrawl_ZeroPagesSucceeds(t *testing.T) {
	srv := testSite(t, nil)
	gateway := cache.New(cachemem.New(), cache.WithLogger(discardLogger()))
	svc := NewService(testCrawler(srv), &fakeMetrics{}, &fakeGenerator{}, gateway, discardLogger())
	reg := job.NewRegistry()
	svc.Register(reg)

	result, rep, err := runHandler(t, reg, KindSiteCrawl, CrawlSpec{RootURL: srv.URL, MaxDepth: 2, MaxPages: 0})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	var report CrawlReport
	if err := json.Unmarshal(result, &report); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if report.PagesCrawled != 0 {
		t.Errorf("PagesCrawled = %d, want 0", report.PagesCrawled)
	}

	phases := rep.phases()
	if len(phases) == 0 || phases[len(phases)-1] != "analysis" {
		t.Errorf("phases = %v, want the full sequence ending in analysis", phases)
	}
}
