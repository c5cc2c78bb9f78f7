package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	aether "github.com/nmang004/projectaether"
)

// PageSpeedResult is the metrics service's response for a single URL.
type PageSpeedResult struct {
	URL              string    `json:"url"`
	PerformanceScore int       `json:"performance_score"`
	SEOScore         int       `json:"seo_score"`
	Metrics          WebVitals `json:"metrics"`
	Opportunities    []string  `json:"opportunities,omitempty"`
}

// SERPHit is one organic search result.
type SERPHit struct {
	Position int    `json:"position"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Domain   string `json:"domain"`
}

// SERPResult is the metrics service's response for a keyword query.
type SERPResult struct {
	Keyword      string    `json:"keyword"`
	SearchVolume int       `json:"search_volume"`
	Competition  string    `json:"competition"`
	Results      []SERPHit `json:"results"`
}

// BacklinkResult is the metrics service's backlink profile for a domain.
type BacklinkResult struct {
	Domain           string `json:"domain"`
	TotalBacklinks   int    `json:"total_backlinks"`
	ReferringDomains int    `json:"referring_domains"`
	DomainAuthority  int    `json:"domain_authority"`
}

// MetricsAPI is the external SEO metrics service the analysis jobs call.
// Implementations classify failures so the retry controller can tell a
// flaky upstream from a bad request.
type MetricsAPI interface {
	PageSpeed(ctx context.Context, pageURL string) (*PageSpeedResult, error)
	SERP(ctx context.Context, keyword, location, language string) (*SERPResult, error)
	Backlinks(ctx context.Context, domain string) (*BacklinkResult, error)
}

// HTTPMetricsAPI calls a metrics service over HTTP JSON.
type HTTPMetricsAPI struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// MetricsOption configures an HTTPMetricsAPI.
type MetricsOption func(*HTTPMetricsAPI)

// WithMetricsHTTPClient sets the HTTP client.
func WithMetricsHTTPClient(c *http.Client) MetricsOption {
	return func(m *HTTPMetricsAPI) { m.client = c }
}

// WithMetricsLogger sets the logger.
func WithMetricsLogger(l *slog.Logger) MetricsOption {
	return func(m *HTTPMetricsAPI) { m.logger = l }
}

// NewHTTPMetricsAPI creates a metrics client for the service at baseURL.
func NewHTTPMetricsAPI(baseURL, apiKey string, opts ...MetricsOption) *HTTPMetricsAPI {
	m := &HTTPMetricsAPI{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var _ MetricsAPI = (*HTTPMetricsAPI)(nil)

// PageSpeed implements MetricsAPI.
func (m *HTTPMetricsAPI) PageSpeed(ctx context.Context, pageURL string) (*PageSpeedResult, error) {
	var out PageSpeedResult
	q := url.Values{"url": {pageURL}}
	if err := m.get(ctx, "/v1/pagespeed", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SERP implements MetricsAPI.
func (m *HTTPMetricsAPI) SERP(ctx context.Context, keyword, location, language string) (*SERPResult, error) {
	var out SERPResult
	q := url.Values{
		"keyword":  {keyword},
		"location": {location},
		"language": {language},
	}
	if err := m.get(ctx, "/v1/serp", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Backlinks implements MetricsAPI.
func (m *HTTPMetricsAPI) Backlinks(ctx context.Context, domain string) (*BacklinkResult, error) {
	var out BacklinkResult
	q := url.Values{"domain": {domain}}
	if err := m.get(ctx, "/v1/backlinks", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (m *HTTPMetricsAPI) get(ctx context.Context, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return aether.Permanentf("build metrics request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return aether.Transientf("metrics service %s: %v", path, err)
	}
	defer resp.Body.Close()

	if jobErr := classifyStatus(path, resp.StatusCode); jobErr != nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck
		return jobErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return aether.Serializationf("decode metrics response from %s: %v", path, err)
	}
	return nil
}

// classifyStatus maps an HTTP status to the error taxonomy. Timeouts,
// throttling, and server errors are worth retrying; client errors are
// not.
func classifyStatus(path string, code int) *aether.Error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500:
		return &aether.Error{
			Kind:    aether.KindTransient,
			Code:    strconv.Itoa(code),
			Message: "metrics service " + path + " returned " + strconv.Itoa(code) + " " + http.StatusText(code),
		}
	default:
		return &aether.Error{
			Kind:    aether.KindPermanent,
			Code:    strconv.Itoa(code),
			Message: "metrics service " + path + " returned " + strconv.Itoa(code) + " " + http.StatusText(code),
		}
	}
}
