package audit

import (
	"net/url"
	"strings"

	aether "github.com/nmang004/projectaether"
)

// CrawlSpec is the payload for audit.site_crawl.
type CrawlSpec struct {
	// RootURL is where the crawl starts. Only pages on the same host are
	// followed.
	RootURL string `json:"root_url"`

	// MaxDepth bounds how many link hops from the root are followed.
	// Zero means crawl the root page only.
	MaxDepth int `json:"max_depth"`

	// MaxPages caps the total number of pages fetched. Zero means fetch
	// nothing; the audit still completes with an empty report.
	MaxPages int `json:"max_pages"`
}

// Validate implements job.Validator.
func (s CrawlSpec) Validate() error {
	if err := validateURL(s.RootURL); err != nil {
		return aether.Validationf("root_url: %v", err)
	}
	if s.MaxDepth < 0 {
		return aether.Validationf("max_depth must not be negative, got %d", s.MaxDepth)
	}
	if s.MaxPages < 0 {
		return aether.Validationf("max_pages must not be negative, got %d", s.MaxPages)
	}
	return nil
}

// PerformanceSpec is the payload for audit.page_performance.
type PerformanceSpec struct {
	URL string `json:"url"`
}

// Validate implements job.Validator.
func (s PerformanceSpec) Validate() error {
	if err := validateURL(s.URL); err != nil {
		return aether.Validationf("url: %v", err)
	}
	return nil
}

// BriefSpec is the payload for audit.content_brief.
type BriefSpec struct {
	Keyword  string `json:"keyword"`
	Location string `json:"location,omitempty"`
	Language string `json:"language,omitempty"`

	// Competitors lists competitor domains to pull backlink profiles for.
	Competitors []string `json:"competitors,omitempty"`
}

// Validate implements job.Validator.
func (s BriefSpec) Validate() error {
	if strings.TrimSpace(s.Keyword) == "" {
		return aether.Validationf("keyword is required")
	}
	return nil
}

// withDefaults fills the SERP locale defaults the original service used.
func (s BriefSpec) withDefaults() BriefSpec {
	if s.Location == "" {
		s.Location = "US"
	}
	if s.Language == "" {
		s.Language = "en"
	}
	return s
}

func validateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return aether.Validationf("must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return aether.Validationf("malformed: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return aether.Validationf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return aether.Validationf("missing host")
	}
	return nil
}
