package audit

import (
	"errors"
	"testing"

	aether "github.com/nmang004/projectaether"
)

func TestCrawlSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		spec    CrawlSpec
		wantErr bool
	}{
		{"valid", CrawlSpec{RootURL: "https://example.com", MaxDepth: 3, MaxPages: 100}, false},
		{"zero pages allowed", CrawlSpec{RootURL: "https://example.com"}, false},
		{"empty url", CrawlSpec{RootURL: ""}, true},
		{"bad scheme", CrawlSpec{RootURL: "ftp://example.com"}, true},
		{"no host", CrawlSpec{RootURL: "https://"}, true},
		{"negative depth", CrawlSpec{RootURL: "https://example.com", MaxDepth: -1}, true},
		{"negative pages", CrawlSpec{RootURL: "https://example.com", MaxPages: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var ae *aether.Error
				if !errors.As(err, &ae) || ae.Kind != aether.KindValidation {
					t.Errorf("Validate() kind = %v, want validation", err)
				}
			}
		})
	}
}

func TestPerformanceSpec_Validate(t *testing.T) {
	if err := (PerformanceSpec{URL: "https://example.com/pricing"}).Validate(); err != nil {
		t.Errorf("valid spec rejected: %v", err)
	}
	if err := (PerformanceSpec{}).Validate(); err == nil {
		t.Error("empty url accepted")
	}
}

func TestBriefSpec_Validate(t *testing.T) {
	if err := (BriefSpec{Keyword: "technical seo"}).Validate(); err != nil {
		t.Errorf("valid spec rejected: %v", err)
	}
	if err := (BriefSpec{Keyword: "   "}).Validate(); err == nil {
		t.Error("blank keyword accepted")
	}
}

func TestBriefSpec_Defaults(t *testing.T) {
	got := BriefSpec{Keyword: "technical seo"}.withDefaults()
	if got.Location != "US" || got.Language != "en" {
		t.Errorf("withDefaults() = %+v, want US/en", got)
	}

	kept := BriefSpec{Keyword: "seo", Location: "DE", Language: "de"}.withDefaults()
	if kept.Location != "DE" || kept.Language != "de" {
		t.Errorf("withDefaults() overwrote explicit locale: %+v", kept)
	}
}
