package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	aether "github.com/nmang004/projectaether"
)

// TextGenerator produces the prose section of a content brief.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// HTTPTextGenerator calls a text-generation service over HTTP JSON.
type HTTPTextGenerator struct {
	endpoint  string
	apiKey    string
	maxTokens int
	client    *http.Client
	logger    *slog.Logger
}

// GeneratorOption configures an HTTPTextGenerator.
type GeneratorOption func(*HTTPTextGenerator)

// WithGeneratorHTTPClient sets the HTTP client.
func WithGeneratorHTTPClient(c *http.Client) GeneratorOption {
	return func(g *HTTPTextGenerator) { g.client = c }
}

// WithGeneratorLogger sets the logger.
func WithGeneratorLogger(l *slog.Logger) GeneratorOption {
	return func(g *HTTPTextGenerator) { g.logger = l }
}

// WithMaxTokens bounds the generated response length.
func WithMaxTokens(n int) GeneratorOption {
	return func(g *HTTPTextGenerator) { g.maxTokens = n }
}

// NewHTTPTextGenerator creates a generator client for the service at
// endpoint.
func NewHTTPTextGenerator(endpoint, apiKey string, opts ...GeneratorOption) *HTTPTextGenerator {
	g := &HTTPTextGenerator{
		endpoint:  endpoint,
		apiKey:    apiKey,
		maxTokens: 4096,
		client:    &http.Client{Timeout: 60 * time.Second},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var _ TextGenerator = (*HTTPTextGenerator)(nil)

type generateRequest struct {
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens"`
}

type generateResponse struct {
	Text string `json:"text"`
}

// Generate implements TextGenerator. An empty prompt never reaches the
// service.
func (g *HTTPTextGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", aether.Validationf("prompt must not be empty")
	}

	body, err := json.Marshal(generateRequest{Prompt: prompt, MaxTokens: g.maxTokens})
	if err != nil {
		return "", aether.Serializationf("encode generation request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", aether.Permanentf("build generation request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", aether.Transientf("text generation service: %v", err)
	}
	defer resp.Body.Close()

	if jobErr := classifyStatus("/generate", resp.StatusCode); jobErr != nil {
		return "", jobErr
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", aether.Serializationf("decode generation response: %v", err)
	}
	return out.Text, nil
}
