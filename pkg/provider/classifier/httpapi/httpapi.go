// Package httpapi provides a classifier.Provider backed by a remote sentiment
// analysis service speaking a small JSON-over-HTTP contract:
//
//	POST {base}/api/analyze-sentiment
//	{"sentences":[{"sentenceIndex":0,"text":"..."}]}
//
//	200 OK
//	{"documents":[{"id":"0","sentiment":"positive","confidenceScores":{...}}]}
//
// Error responses may carry {"error":"..."}; the message is surfaced in the
// returned error. Hosted deployments of the service sleep when idle, so the
// provider also implements classifier.WarmUpper with a plain GET of the base
// URL.
//
// Typical usage:
//
//	p, err := httpapi.New("https://sentiment.example.com",
//	    httpapi.WithTimeout(20*time.Second),
//	)
//	docs, err := p.Classify(ctx, sentences)
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MrWong99/podsync/pkg/provider/classifier"
)

// Compile-time interface assertions.
var (
	_ classifier.Provider  = (*Provider)(nil)
	_ classifier.WarmUpper = (*Provider)(nil)
)

const (
	analyzeEndpoint = "/api/analyze-sentiment"
	defaultTimeout  = 60 * time.Second
	warmUpTimeout   = 30 * time.Second

	// maxErrorBody caps how much of an error response is read.
	maxErrorBody = 64 << 10
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout for classification calls.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client. The client's timeout is kept as
// configured by the caller.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// WithAPIKey sends key as a bearer token on every request.
func WithAPIKey(key string) Option {
	return func(p *Provider) {
		p.apiKey = key
	}
}

// Provider implements classifier.Provider against the remote service.
type Provider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a Provider for the service at baseURL.
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("httpapi: base URL must not be empty")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("httpapi: invalid base URL %q", baseURL)
	}
	p := &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type analyzeRequest struct {
	Sentences []classifier.Sentence `json:"sentences"`
}

type analyzeResponse struct {
	Documents []classifier.Document `json:"documents"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Classify implements classifier.Provider.
func (p *Provider) Classify(ctx context.Context, sentences []classifier.Sentence) ([]classifier.Document, error) {
	if sentences == nil {
		sentences = []classifier.Sentence{}
	}
	body, err := json.Marshal(analyzeRequest{Sentences: sentences})
	if err != nil {
		return nil, fmt.Errorf("httpapi: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+analyzeEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("httpapi: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", classifier.ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s", classifier.ErrRequestFailed, statusMessage(resp))
	}

	var out analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", classifier.ErrRequestFailed, err)
	}
	return out.Documents, nil
}

// statusMessage renders "status N. <error>" from a failed response. The
// error field is optional and an undecodable body is ignored.
func statusMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var e errorResponse
	_ = json.Unmarshal(raw, &e)
	return strings.TrimSpace(fmt.Sprintf("status %d. %s", resp.StatusCode, e.Error))
}

// WarmUp issues a GET against the base URL to wake the service. Any response
// counts as success; only transport failures are reported.
func (p *Provider) WarmUp(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, warmUpTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("httpapi: build warm-up request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("httpapi: warm up: %w", err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
	return nil
}
