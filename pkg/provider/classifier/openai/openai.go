// Package openai provides a classifier.Provider that asks an OpenAI chat
// model to label sentence sentiment.
//
// The whole batch is sent in a single chat completion. The model is
// instructed to answer with the same JSON document list the remote sentiment
// service returns, so the result plugs into classifier.ToData unchanged. Any
// OpenAI-compatible endpoint works via WithBaseURL.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/podsync/pkg/provider/classifier"
)

// Compile-time interface assertion.
var _ classifier.Provider = (*Provider)(nil)

const systemPrompt = `You label the sentiment of transcript sentences.
For every input sentence answer with exactly one document whose "id" is the sentence's
sentenceIndex as a string and whose "sentiment" is one of "positive", "neutral",
"negative" or "mixed". Add "confidenceScores" with a value between 0 and 1 for
"positive", "neutral" and "negative".
Reply with a single JSON object of the form {"documents":[...]} and nothing else.`

// Provider implements classifier.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
}

type config struct {
	baseURL    string
	timeout    time.Duration
	maxRetries int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithMaxRetries sets how often the SDK retries a failed request. Negative
// values keep the SDK default.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// New constructs a new OpenAI classifier.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, errors.New("openai: model must not be empty")
	}

	cfg := &config{maxRetries: -1}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Classify implements classifier.Provider.
func (p *Provider) Classify(ctx context.Context, sentences []classifier.Sentence) ([]classifier.Document, error) {
	if len(sentences) == 0 {
		return nil, nil
	}
	params, err := p.buildParams(sentences)
	if err != nil {
		return nil, fmt.Errorf("openai: build params: %w", err)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: openai: chat completion: %w", classifier.ErrRequestFailed, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: openai: empty choices in response", classifier.ErrRequestFailed)
	}

	docs, err := parseDocuments(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: openai: %w", classifier.ErrRequestFailed, err)
	}
	return docs, nil
}

func (p *Provider) buildParams(sentences []classifier.Sentence) (oai.ChatCompletionNewParams, error) {
	payload, err := json.Marshal(struct {
		Sentences []classifier.Sentence `json:"sentences"`
	}{sentences})
	if err != nil {
		return oai.ChatCompletionNewParams{}, err
	}
	return oai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(systemPrompt),
			oai.UserMessage(string(payload)),
		},
		Temperature: param.NewOpt(0.0),
	}, nil
}

// parseDocuments extracts the document list from a model reply. Replies
// wrapped in a markdown code fence are accepted.
func parseDocuments(content string) ([]classifier.Document, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}
	var out struct {
		Documents []classifier.Document `json:"documents"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("decode model reply: %w", err)
	}
	return out.Documents, nil
}
