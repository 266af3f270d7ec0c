// Package googlenl provides a classifier.Provider backed by the Google Cloud
// Natural Language API.
//
// The API scores a document on a continuous scale (score in [-1, 1] plus an
// unbounded magnitude) rather than returning a label, so every sentence is
// analysed individually and the result is mapped onto the four labels:
//
//	score >= 0.25                   positive
//	score <= -0.25                  negative
//	magnitude >= 1.0 (small score)  mixed
//	otherwise                       neutral
package googlenl

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strconv"

	language "cloud.google.com/go/language/apiv2"
	"cloud.google.com/go/language/apiv2/languagepb"
	gax "github.com/googleapis/gax-go/v2"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"github.com/MrWong99/podsync/pkg/provider/classifier"
	"github.com/MrWong99/podsync/pkg/sentiment"
)

// Compile-time interface assertion.
var _ classifier.Provider = (*Provider)(nil)

const (
	polarityThreshold = 0.25
	mixedMagnitude    = 1.0

	defaultConcurrency = 8
)

// Analyzer is the subset of the Natural Language client used by Provider.
type Analyzer interface {
	AnalyzeSentiment(ctx context.Context, req *languagepb.AnalyzeSentimentRequest, opts ...gax.CallOption) (*languagepb.AnalyzeSentimentResponse, error)
}

// Provider implements classifier.Provider on top of the Natural Language API.
type Provider struct {
	analyzer    Analyzer
	closer      func() error
	concurrency int
}

// Option configures a Provider.
type Option func(*Provider)

// WithConcurrency caps the number of sentences analysed in parallel.
func WithConcurrency(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// New dials the Natural Language API. credentials may be a base64-encoded
// service account JSON; when empty, application default credentials are
// used.
func New(ctx context.Context, credentials string, opts ...Option) (*Provider, error) {
	var clientOpts []option.ClientOption
	if credentials != "" {
		raw, err := base64.StdEncoding.DecodeString(credentials)
		if err != nil {
			return nil, fmt.Errorf("googlenl: decode credentials: %w", err)
		}
		clientOpts = append(clientOpts, option.WithCredentialsJSON(raw))
	}
	client, err := language.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("googlenl: create client: %w", err)
	}
	p := NewWithAnalyzer(client, opts...)
	p.closer = client.Close
	return p, nil
}

// NewWithAnalyzer wraps an existing analyzer, typically a test double.
func NewWithAnalyzer(a Analyzer, opts ...Option) *Provider {
	p := &Provider{analyzer: a, concurrency: defaultConcurrency}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Close releases the underlying client connection.
func (p *Provider) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}

// Classify implements classifier.Provider. The first failing sentence
// aborts the whole batch.
func (p *Provider) Classify(ctx context.Context, sentences []classifier.Sentence) ([]classifier.Document, error) {
	if p.analyzer == nil {
		return nil, errors.New("googlenl: no analyzer configured")
	}
	docs := make([]classifier.Document, len(sentences))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, s := range sentences {
		g.Go(func() error {
			resp, err := p.analyzer.AnalyzeSentiment(gctx, &languagepb.AnalyzeSentimentRequest{
				Document: &languagepb.Document{
					Source: &languagepb.Document_Content{
						Content: s.Text,
					},
					Type: languagepb.Document_PLAIN_TEXT,
				},
				EncodingType: languagepb.EncodingType_UTF8,
			})
			if err != nil {
				return fmt.Errorf("sentence %d: %w", s.SentenceIndex, err)
			}
			ds := resp.GetDocumentSentiment()
			docs[i] = document(s.SentenceIndex, ds.GetScore(), ds.GetMagnitude())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: googlenl: %w", classifier.ErrRequestFailed, err)
	}
	return docs, nil
}

func document(idx int, score, magnitude float32) classifier.Document {
	s := float64(score)
	return classifier.Document{
		ID:        strconv.Itoa(idx),
		Sentiment: Label(s, float64(magnitude)),
		ConfidenceScores: map[string]float64{
			string(sentiment.Positive): math.Max(s, 0),
			string(sentiment.Negative): math.Max(-s, 0),
			string(sentiment.Neutral):  1 - math.Abs(s),
		},
	}
}

// Label maps a score/magnitude pair onto a sentiment label.
func Label(score, magnitude float64) sentiment.Label {
	switch {
	case score >= polarityThreshold:
		return sentiment.Positive
	case score <= -polarityThreshold:
		return sentiment.Negative
	case magnitude >= mixedMagnitude:
		return sentiment.Mixed
	default:
		return sentiment.Neutral
	}
}
