// Package mock provides a test double for the classifier.Provider interface.
//
// Use Provider in unit tests to verify the batches a session sends and to
// feed controlled classification results without a live backend. All fields
// are safe to set before calling any method; mutating them during a
// concurrent call is the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{
//	    Documents: []classifier.Document{{ID: "0", Sentiment: sentiment.Positive}},
//	}
//	docs, err := p.Classify(ctx, sentences)
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/podsync/pkg/provider/classifier"
)

// ClassifyCall records a single invocation of Classify.
type ClassifyCall struct {
	// Ctx is the context passed to Classify.
	Ctx context.Context
	// Sentences is a copy of the batch passed to Classify.
	Sentences []classifier.Sentence
}

// Provider is a mock implementation of classifier.Provider and
// classifier.WarmUpper.
type Provider struct {
	mu sync.Mutex

	// Documents is returned by Classify when ClassifyErr is nil.
	Documents []classifier.Document

	// ClassifyErr, if non-nil, is returned as the error from Classify.
	ClassifyErr error

	// ClassifyFunc, if set, takes precedence over Documents and ClassifyErr.
	ClassifyFunc func(ctx context.Context, sentences []classifier.Sentence) ([]classifier.Document, error)

	// WarmUpErr, if non-nil, is returned as the error from WarmUp.
	WarmUpErr error

	// ClassifyCalls records every invocation of Classify in order.
	ClassifyCalls []ClassifyCall

	// WarmUpCallCount is the number of times WarmUp was called.
	WarmUpCallCount int
}

// Compile-time interface assertions.
var (
	_ classifier.Provider  = (*Provider)(nil)
	_ classifier.WarmUpper = (*Provider)(nil)
)

// Classify records the call and returns the configured result.
func (p *Provider) Classify(ctx context.Context, sentences []classifier.Sentence) ([]classifier.Document, error) {
	p.mu.Lock()
	p.ClassifyCalls = append(p.ClassifyCalls, ClassifyCall{Ctx: ctx, Sentences: slices.Clone(sentences)})
	fn := p.ClassifyFunc
	docs := slices.Clone(p.Documents)
	err := p.ClassifyErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, sentences)
	}
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// WarmUp records the call and returns WarmUpErr.
func (p *Provider) WarmUp(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.WarmUpCallCount++
	return p.WarmUpErr
}

// Calls returns a snapshot of the recorded Classify calls.
func (p *Provider) Calls() []ClassifyCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.ClassifyCalls)
}

// WarmUps returns the number of recorded WarmUp calls.
func (p *Provider) WarmUps() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.WarmUpCallCount
}
