// Package classifier defines the Provider interface for sentence-level
// sentiment classification backends.
//
// A classifier receives a batch of sentences, each tagged with its index in
// the transcript, and returns one [Document] per sentence it could classify.
// The document ID echoes the sentence index as a decimal string; [ToData]
// converts a response into [sentiment.Data] keyed by sentence index.
//
// Implementors must be safe for concurrent use. A failed request (transport
// error or non-success response) must be reported as an error wrapping
// [ErrRequestFailed].
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrWong99/podsync/pkg/sentiment"
)

// ErrRequestFailed marks a classification request that did not yield a
// usable response.
var ErrRequestFailed = errors.New("classifier: request failed")

// Sentence is one unit of classification input.
type Sentence struct {
	SentenceIndex int    `json:"sentenceIndex"`
	Text          string `json:"text"`
}

// Document is the classification result for one sentence.
type Document struct {
	// ID is the decimal sentence index the document refers to.
	ID string `json:"id"`

	Sentiment sentiment.Label `json:"sentiment"`

	// ConfidenceScores maps label names to the backend's confidence.
	ConfidenceScores map[string]float64 `json:"confidenceScores,omitempty"`
}

// Provider classifies sentence batches.
type Provider interface {
	// Classify returns documents for the given sentences. Sentences the
	// backend chose not to classify are simply absent from the result.
	Classify(ctx context.Context, sentences []Sentence) ([]Document, error)
}

// WarmUpper is implemented by providers whose backend benefits from an
// occasional ping, for example a host that sleeps when idle.
type WarmUpper interface {
	WarmUp(ctx context.Context) error
}

// ToData converts documents into sentiment data keyed by sentence index.
// Documents with an unparsable ID or an unknown label are skipped and
// reported in the returned error slice.
func ToData(docs []Document) (sentiment.Data, []error) {
	data := make(sentiment.Data, len(docs))
	var errs []error
	for _, d := range docs {
		idx, err := strconv.Atoi(d.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("classifier: document id %q: %w", d.ID, err))
			continue
		}
		label, err := sentiment.ParseLabel(string(d.Sentiment))
		if err != nil {
			errs = append(errs, fmt.Errorf("classifier: document %d: %w", idx, err))
			continue
		}
		scores := make(map[sentiment.Label]float64, len(d.ConfidenceScores))
		for k, v := range d.ConfidenceScores {
			scores[sentiment.Label(k)] = v
		}
		data[idx] = sentiment.Entry{Sentiment: label, Scores: scores}
	}
	return data, errs
}
