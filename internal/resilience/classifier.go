package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/podsync/pkg/provider/classifier"
)

// Classifier implements [classifier.Provider] with failover across several
// sentiment backends, each guarded by its own circuit breaker.
type Classifier struct {
	group *FallbackGroup[classifier.Provider]
}

// Compile-time interface assertions.
var (
	_ classifier.Provider  = (*Classifier)(nil)
	_ classifier.WarmUpper = (*Classifier)(nil)
)

// NewClassifier creates a [Classifier] with primary as the preferred backend.
func NewClassifier(primary classifier.Provider, primaryName string, cfg FallbackConfig) *Classifier {
	return &Classifier{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend tried after the existing ones.
func (c *Classifier) AddFallback(name string, p classifier.Provider) {
	c.group.AddFallback(name, p)
}

// Names returns the backend names in try order.
func (c *Classifier) Names() []string {
	return c.group.Names()
}

// Classify sends the batch to the first healthy backend. The error returned
// when every backend fails always wraps [classifier.ErrRequestFailed].
func (c *Classifier) Classify(ctx context.Context, sentences []classifier.Sentence) ([]classifier.Document, error) {
	docs, err := ExecuteWithResult(c.group, func(p classifier.Provider) ([]classifier.Document, error) {
		return p.Classify(ctx, sentences)
	})
	if err != nil && !errors.Is(err, classifier.ErrRequestFailed) {
		err = fmt.Errorf("%w: %w", classifier.ErrRequestFailed, err)
	}
	return docs, err
}

// WarmUp pings every backend that supports it. Failures are joined; warm-up
// outcomes do not affect the circuit breakers.
func (c *Classifier) WarmUp(ctx context.Context) error {
	var errs []error
	for _, e := range c.group.entries {
		w, ok := e.value.(classifier.WarmUpper)
		if !ok {
			continue
		}
		if err := w.WarmUp(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
		}
	}
	return errors.Join(errs...)
}
