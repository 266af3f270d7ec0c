package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/MrWong99/podsync/internal/config"
	"github.com/MrWong99/podsync/pkg/provider/classifier"
	"github.com/MrWong99/podsync/pkg/provider/classifier/googlenl"
	"github.com/MrWong99/podsync/pkg/provider/classifier/httpapi"
	"github.com/MrWong99/podsync/pkg/provider/classifier/mock"
	"github.com/MrWong99/podsync/pkg/provider/classifier/openai"
	"github.com/MrWong99/podsync/pkg/sentiment"
)

// registerBuiltinProviders wires all built-in classifier factories into reg.
// Each factory receives a config.ProviderEntry and constructs the backend
// from the real implementation packages. ctx bounds client construction for
// backends that dial at creation time.
func registerBuiltinProviders(ctx context.Context, reg *config.Registry) {
	// http is the remote analysis service; it sleeps when idle and supports
	// warm-up pings.
	reg.Register("http", func(entry config.ProviderEntry) (classifier.Provider, error) {
		var opts []httpapi.Option
		if entry.Timeout > 0 {
			opts = append(opts, httpapi.WithTimeout(entry.Timeout))
		}
		if entry.APIKey != "" {
			opts = append(opts, httpapi.WithAPIKey(entry.APIKey))
		}
		return httpapi.New(entry.BaseURL, opts...)
	})

	reg.Register("openai", func(entry config.ProviderEntry) (classifier.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if entry.Timeout > 0 {
			opts = append(opts, openai.WithTimeout(entry.Timeout))
		}
		if _, ok := entry.Options["max_retries"]; ok {
			opts = append(opts, openai.WithMaxRetries(config.OptInt(entry.Options, "max_retries")))
		}
		model := entry.Model
		if model == "" {
			model = "gpt-4o-mini"
		}
		apiKey := entry.APIKey
		if apiKey == "" {
			// Self-hosted OpenAI-compatible servers usually ignore the key.
			apiKey = "unused"
		}
		return openai.New(apiKey, model, opts...)
	})

	// googlenl uses Application Default Credentials when no credentials are
	// configured.
	reg.Register("googlenl", func(entry config.ProviderEntry) (classifier.Provider, error) {
		var opts []googlenl.Option
		if n := config.OptInt(entry.Options, "concurrency"); n > 0 {
			opts = append(opts, googlenl.WithConcurrency(n))
		}
		return googlenl.New(ctx, entry.Credentials, opts...)
	})

	// mock labels every sentence with options.label (default neutral). It
	// lets the server run without any backend.
	reg.Register("mock", func(entry config.ProviderEntry) (classifier.Provider, error) {
		label := sentiment.Neutral
		if s := config.OptString(entry.Options, "label"); s != "" {
			l, err := sentiment.ParseLabel(s)
			if err != nil {
				return nil, err
			}
			label = l
		}
		return &mock.Provider{ClassifyFunc: constantLabel(label)}, nil
	})

	for _, name := range reg.Names() {
		slog.Debug("registered classifier", "name", name)
	}
}

// constantLabel returns a classify function that assigns l to every sentence.
func constantLabel(l sentiment.Label) func(context.Context, []classifier.Sentence) ([]classifier.Document, error) {
	return func(_ context.Context, sentences []classifier.Sentence) ([]classifier.Document, error) {
		docs := make([]classifier.Document, len(sentences))
		for i, s := range sentences {
			docs[i] = classifier.Document{
				ID:        strconv.Itoa(s.SentenceIndex),
				Sentiment: l,
			}
		}
		return docs, nil
	}
}
