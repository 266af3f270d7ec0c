package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/podsync/pkg/provider/classifier"
	"github.com/MrWong99/podsync/pkg/sentiment"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	for _, base := range []string{"", "not a url", "/relative"} {
		if _, err := New(base); err == nil {
			t.Errorf("New(%q) expected error", base)
		}
	}
	p, err := New("http://example.com/", WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.baseURL != "http://example.com" {
		t.Errorf("baseURL = %q, want trailing slash trimmed", p.baseURL)
	}
	if p.httpClient.Timeout != 5*time.Second {
		t.Errorf("timeout = %v", p.httpClient.Timeout)
	}
}

func TestClassify_Success(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		gotReq  analyzeRequest
		gotAuth string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != analyzeEndpoint {
			http.Error(w, "unexpected route", http.StatusNotFound)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"documents":[
			{"id":"0","sentiment":"positive","confidenceScores":{"positive":0.9,"neutral":0.05,"negative":0.05}},
			{"id":"1","sentiment":"negative","confidenceScores":{"negative":0.8}}
		]}`))
	}))
	defer srv.Close()

	p, err := New(srv.URL, WithAPIKey("secret"))
	if err != nil {
		t.Fatal(err)
	}
	docs, err := p.Classify(context.Background(), []classifier.Sentence{
		{SentenceIndex: 0, Text: "great show"},
		{SentenceIndex: 1, Text: "awful ending"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(gotReq.Sentences) != 2 || gotReq.Sentences[1].Text != "awful ending" {
		t.Errorf("request sentences = %+v", gotReq.Sentences)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if len(docs) != 2 {
		t.Fatalf("len(docs) = %d, want 2", len(docs))
	}
	if docs[0].ID != "0" || docs[0].Sentiment != sentiment.Positive || docs[0].ConfidenceScores["positive"] != 0.9 {
		t.Errorf("docs[0] = %+v", docs[0])
	}
}

func TestClassify_ErrorStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"with error field", http.StatusInternalServerError, `{"error":"model unavailable"}`, "status 500. model unavailable"},
		{"no body", http.StatusServiceUnavailable, ``, "status 503."},
		{"non json body", http.StatusBadGateway, `<html>bad gateway</html>`, "status 502."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			p, _ := New(srv.URL)
			_, err := p.Classify(context.Background(), []classifier.Sentence{{SentenceIndex: 0, Text: "x"}})
			if !errors.Is(err, classifier.ErrRequestFailed) {
				t.Fatalf("err = %v, want ErrRequestFailed", err)
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("err = %q, want it to contain %q", err, tc.wantMsg)
			}
		})
	}
}

func TestClassify_MalformedResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"documents": [`))
	}))
	defer srv.Close()

	p, _ := New(srv.URL)
	if _, err := p.Classify(context.Background(), nil); !errors.Is(err, classifier.ErrRequestFailed) {
		t.Fatalf("err = %v, want ErrRequestFailed", err)
	}
}

func TestClassify_TransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	p, _ := New(url)
	if _, err := p.Classify(context.Background(), nil); !errors.Is(err, classifier.ErrRequestFailed) {
		t.Fatalf("err = %v, want ErrRequestFailed", err)
	}
}

func TestClassify_ContextCancelled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, _ := New(srv.URL)
	if _, err := p.Classify(ctx, nil); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestWarmUp(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/" {
			hits.Add(1)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, _ := New(srv.URL)
	if err := p.WarmUp(context.Background()); err != nil {
		t.Fatalf("WarmUp error: %v", err)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("hits = %d, want 1", n)
	}
}
