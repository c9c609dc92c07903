package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/stagekit/adapter"
	"github.com/pithecene-io/stagekit/iox"
)

func failedStage() *adapter.StageCompletedEvent {
	return &adapter.StageCompletedEvent{
		ContractVersion: "0.3.0",
		EventID:         "b0f5d3d6-3f4c-4b0e-9d55-5d7c2a1e9f00",
		EventType:       adapter.EventTypeStageCompleted,
		Stage:           "seir-covariates",
		RunDirectory:    "/data/seir-covariates/2026_02_07.03",
		Version:         "2026_02_07.03",
		Day:             "2026_02_07",
		Outcome:         "failed",
		Timestamp:       "2026-02-07T12:00:00Z",
		DurationMs:      1500,
		ErrorMessage:    "exit status 2",
	}
}

// receiver answers each POST with the next status in statuses, repeating
// the last one, and records every request it sees.
type receiver struct {
	mu       sync.Mutex
	statuses []int
	requests []*http.Request
	bodies   [][]byte
}

func (rc *receiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	rc.mu.Lock()
	n := len(rc.requests)
	rc.requests = append(rc.requests, r)
	rc.bodies = append(rc.bodies, body)
	code := rc.statuses[min(n, len(rc.statuses)-1)]
	rc.mu.Unlock()
	w.WriteHeader(code)
}

func (rc *receiver) count() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.requests)
}

func serve(t *testing.T, statuses ...int) (*receiver, string) {
	t.Helper()
	rc := &receiver{statuses: statuses}
	ts := httptest.NewServer(rc)
	t.Cleanup(ts.Close)
	return rc, ts.URL
}

func publish(t *testing.T, ctx context.Context, cfg Config) error {
	t.Helper()
	prev := adapter.BaseBackoff
	adapter.BaseBackoff = 5 * time.Millisecond
	t.Cleanup(func() { adapter.BaseBackoff = prev })

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer iox.DiscardClose(a)
	return a.Publish(ctx, failedStage())
}

func TestPublish_Request(t *testing.T) {
	rc, url := serve(t, http.StatusNoContent)
	err := publish(t, t.Context(), Config{
		URL:     url,
		Headers: map[string]string{"Authorization": "Bearer test-token"},
		Secret:  "s3cret",
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if rc.count() != 1 {
		t.Fatalf("requests = %d, want 1", rc.count())
	}

	req, body := rc.requests[0], rc.bodies[0]
	if req.Method != http.MethodPost {
		t.Errorf("method = %s", req.Method)
	}
	wantHeaders := map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer test-token",
		EventIDHeader:   "b0f5d3d6-3f4c-4b0e-9d55-5d7c2a1e9f00",
		StageHeader:     "seir-covariates",
		SignatureHeader: Sign("s3cret", body),
	}
	for k, want := range wantHeaders {
		if got := req.Header.Get(k); got != want {
			t.Errorf("header %s = %q, want %q", k, got, want)
		}
	}

	var got adapter.StageCompletedEvent
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if got.Outcome != "failed" || got.ErrorMessage != "exit status 2" || got.Version != "2026_02_07.03" {
		t.Errorf("event = %+v", got)
	}
}

func TestPublish_NoSignatureWithoutSecret(t *testing.T) {
	rc, url := serve(t, http.StatusOK)
	if err := publish(t, t.Context(), Config{URL: url}); err != nil {
		t.Fatal(err)
	}
	if sig := rc.requests[0].Header.Get(SignatureHeader); sig != "" {
		t.Errorf("signature sent without a secret: %q", sig)
	}
}

func TestPublish_Statuses(t *testing.T) {
	tests := []struct {
		name     string
		statuses []int
		wantCode int // 0 means success
		attempts int
	}{
		{"recovers after 502s", []int{502, 502, 200}, 0, 3},
		{"400 is final", []int{400}, 400, 1},
		{"401 is final", []int{401}, 401, 1},
		{"404 is final", []int{404}, 404, 1},
		{"429 is retried", []int{429}, 429, 3},
		{"500 is retried", []int{500}, 500, 3},
		{"503 is retried", []int{503}, 503, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc, url := serve(t, tt.statuses...)
			err := publish(t, t.Context(), Config{URL: url, Retries: 2})

			if tt.wantCode == 0 {
				if err != nil {
					t.Fatalf("Publish() error = %v", err)
				}
			} else {
				var statusErr *StatusError
				if !errors.As(err, &statusErr) || statusErr.Code != tt.wantCode {
					t.Fatalf("error = %v, want status %d", err, tt.wantCode)
				}
			}
			if rc.count() != tt.attempts {
				t.Errorf("attempts = %d, want %d", rc.count(), tt.attempts)
			}
		})
	}
}

func TestPublish_ContextCanceled(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()
	if err := publish(t, ctx, Config{URL: ts.URL}); err == nil {
		t.Fatal("expected error on canceled context")
	}
}

func TestNew(t *testing.T) {
	for _, cfg := range []Config{{}, {URL: "http://example.com", Retries: -1}} {
		if _, err := New(cfg); err == nil {
			t.Errorf("New(%+v) should fail", cfg)
		}
	}
	a, err := New(Config{URL: "http://example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if a.config.Timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", a.config.Timeout, DefaultTimeout)
	}
}
