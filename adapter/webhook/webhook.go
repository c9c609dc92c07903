// Package webhook POSTs stage completion events to an HTTP endpoint.
//
// Every request carries the event JSON plus three headers: the event id,
// the stage name and, when a secret is configured, a hex HMAC-SHA256 of
// the body. Server errors and transport failures are retried with the
// shared adapter backoff; client errors are not.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pithecene-io/stagekit/adapter"
	"github.com/pithecene-io/stagekit/iox"
)

// Request headers.
const (
	SignatureHeader = "X-Stagekit-Signature"
	EventIDHeader   = "X-Stagekit-Event"
	StageHeader     = "X-Stagekit-Stage"
)

const (
	DefaultTimeout = 10 * time.Second
	DefaultRetries = 3
)

// Config configures the webhook adapter. Only URL is required.
type Config struct {
	URL     string
	Headers map[string]string
	Secret  string
	Timeout time.Duration
	Retries int
}

// Adapter sends stage completion events as HTTP POST requests.
type Adapter struct {
	config Config
	client *http.Client
}

// New validates cfg and fills in the default timeout.
func New(cfg Config) (*Adapter, error) {
	switch {
	case cfg.URL == "":
		return nil, errors.New("webhook adapter requires a URL")
	case cfg.Retries < 0:
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Adapter{config: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Retriable reports whether the receiver might accept the same event later.
func (e *StatusError) Retriable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Publish posts event, retrying until the receiver answers 2xx, answers
// with a non-retriable status or the retries run out.
func (a *Adapter) Publish(ctx context.Context, event *adapter.StageCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}
	headers := a.headers(event, body)

	return adapter.Retry(ctx, "webhook", a.config.Retries, func(ctx context.Context) error {
		err := a.post(ctx, headers, body)
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Retriable() {
			return &adapter.Permanent{Err: err}
		}
		return err
	})
}

func (a *Adapter) headers(event *adapter.StageCompletedEvent, body []byte) http.Header {
	h := make(http.Header, len(a.config.Headers)+4)
	for k, v := range a.config.Headers {
		h.Set(k, v)
	}
	h.Set("Content-Type", "application/json")
	h.Set(EventIDHeader, event.EventID)
	h.Set(StageHeader, event.Stage)
	if a.config.Secret != "" {
		h.Set(SignatureHeader, Sign(a.config.Secret, body))
	}
	return h
}

func (a *Adapter) post(ctx context.Context, headers http.Header, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header = headers.Clone()

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Close drops idle connections.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
