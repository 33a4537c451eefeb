package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/02loveslollipop/shizuku-reports/services/api/report"
)

// DefaultWebhookTimeout bounds a webhook delivery.
const DefaultWebhookTimeout = 10 * time.Second

// Response contains the result of a webhook request.
type Response struct {
	StatusCode int
	Body       string
	Duration   time.Duration
	Error      error
}

// Success reports a 2xx response without transport errors.
func (r *Response) Success() bool {
	return r.Error == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// WebhookExporter POSTs the JSON document to a URL.
type WebhookExporter struct {
	httpClient *http.Client
	url        string
	token      string
	timeout    time.Duration
}

// WebhookOption configures a WebhookExporter.
type WebhookOption func(*WebhookExporter)

// WithWebhookToken sends a bearer token.
func WithWebhookToken(token string) WebhookOption {
	return func(e *WebhookExporter) {
		e.token = token
	}
}

// WithWebhookTimeout overrides DefaultWebhookTimeout.
func WithWebhookTimeout(d time.Duration) WebhookOption {
	return func(e *WebhookExporter) {
		e.timeout = d
	}
}

// WithWebhookHTTPClient sets the HTTP client.
func WithWebhookHTTPClient(hc *http.Client) WebhookOption {
	return func(e *WebhookExporter) {
		e.httpClient = hc
	}
}

// NewWebhookExporter creates an exporter posting to url.
func NewWebhookExporter(url string, opts ...WebhookOption) *WebhookExporter {
	e := &WebhookExporter{
		httpClient: &http.Client{},
		url:        url,
		timeout:    DefaultWebhookTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements Exporter.
func (e *WebhookExporter) Name() string { return "webhook" }

// Export implements Exporter.
func (e *WebhookExporter) Export(ctx context.Context, doc *report.Document) (*Result, error) {
	resp, size := e.Send(ctx, doc)
	res := &Result{
		Target:     e.Name(),
		Location:   e.url,
		Bytes:      size,
		StatusCode: resp.StatusCode,
		Duration:   resp.Duration,
		DurationMS: resp.Duration.Milliseconds(),
	}
	if !resp.Success() {
		if resp.Error == nil {
			return res, fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
		return res, resp.Error
	}
	return res, nil
}

// Send posts doc and reports the outcome along with the payload size.
func (e *WebhookExporter) Send(ctx context.Context, doc *report.Document) (*Response, int) {
	start := time.Now()
	resp := &Response{}

	payload, err := json.Marshal(doc)
	if err != nil {
		resp.Error = fmt.Errorf("failed to marshal document: %w", err)
		resp.Duration = time.Since(start)
		return resp, 0
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		resp.Error = fmt.Errorf("failed to create request: %w", err)
		resp.Duration = time.Since(start)
		return resp, len(payload)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "shizuku-reports")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	httpResp, err := e.httpClient.Do(req)
	if err != nil {
		resp.Error = fmt.Errorf("request failed: %w", err)
		resp.Duration = time.Since(start)
		return resp, len(payload)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 1024*1024))
	if err != nil {
		resp.Error = fmt.Errorf("failed to read response: %w", err)
		resp.Duration = time.Since(start)
		return resp, len(payload)
	}

	resp.StatusCode = httpResp.StatusCode
	resp.Body = string(body)
	resp.Duration = time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Error = fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return resp, len(payload)
}
