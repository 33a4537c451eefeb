// Package source fetches entities and readings from the upstream HTTP feeds
// and normalizes them at the boundary.
package source

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/02loveslollipop/shizuku-reports/services/api/models"
)

// DefaultTimeout bounds each upstream request.
const DefaultTimeout = 30 * time.Second

// maxPayloadBytes caps a single upstream response.
const maxPayloadBytes = 64 << 20

// EntitySource supplies the entity list for one fetch cycle.
type EntitySource interface {
	FetchEntities(ctx context.Context) ([]models.Entity, error)
}

// ReadingSource supplies the reading stream for one fetch cycle.
type ReadingSource interface {
	FetchReadings(ctx context.Context) ([]models.Reading, error)
}

// SkipFunc is told how many records of a collection were dropped.
type SkipFunc func(collection string, n int)

// Client reads both collections over HTTP.
type Client struct {
	http        *http.Client
	kind        models.EntityKind
	entitiesURL string
	readingsURL string
	token       string
	onSkip      SkipFunc
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http = &http.Client{Timeout: d}
	}
}

// WithBearerToken sends an Authorization header on every request.
func WithBearerToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithSkipFunc registers a callback for dropped records.
func WithSkipFunc(fn SkipFunc) Option {
	return func(c *Client) {
		c.onSkip = fn
	}
}

// NewClient creates a client for kind.
func NewClient(kind models.EntityKind, entitiesURL, readingsURL string, opts ...Option) *Client {
	c := &Client{
		http:        &http.Client{Timeout: DefaultTimeout},
		kind:        kind,
		entitiesURL: entitiesURL,
		readingsURL: readingsURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchEntities retrieves and normalizes the entity collection.
func (c *Client) FetchEntities(ctx context.Context) ([]models.Entity, error) {
	items, err := c.fetch(ctx, c.entitiesURL)
	if err != nil {
		return nil, fmt.Errorf("request entities: %w", err)
	}
	entities, skipped := NormalizeEntities(c.kind, items)
	c.skipped("entities", skipped)
	return entities, nil
}

// FetchReadings retrieves and normalizes the reading collection.
func (c *Client) FetchReadings(ctx context.Context) ([]models.Reading, error) {
	items, err := c.fetch(ctx, c.readingsURL)
	if err != nil {
		return nil, fmt.Errorf("request readings: %w", err)
	}
	readings, skipped := NormalizeReadings(c.kind, items)
	c.skipped("readings", skipped)
	return readings, nil
}

// URLs returns the configured endpoints keyed by collection.
func (c *Client) URLs() map[string]string {
	return map[string]string{"entities": c.entitiesURL, "readings": c.readingsURL}
}

func (c *Client) skipped(collection string, n int) {
	if n == 0 {
		return
	}
	log.Printf("skipped %d %s records without key or timestamp", n, collection)
	if c.onSkip != nil {
		c.onSkip(collection, n)
	}
}

func (c *Client) fetch(ctx context.Context, url string) ([]map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}

	items, _, err := DecodeItems(data)
	if err != nil {
		return nil, err
	}
	return items, nil
}
