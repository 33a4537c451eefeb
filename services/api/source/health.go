package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// HealthTimeout bounds each settings health probe.
const HealthTimeout = 8 * time.Second

// Probe is the result of checking one upstream endpoint.
type Probe struct {
	Name      string        `json:"name"`
	URL       string        `json:"url"`
	OK        bool          `json:"ok"`
	Status    int           `json:"status,omitempty"`
	Shape     string        `json:"shape,omitempty"`
	Items     int           `json:"items"`
	Latency   time.Duration `json:"-"`
	LatencyMS int64         `json:"latency_ms"`
	Error     string        `json:"error,omitempty"`
}

// HealthCheck probes every named URL concurrently. Each probe has its own
// HealthTimeout; a failing probe never cancels the others.
func HealthCheck(ctx context.Context, hc *http.Client, urls map[string]string) []Probe {
	if hc == nil {
		hc = &http.Client{}
	}

	names := make([]string, 0, len(urls))
	for name := range urls {
		names = append(names, name)
	}
	sort.Strings(names)

	probes := make([]Probe, len(names))
	var g errgroup.Group
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			probes[i] = probe(ctx, hc, name, urls[name])
			return nil
		})
	}
	_ = g.Wait()
	return probes
}

func probe(ctx context.Context, hc *http.Client, name, url string) (p Probe) {
	p = Probe{Name: name, URL: url}
	if url == "" {
		p.Error = "not configured"
		return p
	}

	ctx, cancel := context.WithTimeout(ctx, HealthTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		p.Latency = time.Since(start)
		p.LatencyMS = p.Latency.Milliseconds()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		p.Error = err.Error()
		return p
	}
	resp, err := hc.Do(req)
	if err != nil {
		p.Error = err.Error()
		return p
	}
	defer resp.Body.Close()

	p.Status = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.Error = fmt.Sprintf("unexpected status %s", resp.Status)
		return p
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		p.Error = fmt.Sprintf("read payload: %v", err)
		return p
	}
	items, shape, err := DecodeItems(data)
	p.Shape = shape.String()
	if err != nil {
		p.Error = err.Error()
		return p
	}

	p.OK = true
	p.Items = len(items)
	return p
}
