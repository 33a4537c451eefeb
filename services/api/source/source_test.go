package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/02loveslollipop/shizuku-reports/services/api/models"
)

func TestDecodeItems(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantShape Shape
		wantItems int
		wantErr   error
	}{
		{"raw array", `[{"id":1},{"id":2}]`, ShapeArray, 2, nil},
		{"envelope", ` {"data":[{"id":1}],"meta":{"count":1}}`, ShapeEnvelope, 1, nil},
		{"bom prefixed", "\ufeff[{\"id\":1}]", ShapeArray, 1, nil},
		{"empty envelope", `{"data":[]}`, ShapeEnvelope, 0, nil},
		{"object without data", `{"items":[]}`, ShapeEnvelope, 0, ErrUnknownShape},
		{"scalar", `42`, ShapeUnknown, 0, ErrUnknownShape},
		{"empty", ``, ShapeUnknown, 0, ErrUnknownShape},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, shape, err := DecodeItems([]byte(tt.payload))
			if shape != tt.wantShape {
				t.Errorf("shape = %s, want %s", shape, tt.wantShape)
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeItems() error = %v", err)
			}
			if len(items) != tt.wantItems {
				t.Errorf("items = %d, want %d", len(items), tt.wantItems)
			}
		})
	}
}

func TestDecodeItems_MalformedArray(t *testing.T) {
	if _, _, err := DecodeItems([]byte(`[{"id":1},`)); err == nil {
		t.Error("expected error for truncated array")
	}
}

func TestNormalizeEntities(t *testing.T) {
	items, _, err := DecodeItems([]byte(`[
		{"id": 12, "barangay_name": "San Roque", "name": "SR", "latitude": 14.65, "lng": 121.03, "type": "urban"},
		{"barangay_id": "B-7", "display_name": "Malanday"},
		{"name": "no key"}
	]`))
	if err != nil {
		t.Fatalf("DecodeItems() error = %v", err)
	}

	entities, skipped := NormalizeEntities(models.KindBarangay, items)
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
	if len(entities) != 2 {
		t.Fatalf("entities = %d, want 2", len(entities))
	}

	first := entities[0]
	if first.Key != "12" || first.Name != "San Roque" || first.Category != "urban" {
		t.Errorf("first entity = %+v", first)
	}
	if first.Lat == nil || *first.Lat != 14.65 || first.Lon == nil || *first.Lon != 121.03 {
		t.Errorf("coordinates = %v/%v", first.Lat, first.Lon)
	}
	if entities[1].Key != "B-7" || entities[1].Name != "Malanday" {
		t.Errorf("second entity = %+v", entities[1])
	}
}

func TestNormalizeReadings(t *testing.T) {
	items, _, err := DecodeItems([]byte(`{"data": [
		{"sensor_id": 1, "timestamp": "2024-03-02T00:00:00Z", "severity": "very_high", "co2": 500},
		{"entity_id": "1", "recorded_at": 1709337600, "level": "LOW"},
		{"sensor_id": 2, "timestamp": "2024-03-02 08:30:00", "severity": "apocalyptic"},
		{"sensor_id": 3, "timestamp": "yesterday"},
		{"timestamp": "2024-03-02T00:00:00Z"}
	]}`))
	if err != nil {
		t.Fatalf("DecodeItems() error = %v", err)
	}

	readings, skipped := NormalizeReadings(models.KindSensor, items)
	if skipped != 2 {
		t.Errorf("skipped = %d, want 2", skipped)
	}
	if len(readings) != 3 {
		t.Fatalf("readings = %d, want 3", len(readings))
	}

	if readings[0].EntityKey != "1" || readings[0].Severity != models.SeverityVeryHigh {
		t.Errorf("reading[0] = %+v", readings[0])
	}
	if co2, ok := models.NumberField(readings[0].Fields, "co2"); !ok || co2 != 500 {
		t.Errorf("co2 = %v, %v", co2, ok)
	}
	if want := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC); !readings[1].Timestamp.Equal(want) {
		t.Errorf("unix timestamp parsed as %s, want %s", readings[1].Timestamp, want)
	}
	if readings[2].Severity != models.SeverityNormal {
		t.Errorf("unknown severity = %v, want NORMAL", readings[2].Severity)
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   any
		ok   bool
	}{
		{"rfc3339", "2024-03-01T12:00:00Z", true},
		{"offset", "2024-03-01T20:00:00+08:00", true},
		{"millis", "1709294400000", true},
		{"seconds float", float64(1709294400), true},
		{"garbage", "soon", false},
		{"bool", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.in)
			if ok != tt.ok {
				t.Fatalf("ParseTimestamp(%v) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if ok && !got.Equal(want) {
				t.Errorf("ParseTimestamp(%v) = %s, want %s", tt.in, got, want)
			}
		})
	}
}

func TestClient_Fetch(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/entities":
			_, _ = w.Write([]byte(`[{"id":1,"name":"A"},{"name":"keyless"}]`))
		case "/readings":
			_, _ = w.Write([]byte(`{"data":[{"sensor_id":1,"ts":"2024-03-01T00:00:00Z","severity":"HIGH"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	skips := make(map[string]int)
	c := NewClient(models.KindSensor, server.URL+"/entities", server.URL+"/readings",
		WithBearerToken("secret"),
		WithSkipFunc(func(collection string, n int) { skips[collection] += n }),
	)

	entities, err := c.FetchEntities(context.Background())
	if err != nil {
		t.Fatalf("FetchEntities() error = %v", err)
	}
	if len(entities) != 1 || entities[0].Name != "A" {
		t.Errorf("entities = %+v", entities)
	}
	if skips["entities"] != 1 {
		t.Errorf("skipped entities = %d, want 1", skips["entities"])
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}

	readings, err := c.FetchReadings(context.Background())
	if err != nil {
		t.Fatalf("FetchReadings() error = %v", err)
	}
	if len(readings) != 1 || readings[0].Severity != models.SeverityHigh {
		t.Errorf("readings = %+v", readings)
	}
}

func TestClient_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/down":
			w.WriteHeader(http.StatusBadGateway)
		case "/html":
			_, _ = w.Write([]byte(`<html>maintenance</html>`))
		case "/slow":
			time.Sleep(200 * time.Millisecond)
			_, _ = w.Write([]byte(`[]`))
		}
	}))
	defer server.Close()

	tests := []struct {
		name    string
		path    string
		opts    []Option
		wantErr string
	}{
		{"bad status", "/down", nil, "unexpected status"},
		{"unknown shape", "/html", nil, ErrUnknownShape.Error()},
		{"timeout", "/slow", []Option{WithTimeout(20 * time.Millisecond)}, "request entities"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(models.KindSensor, server.URL+tt.path, "", tt.opts...)
			_, err := c.FetchEntities(context.Background())
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("FetchEntities() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ok" {
			_, _ = w.Write([]byte(`{"data":[{"id":1},{"id":2}]}`))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	probes := HealthCheck(context.Background(), server.Client(), map[string]string{
		"readings": server.URL + "/down",
		"entities": server.URL + "/ok",
		"extra":    "",
	})

	if len(probes) != 3 {
		t.Fatalf("probes = %d, want 3", len(probes))
	}
	byName := make(map[string]Probe)
	for _, p := range probes {
		byName[p.Name] = p
	}
	if p := byName["entities"]; !p.OK || p.Items != 2 || p.Shape != "envelope" {
		t.Errorf("entities probe = %+v", p)
	}
	if p := byName["readings"]; p.OK || p.Status != http.StatusServiceUnavailable {
		t.Errorf("readings probe = %+v", p)
	}
	if p := byName["extra"]; p.OK || p.Error != "not configured" {
		t.Errorf("extra probe = %+v", p)
	}
	if probes[0].Name != "entities" {
		t.Errorf("probes not sorted by name: %s first", probes[0].Name)
	}
}
