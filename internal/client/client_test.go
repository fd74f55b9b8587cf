package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xtxerr/meteolog/internal/errors"
	"github.com/xtxerr/meteolog/internal/reading"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(&Config{BaseURL: srv.URL, Timeout: 2 * time.Second})
}

func TestClient_BaseURLNormalization(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"http://localhost:8000", "http://localhost:8000"},
		{"http://localhost:8000/", "http://localhost:8000"},
		{"localhost:8000", "http://localhost:8000"},
	}
	for _, tc := range cases {
		c := New(&Config{BaseURL: tc.in})
		if c.BaseURL() != tc.want {
			t.Errorf("BaseURL(%q): expected %q, got %q", tc.in, tc.want, c.BaseURL())
		}
	}

	if New(nil).BaseURL() != "http://localhost:8000" {
		t.Errorf("nil config should use the default address")
	}
}

func TestClient_Ingest(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/readings" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var got reading.Reading
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if got.SensorID != "room-1" || got.Temperature != 21.5 {
			t.Errorf("unexpected reading: %+v", got)
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(got)
	})

	stored, err := c.Ingest(context.Background(), reading.Reading{
		Timestamp: ts, Temperature: 21.5, SensorID: "room-1",
	})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if stored.SensorID != "room-1" {
		t.Errorf("expected stored reading back, got %+v", stored)
	}
}

func TestClient_RecentPassesLimit(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/readings/recent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("limit") != "5" {
			t.Errorf("expected limit=5, got %q", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"count": 2,
			"readings": []reading.Reading{
				{Temperature: 22, SensorID: "a"},
				{Temperature: 21, SensorID: "b"},
			},
		})
	})

	rs, err := c.Recent(context.Background(), 5)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(rs) != 2 || rs[0].SensorID != "a" {
		t.Errorf("unexpected readings: %+v", rs)
	}
}

func TestClient_Latest(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"reading": reading.Reading{Temperature: 19.5, SensorID: "room-2"},
			"source":  "cache",
		})
	})

	r, source, err := c.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if r.SensorID != "room-2" || source != "cache" {
		t.Errorf("unexpected result: %+v source=%q", r, source)
	}
}

func TestClient_NotFound(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "no such reading"})
	})

	_, _, err := c.Latest(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsNotFound(err) {
		t.Errorf("expected IsNotFound, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "no such reading" {
		t.Errorf("expected decoded server message, got %v", err)
	}
}

func TestClient_ErrorBodyFallback(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	})

	_, err := c.Clear(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError || apiErr.Message != "boom" {
		t.Errorf("unexpected error: %+v", apiErr)
	}
}

func TestClient_AveragePassesWindow(t *testing.T) {
	avg := 21.25
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("minutes") != "30" {
			t.Errorf("expected minutes=30, got %q", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"average": avg,
			"count":   12,
			"source":  "cache",
		})
	})

	res, err := c.Average(context.Background(), 30*time.Minute)
	if err != nil {
		t.Fatalf("Average failed: %v", err)
	}
	if res.Count != 12 || res.Average == nil || *res.Average != avg {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestClient_Simulate(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]int
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body["sensors"] != 2 || body["readings_per_sensor"] != 5 {
			t.Errorf("unexpected body: %v", body)
		}
		json.NewEncoder(w).Encode(map[string]int{"generated": 10})
	})

	n, err := c.Simulate(context.Background(), 2, 5)
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	if n != 10 {
		t.Errorf("expected 10 generated, got %d", n)
	}
}

func TestClient_Export(t *testing.T) {
	payload := []byte("not really parquet but server said so")
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("compression") != "snappy" {
			t.Errorf("expected compression=snappy, got %q", r.URL.RawQuery)
		}
		if r.URL.Query().Get("minutes") != "60" {
			t.Errorf("expected minutes=60, got %q", r.URL.RawQuery)
		}
		w.Write(payload)
	})

	var buf bytes.Buffer
	n, err := c.Export(context.Background(), time.Hour, "snappy", &buf)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if n != int64(len(payload)) || !bytes.Equal(buf.Bytes(), payload) {
		t.Errorf("expected %d bytes copied, got %d", len(payload), n)
	}
}

func TestClient_StatusDecodesDegraded(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "degraded",
			"error":  "storage unreachable",
		})
	})

	h, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if h.Status != "degraded" || h.Error != "storage unreachable" {
		t.Errorf("unexpected health: %+v", h)
	}
}
