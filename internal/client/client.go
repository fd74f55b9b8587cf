// Package client provides an HTTP client for the meteolog server.
//
// It mirrors the server's REST surface one method per endpoint and is the
// transport behind the meteoctl command.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/xtxerr/meteolog/internal/aggregate"
	"github.com/xtxerr/meteolog/internal/errors"
	"github.com/xtxerr/meteolog/internal/reading"
	"github.com/xtxerr/meteolog/internal/service"
)

// =============================================================================
// Errors
// =============================================================================

// APIError is a non-2xx response decoded from the server's error body.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// =============================================================================
// Client
// =============================================================================

// Config holds client configuration.
type Config struct {
	// BaseURL is the server address, e.g. "http://localhost:8000".
	BaseURL string

	// Timeout bounds each request.
	Timeout time.Duration
}

// DefaultConfig returns default client configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: "http://localhost:8000",
		Timeout: 10 * time.Second,
	}
}

// Client talks to a meteolog server.
type Client struct {
	base string
	http *http.Client
}

// New creates a new client.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		base: base,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// BaseURL returns the normalized server address.
func (c *Client) BaseURL() string {
	return c.base
}

// =============================================================================
// Readings
// =============================================================================

// Ingest submits one reading and returns it as stored.
func (c *Client) Ingest(ctx context.Context, r reading.Reading) (reading.Reading, error) {
	var stored reading.Reading
	err := c.do(ctx, http.MethodPost, "/readings", r, &stored)
	return stored, err
}

type recentResponse struct {
	Count    int               `json:"count"`
	Readings []reading.Reading `json:"readings"`
}

// Recent returns the newest readings, newest first. A zero limit uses the
// server default.
func (c *Client) Recent(ctx context.Context, limit int) ([]reading.Reading, error) {
	path := "/readings/recent"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp recentResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Readings, nil
}

type latestResponse struct {
	Reading reading.Reading `json:"reading"`
	Source  string          `json:"source"`
}

// Latest returns the most recent reading and the source that answered.
func (c *Client) Latest(ctx context.Context) (reading.Reading, string, error) {
	var resp latestResponse
	if err := c.do(ctx, http.MethodGet, "/readings/latest", nil, &resp); err != nil {
		return reading.Reading{}, "", err
	}
	return resp.Reading, resp.Source, nil
}

// Clear deletes all stored readings and returns the count removed.
func (c *Client) Clear(ctx context.Context) (int64, error) {
	var resp struct {
		Deleted int64 `json:"deleted"`
	}
	if err := c.do(ctx, http.MethodDelete, "/readings", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Deleted, nil
}

// =============================================================================
// Analytics
// =============================================================================

// Average returns the average over the trailing window. A zero window uses
// the server default.
func (c *Client) Average(ctx context.Context, window time.Duration) (aggregate.Result, error) {
	var res aggregate.Result
	err := c.do(ctx, http.MethodGet, windowPath("/analytics/average", window), nil, &res)
	return res, err
}

// Summary returns the statistical summary over the trailing window.
func (c *Client) Summary(ctx context.Context, window time.Duration) (aggregate.Summary, error) {
	var sum aggregate.Summary
	err := c.do(ctx, http.MethodGet, windowPath("/analytics/summary", window), nil, &sum)
	return sum, err
}

func windowPath(path string, window time.Duration) string {
	if window <= 0 {
		return path
	}
	minutes := int(window / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return path + "?minutes=" + strconv.Itoa(minutes)
}

// =============================================================================
// Maintenance
// =============================================================================

// Status returns the server health report. A degraded server answers with a
// non-2xx status but still carries a report, so that is not an error here.
func (c *Client) Status(ctx context.Context) (service.Health, error) {
	var h service.Health
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/status", nil)
	if err != nil {
		return h, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return h, fmt.Errorf("request status: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return h, fmt.Errorf("decode status: %w", err)
	}
	return h, nil
}

// Simulate asks the server to generate synthetic readings. Zero counts use
// the server defaults.
func (c *Client) Simulate(ctx context.Context, sensors, perSensor int) (int, error) {
	body := map[string]interface{}{}
	if sensors > 0 {
		body["sensors"] = sensors
	}
	if perSensor > 0 {
		body["readings_per_sensor"] = perSensor
	}
	var resp struct {
		Generated int `json:"generated"`
	}
	if err := c.do(ctx, http.MethodPost, "/simulate/sensor-data", body, &resp); err != nil {
		return 0, err
	}
	return resp.Generated, nil
}

// Export streams a Parquet export of the trailing window into w and returns
// the byte count. A zero window exports everything.
func (c *Client) Export(ctx context.Context, window time.Duration, compression string, w io.Writer) (int64, error) {
	q := url.Values{}
	if window > 0 {
		minutes := int(window / time.Minute)
		if minutes < 1 {
			minutes = 1
		}
		q.Set("minutes", strconv.Itoa(minutes))
	}
	if compression != "" {
		q.Set("compression", compression)
	}
	path := "/readings/export"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request export: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, decodeError(resp)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("stream export: %w", err)
	}
	return n, nil
}

// =============================================================================
// Transport
// =============================================================================

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var body struct {
		Error string `json:"error"`
	}
	msg := ""
	if err := json.Unmarshal(data, &body); err == nil {
		msg = body.Error
	}
	if msg == "" {
		msg = strings.TrimSpace(string(data))
	}
	if msg == "" {
		msg = resp.Status
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
