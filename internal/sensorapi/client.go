// Package sensorapi executes logical queries against the sensor gateway,
// retrying through tunnel rotations via forced endpoint re-resolution.
package sensorapi

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"sensorchat-backend/config"
	"sensorchat-backend/internal/model"
	"sensorchat-backend/internal/normalize"
)

// Resolver is the endpoint discovery dependency. *endpoint.Resolver satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, forceRefresh bool) (string, error)
	Invalidate()
	Fallback() string
}

// Client issues logical requests against the currently resolved endpoint.
type Client struct {
	resolver Resolver
	http     *http.Client

	maxAttempts       int
	httpErrorAttempts int
	backoffBase       time.Duration
	backoffMax        time.Duration
}

// ReadingsQuery selects sensor readings. Limit and Hours are passed through
// as opaque query parameters; their enforcement is the gateway's business.
// SensorType is filtered client-side because the gateway has no parameter
// for it.
type ReadingsQuery struct {
	DeviceID   string
	SensorType string
	Limit      int
	Hours      float64
}

// NewClient builds a client around the given resolver. The dialer's connect
// timeout is kept strictly smaller than the overall request timeout.
func NewClient(resolver Resolver, cfg *config.SensorAPIConfig) *Client {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	return &Client{
		resolver: resolver,
		http: &http.Client{
			Transport: &http.Transport{DialContext: dialer.DialContext},
			Timeout:   cfg.ReadTimeout,
		},
		maxAttempts:       cfg.MaxAttempts,
		httpErrorAttempts: cfg.HTTPErrorAttempts,
		backoffBase:       cfg.BackoffBase,
		backoffMax:        cfg.BackoffMax,
	}
}

// Health probes the gateway's liveness endpoint through the normal retry
// path and reports whether it answered.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.request(ctx, "/health", nil)
	return err
}

// Devices lists the gateway's known devices.
func (c *Client) Devices(ctx context.Context) ([]model.Device, error) {
	body, err := c.request(ctx, "/devices", nil)
	if err != nil {
		return nil, err
	}
	return normalize.Devices(body), nil
}

// DeviceInfo fetches one device's descriptor. A nil device with a nil error
// means the gateway answered but knows no such device.
func (c *Client) DeviceInfo(ctx context.Context, deviceID string) (*model.Device, error) {
	body, err := c.request(ctx, "/devices/"+url.PathEscape(deviceID), nil)
	if err != nil {
		return nil, err
	}
	device, ok := normalize.Device(body)
	if !ok {
		return nil, nil
	}
	return &device, nil
}

// ReadingsResult carries the normalized readings plus how many malformed
// records the normalizer had to skip, so the UI can flag partial data.
type ReadingsResult struct {
	Readings []model.Reading
	Dropped  int
}

// Readings fetches sensor readings matching the query.
func (c *Client) Readings(ctx context.Context, q ReadingsQuery) (ReadingsResult, error) {
	path := "/data"
	if q.DeviceID != "" {
		path = "/data/" + url.PathEscape(q.DeviceID)
	}

	params := url.Values{}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Hours > 0 {
		params.Set("hours", strconv.FormatFloat(q.Hours, 'f', -1, 64))
	}

	body, err := c.request(ctx, path, params)
	if err != nil {
		return ReadingsResult{}, err
	}

	readings, dropped := normalize.Readings(body)
	if q.SensorType != "" {
		filtered := readings[:0]
		for _, r := range readings {
			if r.SensorType == q.SensorType {
				filtered = append(filtered, r)
			}
		}
		readings = filtered
	}
	return ReadingsResult{Readings: readings, Dropped: dropped}, nil
}

// request runs one logical call through the retry state machine. After the
// first failed attempt the next resolve is forced: the most likely cause of
// failure in this system is a rotated tunnel address, not server overload.
func (c *Client) request(ctx context.Context, path string, params url.Values) ([]byte, error) {
	var lastErr error
	httpErrors := 0

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, attempt-1); err != nil {
				return nil, err
			}
		}

		base, err := c.resolver.Resolve(ctx, attempt > 0)
		if err != nil {
			// Last resort only: avoids crashing, never treated as confirmed.
			if base = c.resolver.Fallback(); base == "" {
				return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
			}
			log.Printf("sensorapi: resolution failed (%v), trying fallback URL %s", err, base)
		}

		body, err := c.do(ctx, base, path, params)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if _, ok := IsStatusError(err); ok {
			httpErrors++
			if httpErrors >= c.httpErrorAttempts {
				return nil, fmt.Errorf("%w: %w", ErrUnreachable, lastErr)
			}
		}
		log.Printf("sensorapi: attempt %d/%d for %s failed: %v", attempt+1, c.maxAttempts, path, err)
		c.resolver.Invalidate()
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrUnreachable, c.maxAttempts, lastErr)
}

// do executes a single HTTP attempt.
func (c *Client) do(ctx context.Context, base, path string, params url.Values) ([]byte, error) {
	u := base + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Path: path}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// sleep waits base*2^n plus jitter, capped, without blocking past ctx. The
// jitter prevents synchronized retry storms when several clients fail at once.
func (c *Client) sleep(ctx context.Context, n int) error {
	delay := c.backoffBase * time.Duration(1<<uint(n))
	if delay > c.backoffMax {
		delay = c.backoffMax
	}
	delay += time.Duration(rand.Int63n(int64(c.backoffBase)))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
