// Package endpoint tracks which base URL currently serves the sensor gateway.
// The gateway sits behind a tunnel whose public address rotates without
// notice, so the live URL has to be rediscovered by probing candidates and
// following the gateway's own self-reported address.
package endpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"sensorchat-backend/config"
)

// ErrNoReachableEndpoint is returned when every candidate URL failed its
// health probe. Callers needing to avoid total failure may fall back to
// Fallback(), which is never treated as confirmed.
var ErrNoReachableEndpoint = errors.New("no candidate endpoint responded to health probe")

// Resolver discovers and caches the gateway's active base URL. Construct one
// per process and share it by reference; the cache is safe for concurrent use.
type Resolver struct {
	client    *http.Client
	ttl       time.Duration
	fallback  string
	cacheFile string

	mu         sync.RWMutex
	candidates []string
	active     string
	confirmed  time.Time
}

// diskCache is the best-effort on-disk form of the active endpoint. Losing it
// only costs one extra discovery round on the next start.
type diskCache struct {
	ActiveURL   string    `json:"active_url"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// NewResolver creates a resolver from the sensor API configuration.
func NewResolver(cfg *config.SensorAPIConfig) *Resolver {
	candidates := make([]string, 0, len(cfg.CandidateURLs))
	for _, u := range cfg.CandidateURLs {
		candidates = append(candidates, strings.TrimRight(u, "/"))
	}

	r := &Resolver{
		client:     &http.Client{Timeout: cfg.ProbeTimeout},
		ttl:        cfg.URLTTL,
		fallback:   strings.TrimRight(cfg.FallbackURL, "/"),
		cacheFile:  cfg.EndpointCache,
		candidates: candidates,
	}
	r.loadDiskCache()
	return r
}

// Resolve returns the gateway's active base URL. A cached endpoint within its
// TTL is returned without probing unless forceRefresh is set. Probe errors
// never surface individually; exhausting every candidate is the only failure.
func (r *Resolver) Resolve(ctx context.Context, forceRefresh bool) (string, error) {
	if !forceRefresh {
		r.mu.RLock()
		active, confirmed := r.active, r.confirmed
		r.mu.RUnlock()
		if active != "" && time.Since(confirmed) < r.ttl {
			return active, nil
		}
	}

	// Exclusive lock for the whole discovery round: a failed request in one
	// call must not race a re-resolution triggered by another.
	r.mu.Lock()
	defer r.mu.Unlock()

	// Another caller may have finished discovery while we waited.
	if !forceRefresh && r.active != "" && time.Since(r.confirmed) < r.ttl {
		return r.active, nil
	}

	discovered, err := r.discover(ctx)
	if err != nil {
		return "", err
	}

	r.publish(discovered)
	return discovered, nil
}

// discover probes candidates in preference order and follows the winning
// endpoint's self-reported tunnel URL when it differs and also answers.
func (r *Resolver) discover(ctx context.Context) (string, error) {
	for _, candidate := range r.orderedCandidates() {
		if !r.probe(ctx, candidate) {
			continue
		}

		reported := r.fetchReportedURL(ctx, candidate)
		if reported != "" && reported != candidate {
			// The tunnel is up but has rotated its public address; the
			// gateway's own report wins if it holds up to a probe.
			if r.probe(ctx, reported) {
				log.Printf("endpoint: gateway reports new tunnel URL %s, superseding %s", reported, candidate)
				return reported, nil
			}
			log.Printf("endpoint: reported URL %s does not answer, keeping %s", reported, candidate)
		}
		return candidate, nil
	}
	return "", ErrNoReachableEndpoint
}

// orderedCandidates lists candidates most-recently-confirmed-working first.
func (r *Resolver) orderedCandidates() []string {
	ordered := make([]string, 0, len(r.candidates)+1)
	if r.active != "" {
		ordered = append(ordered, r.active)
	}
	for _, c := range r.candidates {
		if c != r.active {
			ordered = append(ordered, c)
		}
	}
	return ordered
}

// probe issues a bounded health request; any 2xx means the candidate is live.
func (r *Resolver) probe(ctx context.Context, baseURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// fetchReportedURL asks a live endpoint which public URL the gateway believes
// it is reachable at. Both observed shapes are handled:
// {"cf_url": "..."} and {"data": {"cf_url": "..."}}.
func (r *Resolver) fetchReportedURL(ctx context.Context, baseURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/cf_url", nil)
	if err != nil {
		return ""
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var body struct {
		CFURL string `json:"cf_url"`
		Data  struct {
			CFURL string `json:"cf_url"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ""
	}
	if body.CFURL != "" {
		return strings.TrimRight(body.CFURL, "/")
	}
	return strings.TrimRight(body.Data.CFURL, "/")
}

// publish records a confirmed endpoint. Caller holds the write lock.
func (r *Resolver) publish(url string) {
	r.active = url
	r.confirmed = time.Now()
	r.saveDiskCache()
}

// Invalidate clears the cached endpoint so the next Resolve probes again.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.active = ""
	r.confirmed = time.Time{}
	r.mu.Unlock()
}

// Fallback returns the hardcoded last-resort URL, or an empty string when
// none is configured. It exists only to avoid total failure and is never
// marked as a confirmed endpoint.
func (r *Resolver) Fallback() string {
	return r.fallback
}

func (r *Resolver) loadDiskCache() {
	if r.cacheFile == "" {
		return
	}
	data, err := os.ReadFile(r.cacheFile)
	if err != nil {
		return
	}
	var cached diskCache
	if err := json.Unmarshal(data, &cached); err != nil || cached.ActiveURL == "" {
		return
	}
	r.active = strings.TrimRight(cached.ActiveURL, "/")
	r.confirmed = cached.ConfirmedAt
	log.Printf("endpoint: loaded cached endpoint %s (confirmed %s)", r.active, cached.ConfirmedAt.Format(time.RFC3339))
}

func (r *Resolver) saveDiskCache() {
	if r.cacheFile == "" {
		return
	}
	data, err := json.Marshal(diskCache{ActiveURL: r.active, ConfirmedAt: r.confirmed})
	if err != nil {
		return
	}
	if err := os.WriteFile(r.cacheFile, data, 0o644); err != nil {
		log.Printf("endpoint: could not persist endpoint cache: %v", err)
	}
}

// Status reports the resolver's current view for the service health endpoint.
func (r *Resolver) Status() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	status := map[string]any{
		"active_url":   r.active,
		"candidates":   len(r.candidates),
		"fallback_url": r.fallback,
	}
	if !r.confirmed.IsZero() {
		status["confirmed_at"] = r.confirmed.Format(time.RFC3339)
		status["cache_fresh"] = time.Since(r.confirmed) < r.ttl
	}
	return status
}

// String implements fmt.Stringer for log lines.
func (r *Resolver) String() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == "" {
		return "endpoint(unresolved)"
	}
	return fmt.Sprintf("endpoint(%s)", r.active)
}
