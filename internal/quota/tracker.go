// Package quota enforces the per-model daily request and token budgets of
// the free Groq tier.
package quota

import (
	"context"
	"fmt"
	"time"

	"sensorchat-backend/config"
	"sensorchat-backend/internal/model"
)

// UsageStore is the persistence dependency. store.Store satisfies it.
type UsageStore interface {
	TrackUsage(ctx context.Context, llmModel, day string, tokens int) (model.UsageCounter, error)
	UsageForDay(ctx context.Context, day string) ([]model.UsageCounter, error)
}

// Tracker checks and records usage against configured daily limits.
type Tracker struct {
	store  UsageStore
	limits map[string]config.ModelLimit
	now    func() time.Time
}

// ModelUsage is one model's position against its daily budget.
type ModelUsage struct {
	Model             string  `json:"model"`
	RequestsUsed      int     `json:"requests_used"`
	RequestsLimit     int     `json:"requests_limit"`
	RequestsRemaining int     `json:"requests_remaining"`
	TokensUsed        int     `json:"tokens_used"`
	TokensLimit       int     `json:"tokens_limit"`
	TokensRemaining   int     `json:"tokens_remaining"`
	RequestsPercent   float64 `json:"requests_percent"`
	CanMakeRequest    bool    `json:"can_make_request"`
}

// NewTracker creates a tracker over the given store and limits.
func NewTracker(store UsageStore, limits map[string]config.ModelLimit) *Tracker {
	return &Tracker{store: store, limits: limits, now: time.Now}
}

func (t *Tracker) day() string {
	return t.now().UTC().Format("2006-01-02")
}

func (t *Tracker) limitFor(llmModel string) config.ModelLimit {
	if l, ok := t.limits[llmModel]; ok {
		return l
	}
	// Unknown models get a conservative budget rather than a free pass.
	return config.ModelLimit{Requests: 1000, Tokens: 100000}
}

// CanRequest reports whether one more request fits today's budget. The
// string explains a refusal for the UI.
func (t *Tracker) CanRequest(ctx context.Context, llmModel string) (bool, string, error) {
	usage, err := t.usageFor(ctx, llmModel)
	if err != nil {
		return false, "", err
	}
	if !usage.CanMakeRequest {
		return false, fmt.Sprintf("daily limit reached for %s (%d/%d requests)",
			llmModel, usage.RequestsUsed, usage.RequestsLimit), nil
	}
	return true, "", nil
}

// Track records one completed request and its token cost.
func (t *Tracker) Track(ctx context.Context, llmModel string, tokens int) error {
	_, err := t.store.TrackUsage(ctx, llmModel, t.day(), tokens)
	return err
}

// Summary returns today's usage for every configured model, including models
// that have not been used yet.
func (t *Tracker) Summary(ctx context.Context) ([]ModelUsage, error) {
	counters, err := t.store.UsageForDay(ctx, t.day())
	if err != nil {
		return nil, err
	}

	used := make(map[string]model.UsageCounter, len(counters))
	for _, c := range counters {
		used[c.Model] = c
	}

	var summary []ModelUsage
	for name := range t.limits {
		summary = append(summary, t.build(name, used[name]))
	}
	for name, c := range used {
		if _, configured := t.limits[name]; !configured {
			summary = append(summary, t.build(name, c))
		}
	}
	return summary, nil
}

func (t *Tracker) usageFor(ctx context.Context, llmModel string) (ModelUsage, error) {
	counters, err := t.store.UsageForDay(ctx, t.day())
	if err != nil {
		return ModelUsage{}, err
	}
	for _, c := range counters {
		if c.Model == llmModel {
			return t.build(llmModel, c), nil
		}
	}
	return t.build(llmModel, model.UsageCounter{Model: llmModel}), nil
}

func (t *Tracker) build(llmModel string, c model.UsageCounter) ModelUsage {
	limit := t.limitFor(llmModel)
	usage := ModelUsage{
		Model:             llmModel,
		RequestsUsed:      c.Requests,
		RequestsLimit:     limit.Requests,
		RequestsRemaining: limit.Requests - c.Requests,
		TokensUsed:        c.Tokens,
		TokensLimit:       limit.Tokens,
		TokensRemaining:   limit.Tokens - c.Tokens,
		CanMakeRequest:    c.Requests < limit.Requests && c.Tokens < limit.Tokens,
	}
	if limit.Requests > 0 {
		usage.RequestsPercent = float64(c.Requests) / float64(limit.Requests) * 100
	}
	if usage.RequestsRemaining < 0 {
		usage.RequestsRemaining = 0
	}
	if usage.TokensRemaining < 0 {
		usage.TokensRemaining = 0
	}
	return usage
}
