// Package poller periodically pulls fresh data from the sensor gateway,
// persists snapshots, and feeds the alert pipeline.
package poller

import (
	"context"
	"log"
	"time"

	"sensorchat-backend/config"
	"sensorchat-backend/internal/alert"
	"sensorchat-backend/internal/model"
	"sensorchat-backend/internal/sensorapi"
	"sensorchat-backend/internal/store"
)

// gatewayClient is the slice of sensorapi.Client the poller needs.
type gatewayClient interface {
	Devices(ctx context.Context) ([]model.Device, error)
	Readings(ctx context.Context, q sensorapi.ReadingsQuery) (sensorapi.ReadingsResult, error)
}

// dispatcher decouples the poller from the alert worker pool for testing.
type dispatcher interface {
	Dispatch(event alert.Event)
}

// Service orchestrates the polling loop.
type Service struct {
	cfg       *config.Config
	client    gatewayClient
	store     store.Store
	evaluator *alert.Evaluator
	pool      dispatcher
}

// retention is how long reading snapshots are kept before pruning.
const retention = 7 * 24 * time.Hour

// NewService creates a poller around the given collaborators. pool may be
// nil when alerts are disabled.
func NewService(cfg *config.Config, client gatewayClient, st store.Store, pool dispatcher) *Service {
	return &Service{
		cfg:       cfg,
		client:    client,
		store:     st,
		evaluator: alert.NewEvaluator(&cfg.Alerts),
		pool:      pool,
	}
}

// Run starts the polling loop and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Poller.Enabled {
		log.Println("Poller is disabled. Not starting.")
		return
	}
	log.Println("Starting poller service...")

	s.PollOnce(ctx)

	timer := time.NewTimer(s.cfg.Poller.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Poller service shutting down.")
			return
		case <-timer.C:
			s.PollOnce(ctx)
			timer.Reset(s.cfg.Poller.Interval)
		}
	}
}

// PollOnce performs a single poll cycle. A cycle that cannot reach the
// gateway is aborted without touching persisted state, so the dashboard
// keeps serving the last known data.
func (s *Service) PollOnce(ctx context.Context) {
	log.Println("Executing poll cycle...")
	now := time.Now().UTC()

	devices, err := s.client.Devices(ctx)
	if err != nil {
		log.Printf("Poll cycle aborted: device listing failed: %v", err)
		return
	}
	if err := s.store.UpsertDevices(ctx, devices); err != nil {
		log.Printf("Error upserting devices: %v", err)
	}

	result, err := s.client.Readings(ctx, sensorapi.ReadingsQuery{Limit: s.cfg.Poller.ReadingLimit})
	if err != nil {
		log.Printf("Poll cycle aborted: reading fetch failed: %v", err)
		return
	}
	readings := result.Readings

	saved, err := s.store.SaveReadings(ctx, readings)
	if err != nil {
		log.Printf("Error saving reading snapshots: %v", err)
	} else if saved > 0 {
		log.Printf("Persisted %d reading snapshot(s)", saved)
	}

	if pruned, err := s.store.PruneSnapshots(ctx, now.Add(-retention)); err != nil {
		log.Printf("Error pruning snapshots: %v", err)
	} else if pruned > 0 {
		log.Printf("Pruned %d expired snapshot(s)", pruned)
	}

	if s.cfg.Alerts.Enabled && s.pool != nil {
		lastSeen, err := s.store.LastSeen(ctx)
		if err != nil {
			log.Printf("Error fetching last-seen times: %v", err)
			lastSeen = nil
		}
		events := s.evaluator.Evaluate(readings, lastSeen, now)
		if len(events) > 0 {
			log.Printf("Dispatching %d alert event(s)", len(events))
			for _, event := range events {
				s.pool.Dispatch(event)
			}
		}
	}

	log.Println("Poll cycle finished.")
}
