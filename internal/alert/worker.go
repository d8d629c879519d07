package alert

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"sensorchat-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool manages a pool of workers for delivering alert notifications.
type WorkerPool struct {
	size    int
	jobs    chan Event
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Event, size),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Alert worker %d started", id)
	for {
		select {
		case event := <-wp.jobs:
			log.Printf("Alert worker %d delivering %s for %s", id, event.Rule, event.DeviceID)
			wp.notifySubscribers(ctx, event)
		case <-ctx.Done():
			log.Printf("Alert worker %d shutting down", id)
			return
		}
	}
}

// Dispatch sends an event to the worker pool.
func (wp *WorkerPool) Dispatch(event Event) {
	wp.jobs <- event
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Event {
	return wp.jobs
}

// notifySubscribers fetches the subscriptions attached to the event's device
// and pushes the alert to each of them.
func (wp *WorkerPool) notifySubscribers(ctx context.Context, event Event) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_device_mapping sdm ON sdm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("sdm.alert_device_device_id = ?", event.DeviceID).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("Error fetching subscriptions for device %s: %v", event.DeviceID, err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error marshaling alert payload: %v", err)
		return
	}

	log.Printf("Sending %d notifications for device %s", len(subscriptions), event.DeviceID)
	for _, sub := range subscriptions {
		wp.sendNotification(sub, payload)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Gone/NotFound means the subscription is dead; drop it.
	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		log.Printf("Subscription %s is no longer valid (status %d), removing", sub.Endpoint, resp.StatusCode)
		if err := wp.db.Delete(&model.PushSubscription{Endpoint: sub.Endpoint}).Error; err != nil {
			log.Printf("Error removing dead subscription: %v", err)
		}
	}
}
