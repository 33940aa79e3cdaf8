// Package webhook delivers lifecycle events to user-registered HTTP
// endpoints. Delivery is fire-and-forget relative to the triggering
// operation: failures are recorded, never propagated.
package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/geogrid-ipam/geogrid/internal/model"
	"github.com/geogrid-ipam/geogrid/internal/state"
)

// ErrWebhookNotFound is returned when a lookup or delete targets a webhook
// that does not exist or is not owned by the caller.
var ErrWebhookNotFound = errors.New("webhook not found")

// Dispatcher fans events out to subscribed webhooks with bounded concurrency.
type Dispatcher struct {
	repo             *state.Repo
	client           *http.Client
	failureThreshold int
	sem              chan struct{}
	wg               sync.WaitGroup

	nowFn func() time.Time

	// test hook: called after each delivery attempt completes.
	deliveredHook func(webhookID string, statusCode int)
}

// Config tunes the dispatcher.
type Config struct {
	Timeout          time.Duration
	FailureThreshold int
	MaxConcurrent    int
}

func NewDispatcher(repo *state.Repo, cfg Config) *Dispatcher {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	return &Dispatcher{
		repo:             repo,
		client:           &http.Client{Timeout: cfg.Timeout},
		failureThreshold: cfg.FailureThreshold,
		sem:              make(chan struct{}, cfg.MaxConcurrent),
		nowFn:            time.Now,
	}
}

// Register creates an active webhook for the given event types.
func (d *Dispatcher) Register(userID, rawURL string, events []string) (*model.Webhook, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, model.Invalid("url", "must be an absolute http(s) URL")
	}
	if len(events) == 0 {
		return nil, model.Invalid("events", "must subscribe to at least one event type")
	}
	eventsJSON, err := json.Marshal(events)
	if err != nil {
		return nil, fmt.Errorf("marshal events: %w", err)
	}

	now := d.nowFn().UnixNano()
	w := model.Webhook{
		ID:          uuid.NewString(),
		UserID:      userID,
		URL:         rawURL,
		EventsJSON:  string(eventsJSON),
		IsActive:    true,
		CreatedAtNs: now,
		UpdatedAtNs: now,
	}
	if err := d.repo.CreateWebhook(w); err != nil {
		return nil, fmt.Errorf("create webhook: %w", err)
	}
	return &w, nil
}

// Delete removes an owned webhook.
func (d *Dispatcher) Delete(webhookID, userID string) error {
	err := d.repo.DeleteWebhook(webhookID, userID)
	if errors.Is(err, state.ErrNotFound) {
		return ErrWebhookNotFound
	}
	return err
}

// List returns a user's webhooks.
func (d *Dispatcher) List(userID string) ([]model.Webhook, error) {
	return d.repo.ListWebhooks(userID, false)
}

// Deliveries returns recent delivery attempts for an owned webhook.
func (d *Dispatcher) Deliveries(webhookID, userID string, limit int) ([]model.WebhookDelivery, error) {
	w, err := d.repo.GetWebhook(webhookID)
	if errors.Is(err, state.ErrNotFound) {
		return nil, ErrWebhookNotFound
	}
	if err != nil {
		return nil, err
	}
	if w.UserID != userID {
		return nil, ErrWebhookNotFound
	}
	if limit <= 0 {
		limit = 50
	}
	return d.repo.ListDeliveries(webhookID, limit)
}

// Publish dispatches an event to every active webhook subscribed to its
// type. It returns immediately; deliveries run in the background bounded by
// the configured concurrency.
func (d *Dispatcher) Publish(eventType string, payload any) {
	hooks, err := d.repo.ListWebhooks("", true)
	if err != nil {
		log.Printf("[webhook] list for dispatch failed: %v", err)
		return
	}

	body, err := json.Marshal(map[string]any{
		"event":     eventType,
		"timestamp": d.nowFn().UnixNano(),
		"data":      payload,
	})
	if err != nil {
		log.Printf("[webhook] marshal event %s failed: %v", eventType, err)
		return
	}

	for _, w := range hooks {
		if !subscribed(w.EventsJSON, eventType) {
			continue
		}
		d.wg.Add(1)
		go func(w model.Webhook) {
			defer d.wg.Done()
			d.sem <- struct{}{}
			defer func() { <-d.sem }()
			d.deliver(w, eventType, body)
		}(w)
	}
}

// Drain waits for all in-flight deliveries to finish.
func (d *Dispatcher) Drain() {
	d.wg.Wait()
}

func subscribed(eventsJSON, eventType string) bool {
	var events []string
	if err := json.Unmarshal([]byte(eventsJSON), &events); err != nil {
		return false
	}
	for _, e := range events {
		if e == eventType || e == "*" {
			return true
		}
	}
	return false
}

func (d *Dispatcher) deliver(w model.Webhook, eventType string, body []byte) {
	statusCode := 0
	deliveryErr := ""

	resp, err := d.client.Post(w.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		deliveryErr = err.Error()
	} else {
		statusCode = resp.StatusCode
		resp.Body.Close()
		if statusCode < 200 || statusCode > 299 {
			deliveryErr = fmt.Sprintf("non-2xx response: %d", statusCode)
		}
	}

	nowNs := d.nowFn().UnixNano()
	if err := d.repo.RecordDelivery(model.WebhookDelivery{
		ID:            uuid.NewString(),
		WebhookID:     w.ID,
		EventType:     eventType,
		StatusCode:    statusCode,
		DeliveredAtNs: nowNs,
	}); err != nil {
		log.Printf("[webhook] record delivery for %s failed: %v", w.ID, err)
	}

	if deliveryErr == "" {
		if err := d.repo.MarkDeliverySuccess(w.ID, nowNs); err != nil {
			log.Printf("[webhook] mark success for %s failed: %v", w.ID, err)
		}
	} else {
		stillActive, err := d.repo.MarkDeliveryFailure(w.ID, deliveryErr, d.failureThreshold, nowNs)
		if err != nil {
			log.Printf("[webhook] mark failure for %s failed: %v", w.ID, err)
		} else if !stillActive {
			log.Printf("[webhook] %s disabled after %d consecutive failures", w.ID, d.failureThreshold)
		}
	}

	if d.deliveredHook != nil {
		d.deliveredHook(w.ID, statusCode)
	}
}
