package service

import (
	"strings"

	"github.com/geogrid-ipam/geogrid/internal/model"
)

// RegisterWebhook creates an active webhook subscription.
func (s *ControlPlaneService) RegisterWebhook(userID, url string, events []string) (*model.Webhook, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, invalidArg("user_id: must not be empty")
	}
	w, err := s.Webhooks.Register(userID, url, events)
	if err != nil {
		return nil, mapDomainErr(err)
	}
	return w, nil
}

// DeleteWebhook removes an owned webhook.
func (s *ControlPlaneService) DeleteWebhook(webhookID, userID string) error {
	if err := s.Webhooks.Delete(webhookID, userID); err != nil {
		return mapDomainErr(err)
	}
	return nil
}

// ListWebhooks returns a user's webhooks.
func (s *ControlPlaneService) ListWebhooks(userID string) ([]model.Webhook, error) {
	out, err := s.Webhooks.List(userID)
	if err != nil {
		return nil, internal("list webhooks", err)
	}
	return out, nil
}

// ListWebhookDeliveries returns recent delivery attempts for an owned webhook.
func (s *ControlPlaneService) ListWebhookDeliveries(webhookID, userID string, limit int) ([]model.WebhookDelivery, error) {
	out, err := s.Webhooks.Deliveries(webhookID, userID, limit)
	if err != nil {
		return nil, mapDomainErr(err)
	}
	return out, nil
}
