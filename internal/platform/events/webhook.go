package events

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// WebhookPublisher POSTs each event as JSON to a fixed URL.
type WebhookPublisher struct {
	client *resty.Client
	url    string
}

func NewWebhookPublisher(url string) *WebhookPublisher {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &WebhookPublisher{client: client, url: url}
}

func (p *WebhookPublisher) Publish(ctx context.Context, evt Event) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("X-Event-Type", evt.Type).
		SetHeader("X-Event-ID", evt.ID).
		SetBody(evt).
		Post(p.url)
	if err != nil {
		return fmt.Errorf("webhook post %s: %w", evt.Type, err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook post %s: status %d", evt.Type, resp.StatusCode())
	}
	return nil
}

func (p *WebhookPublisher) Close() error { return nil }
