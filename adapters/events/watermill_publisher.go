package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/layer-3/tokenstore/core"
	"github.com/layer-3/tokenstore/ports"
)

// DefaultTopic carries every token lifecycle event
const DefaultTopic = "tokenstore.tokens"

// Event types, also set as the "event_type" message metadata
const (
	EventTokenIssued  = "token.issued"
	EventTokenRevoked = "token.revoked"
)

// TokenEvent is the JSON payload of a lifecycle message. The token value is never published.
type TokenEvent struct {
	Type       string    `json:"type"`
	TokenID    string    `json:"token_id"`
	Owner      string    `json:"owner"`
	OccurredAt time.Time `json:"occurred_at"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher, topic string) ports.EventPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &WatermillPublisher{
		publisher: publisher,
		topic:     topic,
	}
}

// PublishIssued publishes a token.issued event
func (p *WatermillPublisher) PublishIssued(ctx context.Context, token core.Token) error {
	return p.publish(ctx, EventTokenIssued, token)
}

// PublishRevoked publishes a token.revoked event
func (p *WatermillPublisher) PublishRevoked(ctx context.Context, token core.Token) error {
	return p.publish(ctx, EventTokenRevoked, token)
}

func (p *WatermillPublisher) publish(ctx context.Context, eventType string, token core.Token) error {
	event := TokenEvent{
		Type:       eventType,
		TokenID:    token.ID,
		Owner:      token.OwnerID,
		OccurredAt: time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("event_type", eventType)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// NopPublisher drops every event
type NopPublisher struct{}

// PublishIssued does nothing
func (NopPublisher) PublishIssued(context.Context, core.Token) error { return nil }

// PublishRevoked does nothing
func (NopPublisher) PublishRevoked(context.Context, core.Token) error { return nil }

var _ ports.EventPublisher = NopPublisher{}
