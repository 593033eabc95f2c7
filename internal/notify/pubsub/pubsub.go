// Package pubsub publishes price notifications to a Google Cloud Pub/Sub topic
// so downstream consumers can fan them out further.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"

	"github.com/JakeFAU/pricewatch/internal/notify"
)

// Message is the JSON body published for each change.
type Message struct {
	Subject      string    `json:"subject"`
	URL          string    `json:"url"`
	Title        string    `json:"title,omitempty"`
	OldPrice     float64   `json:"old_price"`
	NewPrice     float64   `json:"new_price"`
	OldCheckedAt time.Time `json:"old_checked_at"`
	CheckedAt    time.Time `json:"checked_at"`
	Recipients   []string  `json:"recipients,omitempty"`
}

type result interface {
	Get(ctx context.Context) (string, error)
}

type publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) result
}

type topicPublisher struct {
	topic *pubsub.Topic
}

func (p topicPublisher) Publish(ctx context.Context, msg *pubsub.Message) result {
	return p.topic.Publish(ctx, msg)
}

// Channel implements notify.Channel on top of a topic.
type Channel struct {
	publisher publisher
	stop      func()
}

// New wraps an existing topic.
func New(topic *pubsub.Topic) *Channel {
	return &Channel{publisher: topicPublisher{topic: topic}, stop: topic.Stop}
}

// Dial opens a client for projectID and returns a channel publishing to topicID.
func Dial(ctx context.Context, projectID, topicID string) (*Channel, func() error, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("create pubsub client: %w", err)
	}
	ch := New(client.Topic(topicID))
	closeFn := func() error {
		ch.stop()
		return client.Close()
	}
	return ch, closeFn, nil
}

// Deliver publishes payload and waits for the server ack.
func (c *Channel) Deliver(ctx context.Context, payload notify.Payload, recipients []string) error {
	ev := payload.Event
	data, err := json.Marshal(Message{
		Subject:      payload.Subject,
		URL:          ev.URL,
		Title:        ev.Title,
		OldPrice:     ev.OldPrice,
		NewPrice:     ev.NewPrice,
		OldCheckedAt: ev.OldCheckedAt,
		CheckedAt:    ev.NewCheckedAt,
		Recipients:   recipients,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{Data: data, Attributes: map[string]string{"url": ev.URL}}
	otel.GetTextMapPropagator().Inject(ctx, attributeCarrier(msg.Attributes))

	if _, err := c.publisher.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// attributeCarrier exposes message attributes as a propagation.TextMapCarrier.
type attributeCarrier map[string]string

func (c attributeCarrier) Get(key string) string { return c[key] }

func (c attributeCarrier) Set(key, value string) { c[key] = value }

func (c attributeCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
