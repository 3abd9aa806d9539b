package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/yuzvak/checkout-service/internal/domain/notification"
)

type CartEventsPublisher struct {
	writer messageWriter
}

func NewCartEventsPublisher(client *Client, topic string) *CartEventsPublisher {
	return &CartEventsPublisher{writer: client.NewWriter(topic)}
}

func (p *CartEventsPublisher) PublishCartReplaced(ctx context.Context, event notification.CartReplaced) error {
	if err := event.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal cart event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.CartKey),
		Value: data,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(notification.KindCartReplaced)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish cart event: %w", err)
	}
	return nil
}

func (p *CartEventsPublisher) Close() error {
	return p.writer.Close()
}
