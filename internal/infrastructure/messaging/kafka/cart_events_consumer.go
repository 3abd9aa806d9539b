package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yuzvak/checkout-service/internal/domain/notification"
	"github.com/yuzvak/checkout-service/internal/infrastructure/monitoring"
	"github.com/yuzvak/checkout-service/internal/pkg/logger"
)

const readBackoff = time.Second

type NotificationSink interface {
	Push(event notification.CartReplaced) notification.Notification
}

// DeliveryFilter reports whether a message id was handled before, marking it
// as handled in the same call.
type DeliveryFilter interface {
	Seen(ctx context.Context, id string) (bool, error)
}

// CartEventsConsumer feeds cart-replaced events into the notification queue.
// Malformed messages are logged and skipped.
type CartEventsConsumer struct {
	reader messageReader
	sink   NotificationSink
	filter DeliveryFilter
	logger *logger.Logger
}

func NewCartEventsConsumer(client *Client, topic, groupID string, sink NotificationSink, log *logger.Logger) *CartEventsConsumer {
	return newCartEventsConsumer(client.NewReader(topic, groupID), sink, log)
}

func newCartEventsConsumer(reader messageReader, sink NotificationSink, log *logger.Logger) *CartEventsConsumer {
	return &CartEventsConsumer{
		reader: reader,
		sink:   sink,
		logger: log,
	}
}

// WithDeliveryFilter drops messages redelivered after a group rebalance.
func (c *CartEventsConsumer) WithDeliveryFilter(filter DeliveryFilter) *CartEventsConsumer {
	c.filter = filter
	return c
}

func (c *CartEventsConsumer) Run(ctx context.Context) {
	c.logger.Info("Cart events consumer started")
	for {
		if ctx.Err() != nil {
			c.logger.Info("Cart events consumer stopped")
			return
		}
		c.processMessage(ctx)
	}
}

func (c *CartEventsConsumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Error("Failed to close kafka reader", "error", err)
	}
}

func (c *CartEventsConsumer) processMessage(ctx context.Context) {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return
		}
		c.logger.Error("Failed to read cart event", "error", err)
		monitoring.RecordNotification("read_error")
		select {
		case <-ctx.Done():
		case <-time.After(readBackoff):
		}
		return
	}

	if c.redelivered(ctx, m.Topic, m.Partition, m.Offset) {
		c.logger.Debug("Skipping redelivered cart event", "offset", m.Offset, "partition", m.Partition)
		monitoring.RecordNotification("duplicate")
		return
	}

	var event notification.CartReplaced
	if err := json.Unmarshal(m.Value, &event); err != nil {
		c.logger.Warn("Skipping malformed cart event", "error", err, "offset", m.Offset, "partition", m.Partition)
		monitoring.RecordNotification("malformed")
		return
	}
	if err := event.Validate(); err != nil {
		c.logger.Warn("Skipping invalid cart event", "error", err, "offset", m.Offset)
		monitoring.RecordNotification("malformed")
		return
	}

	n := c.sink.Push(event)
	monitoring.RecordNotification("accepted")
	c.logger.Debug("Cart event queued", "notification_id", n.ID, "same_product", event.IsSameProduct)
}

// redelivered fails open: when the filter is unavailable the message is
// handled, and the shopper may see a toast twice.
func (c *CartEventsConsumer) redelivered(ctx context.Context, topic string, partition int, offset int64) bool {
	if c.filter == nil {
		return false
	}
	seen, err := c.filter.Seen(ctx, fmt.Sprintf("%s/%d/%d", topic, partition, offset))
	if err != nil {
		c.logger.Warn("Delivery filter unavailable", "error", err)
		return false
	}
	return seen
}
