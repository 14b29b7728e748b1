// Vendwatch - Real-Time Vending Machine Sales Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vendwatch

// Package bus provides the in-process event bus connecting the ingest path
// to the WebSocket hub and the inventory tracker. It runs on Watermill's
// GoChannel Pub/Sub, so swapping in a broker later only changes the
// constructor.
package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/vendwatch/internal/logging"
	"github.com/tomtom215/vendwatch/internal/metrics"
	"github.com/tomtom215/vendwatch/internal/models"
)

// Topics carried on the bus.
const (
	TopicSaleRecorded = "sales.recorded"
	TopicStockAlert   = "inventory.alert"
)

// Bus wraps a GoChannel Pub/Sub with typed publish and subscribe helpers.
type Bus struct {
	pubsub *gochannel.GoChannel

	mu     sync.Mutex
	closed bool
}

// New creates a bus with a small per-subscriber buffer so a slow consumer
// does not stall the ingest path.
func New() *Bus {
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer: 64,
		},
		newLoggerAdapter(),
	)
	return &Bus{pubsub: pubsub}
}

func (b *Bus) publish(topic string, payload interface{}) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("bus is closed")
	}
	b.mu.Unlock()

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}

	msg := message.NewMessage(uuid.NewString(), data)
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	metrics.RecordBusPublish(topic)
	return nil
}

// PublishSale announces a recorded purchase event.
func (b *Bus) PublishSale(event models.PurchaseEvent) error {
	return b.publish(TopicSaleRecorded, event)
}

// PublishAlert announces a stock alert.
func (b *Bus) PublishAlert(alert models.StockAlert) error {
	return b.publish(TopicStockAlert, alert)
}

// SubscribeSales delivers recorded sales until ctx is canceled. Messages
// that fail to decode are acked and dropped with a log line.
func (b *Bus) SubscribeSales(ctx context.Context) (<-chan models.PurchaseEvent, error) {
	msgs, err := b.pubsub.Subscribe(ctx, TopicSaleRecorded)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", TopicSaleRecorded, err)
	}

	out := make(chan models.PurchaseEvent, 16)
	go decodeLoop(ctx, msgs, out)
	return out, nil
}

// SubscribeAlerts delivers stock alerts until ctx is canceled.
func (b *Bus) SubscribeAlerts(ctx context.Context) (<-chan models.StockAlert, error) {
	msgs, err := b.pubsub.Subscribe(ctx, TopicStockAlert)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", TopicStockAlert, err)
	}

	out := make(chan models.StockAlert, 16)
	go decodeLoop(ctx, msgs, out)
	return out, nil
}

func decodeLoop[T any](ctx context.Context, msgs <-chan *message.Message, out chan<- T) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}

			var v T
			if err := json.Unmarshal(msg.Payload, &v); err != nil {
				logging.Warn().Err(err).Str("message_id", msg.UUID).Msg("bus payload decode failed")
				msg.Ack()
				continue
			}
			msg.Ack()

			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.pubsub.Close()
}

// loggerAdapter bridges Watermill's logging interface onto the process
// logger.
type loggerAdapter struct {
	fields watermill.LogFields
}

func newLoggerAdapter() watermill.LoggerAdapter {
	return &loggerAdapter{}
}

func addFields(e *zerolog.Event, sets ...watermill.LogFields) {
	for _, fields := range sets {
		for k, v := range fields {
			e.Interface(k, v)
		}
	}
}

func (l *loggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	e := logging.Error().Err(err)
	addFields(e, l.fields, fields)
	e.Msg(msg)
}

func (l *loggerAdapter) Info(msg string, fields watermill.LogFields) {
	e := logging.Debug()
	addFields(e, l.fields, fields)
	e.Msg(msg)
}

func (l *loggerAdapter) Debug(msg string, fields watermill.LogFields) {
	e := logging.Debug()
	addFields(e, l.fields, fields)
	e.Msg(msg)
}

func (l *loggerAdapter) Trace(msg string, fields watermill.LogFields) {
	e := logging.Debug()
	addFields(e, l.fields, fields)
	e.Msg(msg)
}

func (l *loggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	merged := make(watermill.LogFields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &loggerAdapter{fields: merged}
}
