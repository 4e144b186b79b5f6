// Package notify turns order events from Kafka into human-readable
// notifications for the store owner.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kiwari-pos/ordercore/internal/cache"
	"github.com/kiwari-pos/ordercore/internal/enum"
	"github.com/kiwari-pos/ordercore/internal/kafka"
	"github.com/kiwari-pos/ordercore/internal/outbox"
	"github.com/rs/zerolog/log"
	kafkago "github.com/segmentio/kafka-go"
)

// Notifier consumes order event envelopes. Delivery is fire-and-forget:
// dispatch failures are logged and the message is still committed.
type Notifier struct {
	dispatcher Dispatcher
	dedup      cache.Deduper
	storeName  string
	recipient  string
}

func NewNotifier(dispatcher Dispatcher, dedup cache.Deduper, storeName, recipient string) *Notifier {
	if dedup == nil {
		dedup = cache.NewMemoryDeduper(0)
	}
	return &Notifier{dispatcher: dispatcher, dedup: dedup, storeName: storeName, recipient: recipient}
}

// Handle is a kafka.Handler. It always returns nil so every message is
// committed, including ones it cannot decode.
func (n *Notifier) Handle(ctx context.Context, m kafkago.Message) error {
	var env kafka.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		log.Warn().Err(err).Int64("offset", m.Offset).Msg("notify: skipping undecodable message")
		return nil
	}

	text, err := n.render(env)
	if err != nil {
		log.Warn().Err(err).Str("event_id", env.EventID).Str("event_type", env.EventType).Msg("notify: skipping event")
		return nil
	}
	if text == "" {
		return nil
	}
	if !n.dedup.FirstSeen(ctx, env.EventID) {
		log.Debug().Str("event_id", env.EventID).Msg("notify: duplicate event")
		return nil
	}

	msg := Message{Recipient: n.recipient, Text: text, EventID: env.EventID, EventType: env.EventType}
	if err := n.dispatcher.Send(ctx, msg); err != nil {
		log.Error().Err(err).Str("event_id", env.EventID).Str("event_type", env.EventType).Msg("notify: dispatch failed")
	}
	return nil
}

// render returns "" for events that do not produce a notification.
func (n *Notifier) render(env kafka.Envelope) (string, error) {
	switch env.EventType {
	case enum.EventOrderCreated:
		p, err := kafka.UnwrapPayload[outbox.OrderCreated](env.Payload)
		if err != nil {
			return "", err
		}
		return FormatSale(n.storeName, p), nil
	case enum.EventOrderPaymentUpdated:
		p, err := kafka.UnwrapPayload[outbox.PaymentUpdated](env.Payload)
		if err != nil {
			return "", err
		}
		return FormatPayment(n.storeName, p), nil
	case enum.EventOrderStatusChanged:
		p, err := kafka.UnwrapPayload[outbox.StatusChanged](env.Payload)
		if err != nil {
			return "", err
		}
		if p.To != enum.OrderStatusReady {
			return "", nil
		}
		return FormatReady(n.storeName, p), nil
	default:
		return "", fmt.Errorf("unknown event type %q", env.EventType)
	}
}
