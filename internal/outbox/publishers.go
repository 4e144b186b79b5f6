package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/kiwari-pos/ordercore/internal/kafka"
	"github.com/kiwari-pos/ordercore/internal/ws"
	kafkago "github.com/segmentio/kafka-go"
)

const eventVersion = 1

// Broadcaster pushes events to connected screens. Satisfied by *ws.Hub.
type Broadcaster interface {
	BroadcastToOutlet(ctx context.Context, outletID uuid.UUID, event ws.Event) error
}

// HubPublisher pushes events to the outlet's websocket room.
type HubPublisher struct {
	hub Broadcaster
}

func NewHubPublisher(hub Broadcaster) *HubPublisher {
	return &HubPublisher{hub: hub}
}

func (p *HubPublisher) Publish(ctx context.Context, ev Event) error {
	return p.hub.BroadcastToOutlet(ctx, ev.OutletID, ws.Event{
		ID:         ev.ID,
		Type:       ev.Type,
		OrderID:    ev.AggregateID,
		Payload:    ev.Payload,
		OccurredAt: ev.CreatedAt,
	})
}

// KafkaProducer is satisfied by *kafka.Producer.
type KafkaProducer interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafkago.Header) error
}

// KafkaPublisher wraps events in an Envelope keyed by order id, so all
// events of one order land on the same partition in order.
type KafkaPublisher struct {
	producer KafkaProducer
	source   string
}

func NewKafkaPublisher(producer KafkaProducer, source string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, source: source}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	env := kafka.Envelope{
		EventID:       ev.ID.String(),
		EventType:     ev.Type,
		EventVersion:  eventVersion,
		OccurredAt:    ev.CreatedAt,
		Producer:      p.source,
		OutletID:      ev.OutletID.String(),
		CorrelationID: ev.AggregateID.String(),
		Payload:       ev.Payload,
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := p.producer.Publish(ctx, []byte(ev.AggregateID.String()), value,
		kafkago.Header{Key: "event_type", Value: []byte(ev.Type)}); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}
