// Package registry maps outbox rows to their Pub/Sub topic and typed payload.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
)

// EventDescriptor is the routing information for one event type.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
}

// ResolvedEvent is a decoded outbox row ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row that will never publish and should be parked.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

// NewNonRetryableError wraps err so the publisher parks the row.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

type entry struct {
	desc   EventDescriptor
	decode func(data json.RawMessage, aggregateID uuid.UUID) (any, error)
}

// EventRegistry resolves outbox rows for every event type the ledger emits.
type EventRegistry struct {
	entries map[enums.OutboxEventType]entry
}

// NewEventRegistry routes notification requests and order transitions to their topics.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.NotificationTopic == "" {
		return nil, errors.New("notification topic is required")
	}
	if cfg.OrderEventsTopic == "" {
		return nil, errors.New("order events topic is required")
	}
	r := &EventRegistry{entries: make(map[enums.OutboxEventType]entry)}
	register(r, enums.EventNotificationRequested, cfg.NotificationTopic,
		func(p *payloads.NotificationRequestedEvent, id uuid.UUID) error {
			if p.NotificationID != id {
				return fmt.Errorf("notification_id %s does not match aggregate %s", p.NotificationID, id)
			}
			if p.UserID == uuid.Nil {
				return errors.New("notification has no user_id")
			}
			return nil
		})
	register(r, enums.EventOrderStatusChanged, cfg.OrderEventsTopic,
		func(p *payloads.OrderStatusChangedEvent, id uuid.UUID) error {
			if p.OrderID != id {
				return fmt.Errorf("order_id %s does not match aggregate %s", p.OrderID, id)
			}
			if !p.Status.IsValid() || !p.PaymentStatus.IsValid() {
				return fmt.Errorf("unknown status pair %q/%q", p.Status, p.PaymentStatus)
			}
			return nil
		})
	return r, nil
}

func register[T any](r *EventRegistry, eventType enums.OutboxEventType, topic string, check func(*T, uuid.UUID) error) {
	aggregate, _ := eventType.Aggregate()
	r.entries[eventType] = entry{
		desc: EventDescriptor{EventType: eventType, AggregateType: aggregate, Topic: topic},
		decode: func(data json.RawMessage, aggregateID uuid.UUID) (any, error) {
			payload := new(T)
			if err := json.Unmarshal(data, payload); err != nil {
				return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
			}
			if err := check(payload, aggregateID); err != nil {
				return nil, fmt.Errorf("invalid %s payload: %w", eventType, err)
			}
			return payload, nil
		},
	}
}

// Topics lists every topic the registry routes to.
func (r *EventRegistry) Topics() []string {
	seen := make(map[string]struct{}, len(r.entries))
	topics := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		if _, ok := seen[e.desc.Topic]; ok {
			continue
		}
		seen[e.desc.Topic] = struct{}{}
		topics = append(topics, e.desc.Topic)
	}
	sort.Strings(topics)
	return topics
}

// Resolve checks the row against its descriptor and decodes the payload.
// Every failure is non-retryable: the row is malformed, not the broker.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	e, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if e.desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", e.desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(errors.New("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}
	if envelope.Version < 1 || envelope.Version > outbox.CurrentEnvelopeVersion {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported envelope version %d", envelope.Version))
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	payload, err := e.decode(data, event.AggregateID)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	return &ResolvedEvent{Descriptor: e.desc, Envelope: envelope, Payload: payload}, nil
}
