// Package events publishes domain events to kafka for downstream consumers and to the admin websocket feed.
package events

//go:generate go run go.uber.org/mock/mockgen -source=./events.go -destination=./mocks/events_mock.go -package=mocks

import (
	"context"
	"encoding/json"
	"time"

	"roomkey/config"
	"roomkey/infras/kafka"
	"roomkey/infras/otel"
	"roomkey/infras/websocket"
	"roomkey/shared/constant"

	"github.com/rs/zerolog/log"
)

const (
	TypeBookingCreated         = "booking.created"
	TypeBookingCancelled       = "booking.cancelled"
	TypeCredentialProvisioned  = "credential.provisioned"
	TypeCredentialDegraded     = "credential.degraded"
	TypeCredentialRevoked      = "credential.revoked"
	TypeCredentialExpired      = "credential.expired"
	TypeLockUnhealthy          = "lock.unhealthy"
	TypeReconciliationComplete = "reconciliation.completed"

	publishTimeout = 2 * time.Second
)

type Event struct {
	Type       string         `json:"type"`
	BookingID  string         `json:"booking_id,omitempty"`
	RoomID     string         `json:"room_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Key keeps every event of one booking on one partition.
func (e Event) Key() string {
	if e.BookingID != "" {
		return e.BookingID
	}

	if e.RoomID != "" {
		return e.RoomID
	}

	return e.Type
}

// Publisher is best effort: failures are logged, never returned to the caller's workflow.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

type publisher struct {
	producer kafka.Producer
	hub      *websocket.Hub
	otel     otel.Otel
}

// New accepts a nil producer when kafka is disabled.
func New(producer kafka.Producer, hub *websocket.Hub, otl otel.Otel) Publisher {
	return &publisher{producer: producer, hub: hub, otel: otl}
}

func NewProducer(cfg *config.Config) kafka.Producer {
	if !cfg.Kafka.Enable || len(cfg.Kafka.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, events are only streamed to websocket clients")

		return nil
	}

	return kafka.New(cfg)
}

func (p *publisher) Publish(ctx context.Context, event Event) {
	ctx, scope := p.otel.NewScope(ctx, constant.OtelEventScopeName, constant.OtelEventScopeName+".Publish")
	defer scope.End()

	scope.SetAttribute("event.type", event.Type)

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	if p.hub != nil {
		body, err := json.Marshal(event)
		if err != nil {
			log.Error().Err(err).Str("type", event.Type).Msg("failed to encode event")
		} else {
			p.hub.Broadcast(body)
		}
	}

	if p.producer == nil {
		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := p.producer.SendMessages(sendCtx, kafka.Message{Key: event.Key(), Value: event}); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Str("type", event.Type).Str("booking_id", event.BookingID).Msg("failed to publish event")
	}
}
