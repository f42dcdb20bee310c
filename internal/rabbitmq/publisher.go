package rabbitmq

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

// PublishMessage публикует сообщение в RabbitMQ.
func PublishMessage(ch *amqp.Channel, exchange string, routingkey string, message any) error {
	const op = "rabbitmq.PublishMessage"
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = ch.Publish(
		exchange,
		routingkey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// EntitlementPublisher публикует события entitlement.* в обменник billing.
// Конверт собирается с новым eventId, correlationId переносится из
// обрабатываемого события.
type EntitlementPublisher struct {
	ch *amqp.Channel
}

// NewEntitlementPublisher создает публикатор событий изменения прав.
func NewEntitlementPublisher(ch *amqp.Channel) *EntitlementPublisher {
	return &EntitlementPublisher{ch: ch}
}

// PublishCreated публикует событие entitlement.created.
func (p *EntitlementPublisher) PublishCreated(payload models.EntitlementEventPayload, meta models.EventMeta) error {
	return p.publish(models.EventEntitlementCreated, payload, meta)
}

// PublishUpdated публикует событие entitlement.updated.
func (p *EntitlementPublisher) PublishUpdated(payload models.EntitlementEventPayload, meta models.EventMeta) error {
	return p.publish(models.EventEntitlementUpdated, payload, meta)
}

// PublishRevoked публикует событие entitlement.revoked.
func (p *EntitlementPublisher) PublishRevoked(payload models.EntitlementEventPayload, meta models.EventMeta) error {
	return p.publish(models.EventEntitlementRevoked, payload, meta)
}

func (p *EntitlementPublisher) publish(eventType string, payload models.EntitlementEventPayload, meta models.EventMeta) error {
	const op = "rabbitmq.EntitlementPublisher.publish"
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	envelope := models.EventEnvelope{
		Type:    eventType,
		Payload: body,
		Meta: models.EventMeta{
			EventID:       uuid.New().String(),
			OccurredAt:    time.Now().UTC(),
			Source:        "internal",
			CorrelationID: meta.CorrelationID,
		},
		Version: 1,
	}
	if err := PublishMessage(p.ch, BillingExchange, EntitlementRoutingKey, envelope); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
