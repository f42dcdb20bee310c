package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Типы событий биллингового жизненного цикла (consumed).
const (
	EventSubscriptionCreated  = "subscription.created"
	EventSubscriptionUpdated  = "subscription.updated"
	EventSubscriptionCanceled = "subscription.canceled"
	EventSubscriptionPaused   = "subscription.paused"
	EventSubscriptionResumed  = "subscription.resumed"
	EventSubscriptionExpired  = "subscription.expired"

	EventPaymentSuccessful     = "payment.successful"
	EventPaymentFailed         = "payment.failed"
	EventPaymentActionRequired = "payment.action_required"
)

// Типы событий изменения прав (produced).
const (
	EventEntitlementCreated = "entitlement.created"
	EventEntitlementUpdated = "entitlement.updated"
	EventEntitlementRevoked = "entitlement.revoked"
)

// EventMeta метаданные конверта события для трассировки и маршрутизации.
type EventMeta struct {
	EventID       string    `json:"eventId"`
	OccurredAt    time.Time `json:"occurredAt"`
	Source        string    `json:"source"`
	CorrelationID string    `json:"correlationId,omitempty"`
}

// EventEnvelope конверт доменного события на проводе.
type EventEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Meta    EventMeta       `json:"meta"`
	Version int             `json:"version"`
}

// SubscriptionPayload полезная нагрузка событий subscription.*.
type SubscriptionPayload struct {
	SubscriptionID     string    `json:"subscriptionId"`
	UserID             string    `json:"userId"`
	ProductID          string    `json:"productId"`
	PriceID            string    `json:"priceId"`
	Status             string    `json:"status"`
	CurrentPeriodStart time.Time `json:"currentPeriodStart"`
	CurrentPeriodEnd   time.Time `json:"currentPeriodEnd"`
	CancelAtPeriodEnd  bool      `json:"cancelAtPeriodEnd,omitempty"`
	PreviousProductID  string    `json:"previousProductId,omitempty"`
	AddonProductIDs    []string  `json:"addonProductIds,omitempty"`
}

// PaymentPayload полезная нагрузка событий payment.*.
type PaymentPayload struct {
	PaymentIntentID string     `json:"paymentIntentId"`
	UserID          string     `json:"userId"`
	Amount          int64      `json:"amount"`
	Currency        string     `json:"currency"`
	PriceID         string     `json:"priceId"`
	ProductID       string     `json:"productId,omitempty"`
	SubscriptionID  string     `json:"subscriptionId,omitempty"`
	Provider        string     `json:"provider"`
	FailureCode     string     `json:"failureCode,omitempty"`
	FailureReason   string     `json:"failureReason,omitempty"`
	PortalURL       string     `json:"portalUrl,omitempty"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
}

// BillingEvent — закрытое множество разобранных событий биллинга.
// Диспетчеризация в обработчиках делается type switch-ом по вариантам,
// а не строковым сравнением типов.
type BillingEvent interface {
	EventMeta() EventMeta
	billingEvent()
}

// SubscriptionCreated подписка оформлена.
type SubscriptionCreated struct {
	Meta    EventMeta
	Payload SubscriptionPayload
}

// SubscriptionUpdated подписка изменена (продление, смена продукта, статус).
type SubscriptionUpdated struct {
	Meta    EventMeta
	Payload SubscriptionPayload
}

// SubscriptionCanceled подписка отменена (немедленно или в конце периода).
type SubscriptionCanceled struct {
	Meta    EventMeta
	Payload SubscriptionPayload
}

// SubscriptionPaused подписка приостановлена.
type SubscriptionPaused struct {
	Meta    EventMeta
	Payload SubscriptionPayload
}

// SubscriptionResumed подписка возобновлена.
type SubscriptionResumed struct {
	Meta    EventMeta
	Payload SubscriptionPayload
}

// SubscriptionExpired подписка истекла.
type SubscriptionExpired struct {
	Meta    EventMeta
	Payload SubscriptionPayload
}

// PaymentSuccessful платёж прошёл.
type PaymentSuccessful struct {
	Meta    EventMeta
	Payload PaymentPayload
}

// PaymentFailed платёж не прошёл.
type PaymentFailed struct {
	Meta    EventMeta
	Payload PaymentPayload
}

// PaymentActionRequired платёж требует действия пользователя.
type PaymentActionRequired struct {
	Meta    EventMeta
	Payload PaymentPayload
}

func (e SubscriptionCreated) EventMeta() EventMeta   { return e.Meta }
func (e SubscriptionUpdated) EventMeta() EventMeta   { return e.Meta }
func (e SubscriptionCanceled) EventMeta() EventMeta  { return e.Meta }
func (e SubscriptionPaused) EventMeta() EventMeta    { return e.Meta }
func (e SubscriptionResumed) EventMeta() EventMeta   { return e.Meta }
func (e SubscriptionExpired) EventMeta() EventMeta   { return e.Meta }
func (e PaymentSuccessful) EventMeta() EventMeta     { return e.Meta }
func (e PaymentFailed) EventMeta() EventMeta         { return e.Meta }
func (e PaymentActionRequired) EventMeta() EventMeta { return e.Meta }

func (SubscriptionCreated) billingEvent()   {}
func (SubscriptionUpdated) billingEvent()   {}
func (SubscriptionCanceled) billingEvent()  {}
func (SubscriptionPaused) billingEvent()    {}
func (SubscriptionResumed) billingEvent()   {}
func (SubscriptionExpired) billingEvent()   {}
func (PaymentSuccessful) billingEvent()     {}
func (PaymentFailed) billingEvent()         {}
func (PaymentActionRequired) billingEvent() {}

// ErrUnknownEventType возвращается ParseBillingEvent для типа события,
// не входящего в закрытое множество. Такие сообщения подтверждаются и
// пропускаются, а не возвращаются в очередь.
type ErrUnknownEventType struct {
	Type string
}

func (e *ErrUnknownEventType) Error() string {
	return fmt.Sprintf("unknown billing event type: %q", e.Type)
}

// ParseBillingEvent разбирает конверт и полезную нагрузку в типизированный
// вариант закрытого множества.
func ParseBillingEvent(body []byte) (BillingEvent, error) {
	var envelope EventEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal event envelope: %w", err)
	}

	switch envelope.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionCanceled,
		EventSubscriptionPaused, EventSubscriptionResumed, EventSubscriptionExpired:
		var payload SubscriptionPayload
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			return nil, fmt.Errorf("unmarshal subscription payload: %w", err)
		}
		switch envelope.Type {
		case EventSubscriptionCreated:
			return SubscriptionCreated{Meta: envelope.Meta, Payload: payload}, nil
		case EventSubscriptionUpdated:
			return SubscriptionUpdated{Meta: envelope.Meta, Payload: payload}, nil
		case EventSubscriptionCanceled:
			return SubscriptionCanceled{Meta: envelope.Meta, Payload: payload}, nil
		case EventSubscriptionPaused:
			return SubscriptionPaused{Meta: envelope.Meta, Payload: payload}, nil
		case EventSubscriptionResumed:
			return SubscriptionResumed{Meta: envelope.Meta, Payload: payload}, nil
		default:
			return SubscriptionExpired{Meta: envelope.Meta, Payload: payload}, nil
		}
	case EventPaymentSuccessful, EventPaymentFailed, EventPaymentActionRequired:
		var payload PaymentPayload
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			return nil, fmt.Errorf("unmarshal payment payload: %w", err)
		}
		switch envelope.Type {
		case EventPaymentSuccessful:
			return PaymentSuccessful{Meta: envelope.Meta, Payload: payload}, nil
		case EventPaymentFailed:
			return PaymentFailed{Meta: envelope.Meta, Payload: payload}, nil
		default:
			return PaymentActionRequired{Meta: envelope.Meta, Payload: payload}, nil
		}
	default:
		return nil, &ErrUnknownEventType{Type: envelope.Type}
	}
}

// UsageSnapshot снимок счётчика для исходящего события.
type UsageSnapshot struct {
	Limit int `json:"limit"`
	Used  int `json:"used"`
}

// EntitlementEventPayload полезная нагрузка исходящих событий entitlement.*.
// EntitlementKey "*" означает отзыв всех прав пользователя.
type EntitlementEventPayload struct {
	UserID         string         `json:"userId"`
	EntitlementKey string         `json:"entitlementKey"`
	Role           string         `json:"role,omitempty"`
	Status         string         `json:"status"`
	ExpiresAt      *time.Time     `json:"expiresAt,omitempty"`
	UsageLimit     *UsageSnapshot `json:"usageLimit,omitempty"`
	ProductID      string         `json:"productId,omitempty"`
	SubscriptionID string         `json:"subscriptionId,omitempty"`
	Reason         string         `json:"reason"`
}

// UsageEvent событие потребления usage-based entitlement-а.
type UsageEvent struct {
	UserID         string         `json:"user_id" validate:"required"`
	EntitlementKey string         `json:"entitlement_key" validate:"required"`
	Amount         int            `json:"amount,omitempty" validate:"omitempty,gt=0"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}
