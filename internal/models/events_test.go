package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBillingEvent(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantType any
		wantErr  bool
	}{
		{
			name: "subscription.created",
			body: `{
				"type": "subscription.created",
				"payload": {
					"subscriptionId": "sub_1",
					"userId": "user-1",
					"productId": "prod_premium",
					"status": "active",
					"currentPeriodStart": "2026-03-01T00:00:00Z",
					"currentPeriodEnd": "2026-04-01T00:00:00Z"
				},
				"meta": {"eventId": "evt_1", "occurredAt": "2026-03-01T00:00:01Z", "source": "stripe"}
			}`,
			wantType: SubscriptionCreated{},
		},
		{
			name:     "subscription.updated со сменой продукта",
			body:     `{"type":"subscription.updated","payload":{"userId":"user-1","productId":"prod_new","previousProductId":"prod_old"},"meta":{"eventId":"evt_2"}}`,
			wantType: SubscriptionUpdated{},
		},
		{
			name:     "payment.failed",
			body:     `{"type":"payment.failed","payload":{"paymentIntentId":"pi_1","userId":"user-1","failureCode":"card_declined"},"meta":{"eventId":"evt_3"}}`,
			wantType: PaymentFailed{},
		},
		{
			name:    "неизвестный тип события",
			body:    `{"type":"invoice.finalized","payload":{},"meta":{"eventId":"evt_4"}}`,
			wantErr: true,
		},
		{
			name:    "невалидный JSON",
			body:    `{`,
			wantErr: true,
		},
		{
			name:    "невалидный payload для известного типа",
			body:    `{"type":"subscription.created","payload":"oops","meta":{"eventId":"evt_5"}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBillingEvent([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, got)
		})
	}
}

func TestParseBillingEvent_UnknownTypeIsTyped(t *testing.T) {
	_, err := ParseBillingEvent([]byte(`{"type":"invoice.finalized","payload":{},"meta":{}}`))

	var unknown *ErrUnknownEventType
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "invoice.finalized", unknown.Type)
}

func TestParseBillingEvent_PayloadFields(t *testing.T) {
	body := `{
		"type": "subscription.updated",
		"payload": {
			"subscriptionId": "sub_1",
			"userId": "user-1",
			"productId": "prod_new",
			"previousProductId": "prod_old",
			"addonProductIds": ["prod_addon"],
			"cancelAtPeriodEnd": true,
			"currentPeriodStart": "2026-03-01T00:00:00Z",
			"currentPeriodEnd": "2026-04-01T00:00:00Z"
		},
		"meta": {"eventId": "evt_1", "source": "stripe", "correlationId": "corr-1"}
	}`

	got, err := ParseBillingEvent([]byte(body))
	require.NoError(t, err)

	event, ok := got.(SubscriptionUpdated)
	require.True(t, ok)
	assert.Equal(t, "user-1", event.Payload.UserID)
	assert.Equal(t, "prod_old", event.Payload.PreviousProductID)
	assert.Equal(t, []string{"prod_addon"}, event.Payload.AddonProductIDs)
	assert.True(t, event.Payload.CancelAtPeriodEnd)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), event.Payload.CurrentPeriodEnd)
	assert.Equal(t, "evt_1", event.EventMeta().EventID)
	assert.Equal(t, "corr-1", event.EventMeta().CorrelationID)
}
