package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDunningRecord_Timeline(t *testing.T) {
	detected := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		state          DunningState
		elapsed        time.Duration
		wantTransition bool
		wantNext       DunningState
	}{
		{
			name:           "день 0: остаемся в ACTION_REQUIRED",
			state:          DunningActionRequired,
			elapsed:        12 * time.Hour,
			wantTransition: false,
			wantNext:       DunningActionRequired,
		},
		{
			name:           "ровно 24 часа: переход в GRACE_PERIOD",
			state:          DunningActionRequired,
			elapsed:        24 * time.Hour,
			wantTransition: true,
			wantNext:       DunningGracePeriod,
		},
		{
			name:           "чуть меньше суток: перехода нет",
			state:          DunningActionRequired,
			elapsed:        24*time.Hour - time.Second,
			wantTransition: false,
			wantNext:       DunningActionRequired,
		},
		{
			name:           "день 3: GRACE_PERIOD еще держится",
			state:          DunningGracePeriod,
			elapsed:        3*24*time.Hour + 23*time.Hour,
			wantTransition: false,
			wantNext:       DunningGracePeriod,
		},
		{
			name:           "день 4: переход в RESTRICTED",
			state:          DunningGracePeriod,
			elapsed:        4 * 24 * time.Hour,
			wantTransition: true,
			wantNext:       DunningRestricted,
		},
		{
			name:           "день 7.9: RESTRICTED еще держится",
			state:          DunningRestricted,
			elapsed:        8*24*time.Hour - time.Minute,
			wantTransition: false,
			wantNext:       DunningRestricted,
		},
		{
			name:           "день 8: переход в SUSPENDED",
			state:          DunningRestricted,
			elapsed:        8 * 24 * time.Hour,
			wantTransition: true,
			wantNext:       DunningSuspended,
		},
		{
			name:           "SUSPENDED дальше не двигается",
			state:          DunningSuspended,
			elapsed:        30 * 24 * time.Hour,
			wantTransition: false,
			wantNext:       DunningSuspended,
		},
		{
			name:           "OK дальше не двигается",
			state:          DunningOK,
			elapsed:        30 * 24 * time.Hour,
			wantTransition: false,
			wantNext:       DunningOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &DunningRecord{UserID: "user-1", State: tt.state, DetectedAt: detected}
			now := detected.Add(tt.elapsed)

			assert.Equal(t, tt.wantTransition, r.ShouldTransition(now))
			assert.Equal(t, tt.wantNext, r.NextState(now))

			changed := r.ApplyTransition(now)
			assert.Equal(t, tt.wantTransition, changed)
			assert.Equal(t, tt.wantNext, r.State)
			if changed {
				assert.Equal(t, now, r.LastUpdatedAt)
			}
		})
	}
}

func TestDunningRecord_TransitionSkipsNoStates(t *testing.T) {
	// переход всегда в соседнее состояние, даже если запись сильно просрочена
	detected := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	r := &DunningRecord{UserID: "user-1", State: DunningActionRequired, DetectedAt: detected}
	now := detected.Add(20 * 24 * time.Hour)

	assert.True(t, r.ApplyTransition(now))
	assert.Equal(t, DunningGracePeriod, r.State)
	assert.True(t, r.ApplyTransition(now))
	assert.Equal(t, DunningRestricted, r.State)
	assert.True(t, r.ApplyTransition(now))
	assert.Equal(t, DunningSuspended, r.State)
	assert.False(t, r.ApplyTransition(now))
}

func TestDunningRecord_ReopenIssue(t *testing.T) {
	detected := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	expires := detected.Add(48 * time.Hour)
	r := NewDunningRecord("user-1", detected, IssueDetails{
		PortalURL:       "https://portal.example/old",
		ExpiresAt:       &expires,
		PaymentIntentID: "pi_old",
		FailureCode:     "card_declined",
		FailureReason:   "Your card was declined",
	})

	now := detected.Add(6 * 24 * time.Hour)
	r.State = DunningRestricted
	r.ReopenIssue(now, IssueDetails{PaymentIntentID: "pi_new"})

	assert.Equal(t, DunningActionRequired, r.State)
	assert.Equal(t, now, r.DetectedAt)
	assert.Equal(t, 0, r.DaysSinceDetection(now))
	assert.Equal(t, "pi_new", r.PaymentIntentID)
	// пустые поля новой проблемы не затирают старые ссылки
	assert.Equal(t, "https://portal.example/old", r.PortalURL)
	// коды отказа отражают именно последнюю проблему
	assert.Empty(t, r.FailureCode)
	assert.Empty(t, r.FailureReason)
}

func TestDunningRecord_Resolve(t *testing.T) {
	detected := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	expires := detected.Add(48 * time.Hour)
	r := NewDunningRecord("user-1", detected, IssueDetails{
		PortalURL:     "https://portal.example/pay",
		ExpiresAt:     &expires,
		FailureCode:   "card_declined",
		FailureReason: "Your card was declined",
	})

	now := detected.Add(2 * time.Hour)
	r.Resolve(now)

	assert.Equal(t, DunningOK, r.State)
	assert.Equal(t, now, r.LastUpdatedAt)
	assert.Empty(t, r.PortalURL)
	assert.Nil(t, r.ExpiresAt)
	assert.Empty(t, r.FailureCode)
	assert.Empty(t, r.FailureReason)
}

func TestStateMessage(t *testing.T) {
	tests := []struct {
		name        string
		state       DunningState
		daysSince   int
		wantMessage string
	}{
		{
			name:        "ACTION_REQUIRED",
			state:       DunningActionRequired,
			daysSince:   0,
			wantMessage: "Payment action required. Please update your payment method to continue.",
		},
		{
			name:        "GRACE_PERIOD показывает дни до ограничения",
			state:       DunningGracePeriod,
			daysSince:   2,
			wantMessage: "Payment issue detected. Please resolve within 2 day(s) to avoid service restrictions.",
		},
		{
			name:        "RESTRICTED показывает дни до приостановки",
			state:       DunningRestricted,
			daysSince:   5,
			wantMessage: "Your account has been restricted due to payment issues. Please resolve within 3 day(s) to avoid suspension.",
		},
		{
			name:        "SUSPENDED",
			state:       DunningSuspended,
			daysSince:   10,
			wantMessage: "Your account has been suspended due to unresolved payment issues. Please update your payment method to restore access.",
		},
		{
			name:        "OK",
			state:       DunningOK,
			daysSince:   0,
			wantMessage: "No billing issues",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, actions := StateMessage(tt.state, tt.daysSince)
			assert.Equal(t, tt.wantMessage, msg)
			if tt.state != DunningOK {
				assert.NotEmpty(t, actions)
			}
		})
	}
}
