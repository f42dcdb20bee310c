package models

import (
	"fmt"
	"time"
)

// DunningState состояние платёжной проблемы пользователя.
//
// Таймлайн: ACTION_REQUIRED (день 0) → GRACE_PERIOD (день 1-3) →
// RESTRICTED (день 4-7) → SUSPENDED (день 8+). OK — проблем нет.
type DunningState string

const (
	DunningOK             DunningState = "ok"
	DunningActionRequired DunningState = "action_required"
	DunningGracePeriod    DunningState = "grace_period"
	DunningRestricted     DunningState = "restricted"
	DunningSuspended      DunningState = "suspended"
)

// Пороговые дни таймлайна, отсчёт от DetectedAt.
const (
	graceAfterDays    = 1
	restrictAfterDays = 4
	suspendAfterDays  = 8
)

// IssueDetails поля платёжной проблемы, приходящие с событием payment.failed
// или payment.action_required.
type IssueDetails struct {
	PortalURL       string
	ExpiresAt       *time.Time
	PaymentIntentID string
	InvoiceID       string
	SubscriptionID  string
	FailureCode     string
	FailureReason   string
}

// DunningRecord — одна запись на пользователя: активная платёжная проблема
// и её таймлайн. Состояние движется только вперёд по таймлайну либо
// полностью очищается через Resolve. Новая проблема поверх существующей
// записи перезапускает DetectedAt и возвращает состояние в ACTION_REQUIRED.
type DunningRecord struct {
	UserID          string       `json:"user_id"`
	State           DunningState `json:"state"`
	PortalURL       string       `json:"portal_url,omitempty"`
	ExpiresAt       *time.Time   `json:"expires_at,omitempty"`
	DetectedAt      time.Time    `json:"detected_at"`
	LastUpdatedAt   time.Time    `json:"last_updated_at"`
	PaymentIntentID string       `json:"payment_intent_id,omitempty"`
	InvoiceID       string       `json:"invoice_id,omitempty"`
	SubscriptionID  string       `json:"subscription_id,omitempty"`
	FailureCode     string       `json:"failure_code,omitempty"`
	FailureReason   string       `json:"failure_reason,omitempty"`
}

// NewDunningRecord создает запись в состоянии ACTION_REQUIRED
// с моментом обнаружения now.
func NewDunningRecord(userID string, now time.Time, details IssueDetails) *DunningRecord {
	return &DunningRecord{
		UserID:          userID,
		State:           DunningActionRequired,
		PortalURL:       details.PortalURL,
		ExpiresAt:       details.ExpiresAt,
		DetectedAt:      now,
		LastUpdatedAt:   now,
		PaymentIntentID: details.PaymentIntentID,
		InvoiceID:       details.InvoiceID,
		SubscriptionID:  details.SubscriptionID,
		FailureCode:     details.FailureCode,
		FailureReason:   details.FailureReason,
	}
}

// DaysSinceDetection возвращает целое число дней с момента обнаружения
// проблемы (floor от прошедшего времени).
func (r *DunningRecord) DaysSinceDetection(now time.Time) int {
	return int(now.Sub(r.DetectedAt) / (24 * time.Hour))
}

// ShouldTransition сообщает, пора ли записи переходить в следующее состояние.
// SUSPENDED и OK дальше сами не двигаются.
func (r *DunningRecord) ShouldTransition(now time.Time) bool {
	days := r.DaysSinceDetection(now)
	switch r.State {
	case DunningActionRequired:
		return days >= graceAfterDays
	case DunningGracePeriod:
		return days >= restrictAfterDays
	case DunningRestricted:
		return days >= suspendAfterDays
	default:
		return false
	}
}

// NextState возвращает состояние, положенное записи по таймлайну в момент now.
func (r *DunningRecord) NextState(now time.Time) DunningState {
	days := r.DaysSinceDetection(now)
	switch r.State {
	case DunningActionRequired:
		if days >= graceAfterDays {
			return DunningGracePeriod
		}
	case DunningGracePeriod:
		if days >= restrictAfterDays {
			return DunningRestricted
		}
	case DunningRestricted:
		if days >= suspendAfterDays {
			return DunningSuspended
		}
	}
	return r.State
}

// ApplyTransition применяет назревший переход и возвращает true, если
// состояние изменилось. Побочные действия перехода в SUSPENDED (отзыв прав,
// публикация события) лежат на вызывающей стороне.
func (r *DunningRecord) ApplyTransition(now time.Time) bool {
	next := r.NextState(now)
	if next == r.State {
		return false
	}
	r.State = next
	r.LastUpdatedAt = now
	return true
}

// ReopenIssue перезапускает таймлайн для новой платёжной проблемы:
// состояние возвращается в ACTION_REQUIRED независимо от текущего,
// DetectedAt сбрасывается на now, поля проблемы перезаписываются.
func (r *DunningRecord) ReopenIssue(now time.Time, details IssueDetails) {
	r.State = DunningActionRequired
	r.DetectedAt = now
	r.LastUpdatedAt = now
	if details.PortalURL != "" {
		r.PortalURL = details.PortalURL
	}
	if details.ExpiresAt != nil {
		r.ExpiresAt = details.ExpiresAt
	}
	if details.PaymentIntentID != "" {
		r.PaymentIntentID = details.PaymentIntentID
	}
	if details.InvoiceID != "" {
		r.InvoiceID = details.InvoiceID
	}
	if details.SubscriptionID != "" {
		r.SubscriptionID = details.SubscriptionID
	}
	r.FailureCode = details.FailureCode
	r.FailureReason = details.FailureReason
}

// Resolve закрывает проблему: состояние OK, детали проблемы очищаются.
func (r *DunningRecord) Resolve(now time.Time) {
	r.State = DunningOK
	r.LastUpdatedAt = now
	r.PortalURL = ""
	r.ExpiresAt = nil
	r.FailureCode = ""
	r.FailureReason = ""
}

// StateMessage возвращает пользовательское сообщение и список рекомендуемых
// действий для состояния. Для GRACE_PERIOD и RESTRICTED сообщение содержит
// оставшиеся дни до следующего порога.
func StateMessage(state DunningState, daysSince int) (string, []string) {
	switch state {
	case DunningActionRequired:
		return "Payment action required. Please update your payment method to continue.",
			[]string{
				"Update your payment method using the portal link",
				"Contact support if you need assistance",
			}
	case DunningGracePeriod:
		remaining := restrictAfterDays - daysSince
		return fmt.Sprintf("Payment issue detected. Please resolve within %d day(s) to avoid service restrictions.", remaining),
			[]string{
				"Update your payment method using the portal link",
				"Your account will be restricted if not resolved soon",
			}
	case DunningRestricted:
		remaining := suspendAfterDays - daysSince
		return fmt.Sprintf("Your account has been restricted due to payment issues. Please resolve within %d day(s) to avoid suspension.", remaining),
			[]string{
				"Update your payment method immediately using the portal link",
				"Premium features are currently disabled",
				"Your account will be suspended if not resolved",
			}
	case DunningSuspended:
		return "Your account has been suspended due to unresolved payment issues. Please update your payment method to restore access.",
			[]string{
				"Update your payment method using the portal link",
				"Contact support to restore your account",
				"Your account is recoverable - access will be restored once payment is resolved",
			}
	default:
		return "No billing issues", []string{}
	}
}

// BillingIssue результат запроса платёжного статуса пользователя.
// Не персистится: собирается из DunningRecord на лету.
type BillingIssue struct {
	HasIssue           bool         `json:"has_issue"`
	State              DunningState `json:"state"`
	Message            string       `json:"message"`
	PortalURL          string       `json:"portal_url,omitempty"`
	ExpiresAt          *time.Time   `json:"expires_at,omitempty"`
	DaysSinceDetection int          `json:"days_since_detection"`
	Actions            []string     `json:"actions"`
}
