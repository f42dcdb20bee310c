package models

import "time"

// TrialStatus статус пробного периода.
type TrialStatus string

const (
	TrialActive    TrialStatus = "active"
	TrialExpired   TrialStatus = "expired"
	TrialConverted TrialStatus = "converted"
)

// TrialRecord пробный период пользователя по продукту.
// Пара (UserID, ProductID) уникальна: каждый продукт пробуется один раз.
type TrialRecord struct {
	UserID    string      `json:"user_id"`
	ProductID string      `json:"product_id"`
	StartedAt time.Time   `json:"started_at"`
	ExpiresAt time.Time   `json:"expires_at"`
	Status    TrialStatus `json:"status"`
}

// IsActive сообщает, действует ли пробный период в момент now.
func (t *TrialRecord) IsActive(now time.Time) bool {
	return t.Status == TrialActive && now.Before(t.ExpiresAt)
}

// IsExpired сообщает, истёк ли пробный период.
func (t *TrialRecord) IsExpired(now time.Time) bool {
	return t.Status == TrialExpired || !now.Before(t.ExpiresAt)
}

// MarkExpired помечает пробный период истёкшим.
func (t *TrialRecord) MarkExpired() {
	t.Status = TrialExpired
}

// MarkConverted помечает пробный период сконвертированным в подписку.
func (t *TrialRecord) MarkConverted() {
	t.Status = TrialConverted
}
