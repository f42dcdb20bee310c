package models

import "time"

// EntitlementStatus статус выданного права.
type EntitlementStatus string

const (
	StatusActive   EntitlementStatus = "active"
	StatusInactive EntitlementStatus = "inactive"
	StatusRevoked  EntitlementStatus = "revoked"
)

// DefaultRole роль по умолчанию: события биллинга роли не несут.
const DefaultRole = "member"

// Entitlement — право пользователя на одну возможность продукта.
// Пара (UserID, Key) уникальна. Отзыв — смена статуса, не удаление записи.
type Entitlement struct {
	UserID    string            `json:"user_id"`
	Key       string            `json:"entitlement_key"`
	Role      string            `json:"role"`
	Status    EntitlementStatus `json:"status"`
	GrantedAt time.Time         `json:"granted_at"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
	Usage     *UsageCounter     `json:"usage,omitempty"`
}

// NewEntitlement создает активное право, выданное в момент now.
func NewEntitlement(userID, key, role string, now time.Time, expiresAt *time.Time) *Entitlement {
	return &Entitlement{
		UserID:    userID,
		Key:       key,
		Role:      role,
		Status:    StatusActive,
		GrantedAt: now,
		ExpiresAt: expiresAt,
	}
}

// IsActive сообщает, действует ли право в момент now:
// статус active и срок (если задан) ещё не истёк.
func (e *Entitlement) IsActive(now time.Time) bool {
	if e.Status != StatusActive {
		return false
	}
	if e.ExpiresAt == nil {
		return true
	}
	return now.Before(*e.ExpiresAt)
}

// Activate переводит право в активный статус и, если передан срок,
// переносит его на новый конец периода.
func (e *Entitlement) Activate(expiresAt *time.Time) {
	e.Status = StatusActive
	if expiresAt != nil {
		e.ExpiresAt = expiresAt
	}
}

// Revoke немедленно отзывает право и снимает срок действия.
func (e *Entitlement) Revoke() {
	e.Status = StatusRevoked
	e.ExpiresAt = nil
}

// ExtendExpiry переносит срок действия права, оставляя его активным
// до указанного момента (отложенный отзыв в конце оплаченного периода).
func (e *Entitlement) ExtendExpiry(expiresAt time.Time) {
	t := expiresAt
	e.ExpiresAt = &t
}
