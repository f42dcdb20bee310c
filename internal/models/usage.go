package models

import "time"

// ResetType определяет механизм обнуления счётчика использования.
type ResetType string

const (
	// ResetManual — счётчик не сбрасывается автоматически; ResetAt, если задан,
	// является одноразовым дедлайном.
	ResetManual ResetType = "manual"
	// ResetPeriodic — счётчик сбрасывается по календарному расписанию.
	ResetPeriodic ResetType = "periodic"
	// ResetRolling зарезервирован: скользящее окно считается на стороне
	// потребителя, сервер никогда не считает такой счётчик просроченным.
	ResetRolling ResetType = "rolling"
)

// ResetPeriod определяет период для периодического сброса.
type ResetPeriod string

const (
	PeriodHour         ResetPeriod = "hour"
	PeriodDay          ResetPeriod = "day"
	PeriodWeek         ResetPeriod = "week"
	PeriodMonth        ResetPeriod = "month"
	PeriodQuarter      ResetPeriod = "quarter"
	PeriodYear         ResetPeriod = "year"
	PeriodBillingCycle ResetPeriod = "billing_cycle"
	PeriodCustom       ResetPeriod = "custom"
)

// ResetStrategy описывает, как и когда потребление счётчика возвращается к нулю.
type ResetStrategy struct {
	Type       ResetType   `json:"type"`
	Period     ResetPeriod `json:"period,omitempty"`
	DayOfMonth int         `json:"day_of_month,omitempty"` // 1-31 для месячных сбросов
	DayOfWeek  int         `json:"day_of_week,omitempty"`  // 0-6, воскресенье = 0
	Hour       int         `json:"hour,omitempty"`         // 0-23
	CustomDays int         `json:"custom_days,omitempty"`  // для периода custom
	Timezone   string      `json:"timezone,omitempty"`     // объявлен, но не участвует в расчётах
}

// billingCyclePlaceholderYears — до первой синхронизации с подпиской граница
// billing_cycle ставится далеко в будущее, чтобы не сработать немедленно.
const billingCyclePlaceholderYears = 10

// NextResetAt возвращает следующую границу сброса для стратегии относительно now.
//
// Для billing_cycle граница задаётся извне (концом текущего периода подписки),
// поэтому здесь возвращается дальняя дата-заглушка. Переполнение календаря
// (например, 31-е число в 30-дневном месяце) нормализуется правилами
// time.Date: дата перекатывается в следующий месяц.
func NextResetAt(s ResetStrategy, now time.Time) time.Time {
	switch s.Period {
	case PeriodHour:
		t := now.Add(time.Hour)
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	case PeriodDay:
		t := now.AddDate(0, 0, 1)
		return time.Date(t.Year(), t.Month(), t.Day(), s.Hour, 0, 0, 0, t.Location())
	case PeriodWeek:
		// строго следующее вхождение дня недели: никогда "сегодня"
		days := (s.DayOfWeek - int(now.Weekday()) + 7) % 7
		if days == 0 {
			days = 7
		}
		t := now.AddDate(0, 0, days)
		return time.Date(t.Year(), t.Month(), t.Day(), s.Hour, 0, 0, 0, t.Location())
	case PeriodMonth:
		dom := s.DayOfMonth
		if dom == 0 {
			dom = 1
		}
		return time.Date(now.Year(), now.Month()+1, dom, s.Hour, 0, 0, 0, now.Location())
	case PeriodQuarter:
		return time.Date(now.Year(), now.Month()+3, 1, s.Hour, 0, 0, 0, now.Location())
	case PeriodYear:
		return time.Date(now.Year()+1, time.January, 1, s.Hour, 0, 0, 0, now.Location())
	case PeriodCustom:
		return now.AddDate(0, 0, s.CustomDays)
	case PeriodBillingCycle:
		return now.AddDate(billingCyclePlaceholderYears, 0, 0)
	default:
		t := now.AddDate(0, 0, 1)
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	}
}

// UsageCounter учитывает потребление usage-based entitlement-а против лимита.
// Used изменяется только через Consume и Reset; вызывающая сторона отвечает
// за сохранение изменённого счётчика.
type UsageCounter struct {
	Limit    int            `json:"limit"`
	Used     int            `json:"used"`
	ResetAt  *time.Time     `json:"reset_at,omitempty"`
	Strategy *ResetStrategy `json:"strategy,omitempty"`
}

// CanConsume сообщает, помещается ли amount в остаток лимита.
func (u *UsageCounter) CanConsume(amount int) bool {
	return u.Used+amount <= u.Limit
}

// Consume увеличивает Used на amount или возвращает ErrUsageExceeded.
func (u *UsageCounter) Consume(amount int) error {
	if !u.CanConsume(amount) {
		return ErrUsageExceeded
	}
	u.Used += amount
	return nil
}

// ShouldReset сообщает, наступила ли граница сброса. Потребители обязаны
// вызывать ShouldReset и при необходимости Reset перед каждым чтением или
// списанием: сброс ленивый, фоновых часов нет.
func (u *UsageCounter) ShouldReset(now time.Time) bool {
	if u.Strategy != nil && u.Strategy.Type == ResetRolling {
		return false
	}
	return u.ResetAt != nil && !now.Before(*u.ResetAt)
}

// Reset обнуляет Used и пересчитывает следующую границу. Для manual-стратегии
// (или её отсутствия) одноразовый дедлайн снимается.
func (u *UsageCounter) Reset(now time.Time) {
	u.Used = 0
	if u.Strategy == nil || u.Strategy.Type == ResetManual {
		u.ResetAt = nil
		return
	}
	next := NextResetAt(*u.Strategy, now)
	u.ResetAt = &next
}

// SetBillingCycleBoundary выставляет границу сброса по концу текущего периода
// подписки. Для счётчиков с другой стратегией вызов игнорируется:
// billing_cycle никогда не считается календарной арифметикой и наоборот.
func (u *UsageCounter) SetBillingCycleBoundary(periodEnd time.Time) {
	if u.Strategy == nil || u.Strategy.Period != PeriodBillingCycle {
		return
	}
	t := periodEnd
	u.ResetAt = &t
}

// IsBillingCycle сообщает, привязан ли счётчик к биллинговому циклу подписки.
func (u *UsageCounter) IsBillingCycle() bool {
	return u.Strategy != nil && u.Strategy.Period == PeriodBillingCycle
}

// EffectiveLimit возвращает лимит, видимый потребителям. Совпадает с Limit,
// но выделен отдельно: аддитивная синхронизация add-on-ов увеличивает его.
func (u *UsageCounter) EffectiveLimit() int {
	return u.Limit
}
