package models

import (
	"slices"
	"time"
)

// ProductType тип продукта в каталоге.
type ProductType string

const (
	ProductSubscription ProductType = "subscription"
	ProductOneOff       ProductType = "one_off"
	ProductAddon        ProductType = "addon"
)

// UsagePeriod период действия лимита использования, заданного продуктом.
type UsagePeriod string

const (
	UsagePeriodDay          UsagePeriod = "day"
	UsagePeriodWeek         UsagePeriod = "week"
	UsagePeriodMonth        UsagePeriod = "month"
	UsagePeriodYear         UsagePeriod = "year"
	UsagePeriodBillingCycle UsagePeriod = "billing_cycle"
	UsagePeriodLifetime     UsagePeriod = "lifetime"
)

// UsageLimit лимит использования, который продукт накладывает на метрику.
// Metric совпадает с ключом entitlement-а, к которому применяется лимит.
type UsageLimit struct {
	Metric string      `json:"metric"`
	Limit  int         `json:"limit"`
	Period UsagePeriod `json:"period"`
}

// AddonConfig конфигурация add-on-а базового продукта.
type AddonConfig struct {
	ProductID    string   `json:"product_id"`
	Required     bool     `json:"required,omitempty"`
	MinQuantity  int      `json:"min_quantity,omitempty"`
	MaxQuantity  int      `json:"max_quantity,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	Conflicts    []string `json:"conflicts,omitempty"`
}

// ProductDefinition определение продукта из каталога (read-only вход ядра):
// какие права он выдаёт, какие лимиты накладывает и из каких add-on-ов
// складывается. Addons — устаревший плоский список productId, AddonConfigs —
// его расширенная замена; обрабатываются оба.
type ProductDefinition struct {
	ProductID    string        `json:"product_id"`
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	Type         ProductType   `json:"type"`
	Entitlements []string      `json:"entitlements"`
	UsageLimits  []UsageLimit  `json:"usage_limits,omitempty"`
	Addons       []string      `json:"addons,omitempty"`
	AddonConfigs []AddonConfig `json:"addon_configs,omitempty"`
	IsActive     bool          `json:"is_active"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// AddUsageLimit добавляет лимит; дубликат по паре (metric, period) —
// доменная ошибка.
func (p *ProductDefinition) AddUsageLimit(limit UsageLimit) error {
	for _, l := range p.UsageLimits {
		if l.Metric == limit.Metric && l.Period == limit.Period {
			return NewDomainError("usage limit for %s/%s already exists", limit.Metric, limit.Period)
		}
	}
	p.UsageLimits = append(p.UsageLimits, limit)
	return nil
}

// AddAddonConfig добавляет конфигурацию add-on-а с проверкой композиции:
// конфликт с уже подключённым add-on-ом, повторная конфигурация и
// неудовлетворённая зависимость — доменные ошибки.
func (p *ProductDefinition) AddAddonConfig(cfg AddonConfig) error {
	if p.Type != ProductSubscription {
		return NewDomainError("only subscription products can have add-ons")
	}

	attached := make([]string, 0, len(p.AddonConfigs))
	for _, c := range p.AddonConfigs {
		attached = append(attached, c.ProductID)
	}

	for _, conflictID := range cfg.Conflicts {
		if slices.Contains(attached, conflictID) {
			return NewDomainError("add-on %s conflicts with existing add-ons", cfg.ProductID)
		}
	}
	if slices.Contains(attached, cfg.ProductID) {
		return NewDomainError("add-on configuration for %s already exists", cfg.ProductID)
	}
	for _, dep := range cfg.Dependencies {
		if !slices.Contains(attached, dep) {
			return NewDomainError("add-on %s requires dependency %s", cfg.ProductID, dep)
		}
	}

	p.AddonConfigs = append(p.AddonConfigs, cfg)
	if !slices.Contains(p.Addons, cfg.ProductID) {
		p.Addons = append(p.Addons, cfg.ProductID)
	}
	return nil
}

// AddonProductIDs возвращает productId всех add-on-ов: из конфигураций и из
// устаревшего списка, без дубликатов, в порядке объявления.
func (p *ProductDefinition) AddonProductIDs() []string {
	ids := make([]string, 0, len(p.AddonConfigs)+len(p.Addons))
	for _, cfg := range p.AddonConfigs {
		ids = append(ids, cfg.ProductID)
	}
	for _, id := range p.Addons {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// ResetStrategyForPeriod отображает период лимита продукта в стратегию сброса
// счётчика. Для lifetime стратегии нет: счётчик не сбрасывается.
func ResetStrategyForPeriod(period UsagePeriod) *ResetStrategy {
	switch period {
	case UsagePeriodDay:
		return &ResetStrategy{Type: ResetPeriodic, Period: PeriodDay}
	case UsagePeriodWeek:
		return &ResetStrategy{Type: ResetPeriodic, Period: PeriodWeek, DayOfWeek: 0}
	case UsagePeriodMonth:
		return &ResetStrategy{Type: ResetPeriodic, Period: PeriodMonth, DayOfMonth: 1}
	case UsagePeriodYear:
		return &ResetStrategy{Type: ResetPeriodic, Period: PeriodYear}
	case UsagePeriodBillingCycle:
		return &ResetStrategy{Type: ResetPeriodic, Period: PeriodBillingCycle}
	default:
		return nil
	}
}
