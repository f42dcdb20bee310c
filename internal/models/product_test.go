package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProductDefinition_AddUsageLimit(t *testing.T) {
	p := &ProductDefinition{ProductID: "prod_base", Type: ProductSubscription}

	assert.NoError(t, p.AddUsageLimit(UsageLimit{Metric: "api_calls", Limit: 1000, Period: UsagePeriodMonth}))
	assert.NoError(t, p.AddUsageLimit(UsageLimit{Metric: "api_calls", Limit: 50, Period: UsagePeriodDay}))

	err := p.AddUsageLimit(UsageLimit{Metric: "api_calls", Limit: 2000, Period: UsagePeriodMonth})
	assert.Error(t, err)
	assert.True(t, IsDomainError(err))
	assert.Len(t, p.UsageLimits, 2)
}

func TestProductDefinition_AddAddonConfig(t *testing.T) {
	tests := []struct {
		name    string
		product ProductDefinition
		configs []AddonConfig
		wantErr string
	}{
		{
			name:    "add-on добавляется к подписке",
			product: ProductDefinition{ProductID: "prod_base", Type: ProductSubscription},
			configs: []AddonConfig{{ProductID: "prod_extra"}},
		},
		{
			name:    "one-off продукт не принимает add-on-ы",
			product: ProductDefinition{ProductID: "prod_credits", Type: ProductOneOff},
			configs: []AddonConfig{{ProductID: "prod_extra"}},
			wantErr: "only subscription products can have add-ons",
		},
		{
			name:    "повторная конфигурация отклоняется",
			product: ProductDefinition{ProductID: "prod_base", Type: ProductSubscription},
			configs: []AddonConfig{
				{ProductID: "prod_extra"},
				{ProductID: "prod_extra"},
			},
			wantErr: "add-on configuration for prod_extra already exists",
		},
		{
			name:    "конфликтующий add-on отклоняется",
			product: ProductDefinition{ProductID: "prod_base", Type: ProductSubscription},
			configs: []AddonConfig{
				{ProductID: "prod_extra"},
				{ProductID: "prod_rival", Conflicts: []string{"prod_extra"}},
			},
			wantErr: "add-on prod_rival conflicts with existing add-ons",
		},
		{
			name:    "неудовлетворенная зависимость отклоняется",
			product: ProductDefinition{ProductID: "prod_base", Type: ProductSubscription},
			configs: []AddonConfig{
				{ProductID: "prod_extra", Dependencies: []string{"prod_missing"}},
			},
			wantErr: "add-on prod_extra requires dependency prod_missing",
		},
		{
			name:    "зависимость на уже подключенный add-on проходит",
			product: ProductDefinition{ProductID: "prod_base", Type: ProductSubscription},
			configs: []AddonConfig{
				{ProductID: "prod_extra"},
				{ProductID: "prod_more", Dependencies: []string{"prod_extra"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			for _, cfg := range tt.configs {
				err = tt.product.AddAddonConfig(cfg)
				if err != nil {
					break
				}
			}

			if tt.wantErr != "" {
				assert.Error(t, err)
				assert.True(t, IsDomainError(err))
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProductDefinition_AddonProductIDs(t *testing.T) {
	p := &ProductDefinition{
		ProductID: "prod_base",
		Type:      ProductSubscription,
		Addons:    []string{"prod_legacy", "prod_extra"},
		AddonConfigs: []AddonConfig{
			{ProductID: "prod_extra"},
			{ProductID: "prod_more"},
		},
	}

	// конфигурации идут первыми, legacy-список добавляется без дубликатов
	assert.Equal(t, []string{"prod_extra", "prod_more", "prod_legacy"}, p.AddonProductIDs())
}

func TestResetStrategyForPeriod(t *testing.T) {
	tests := []struct {
		period     UsagePeriod
		wantPeriod ResetPeriod
		wantNil    bool
	}{
		{period: UsagePeriodDay, wantPeriod: PeriodDay},
		{period: UsagePeriodWeek, wantPeriod: PeriodWeek},
		{period: UsagePeriodMonth, wantPeriod: PeriodMonth},
		{period: UsagePeriodYear, wantPeriod: PeriodYear},
		{period: UsagePeriodBillingCycle, wantPeriod: PeriodBillingCycle},
		{period: UsagePeriodLifetime, wantNil: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			got := ResetStrategyForPeriod(tt.period)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			if assert.NotNil(t, got) {
				assert.Equal(t, ResetPeriodic, got.Type)
				assert.Equal(t, tt.wantPeriod, got.Period)
			}
		})
	}
}
