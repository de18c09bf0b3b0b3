package orders

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/money"
)

// PricingPolicy turns a subtotal into the full breakdown. All amounts are minor units.
type PricingPolicy struct {
	TaxRate                    decimal.Decimal
	ShippingFeeMinor           int64
	FreeShippingThresholdMinor int64
}

// Breakdown is the priced order. TotalMinor always equals the sum of the other three.
type Breakdown struct {
	SubtotalMinor int64
	TaxMinor      int64
	ShippingMinor int64
	TotalMinor    int64
}

// NewPricingPolicy builds the policy from configuration.
func NewPricingPolicy(cfg config.PricingConfig) (PricingPolicy, error) {
	rate, err := cfg.TaxRateDecimal()
	if err != nil {
		return PricingPolicy{}, err
	}
	if cfg.ShippingFeeMinor < 0 || cfg.FreeShippingThresholdMinor < 0 {
		return PricingPolicy{}, fmt.Errorf("shipping amounts must not be negative")
	}
	return PricingPolicy{
		TaxRate:                    rate,
		ShippingFeeMinor:           cfg.ShippingFeeMinor,
		FreeShippingThresholdMinor: cfg.FreeShippingThresholdMinor,
	}, nil
}

// Price computes tax and shipping for the subtotal. A zero threshold disables free shipping.
func (p PricingPolicy) Price(subtotalMinor int64) Breakdown {
	b := Breakdown{
		SubtotalMinor: subtotalMinor,
		TaxMinor:      money.ApplyRate(subtotalMinor, p.TaxRate),
		ShippingMinor: p.ShippingFeeMinor,
	}
	if p.FreeShippingThresholdMinor > 0 && subtotalMinor >= p.FreeShippingThresholdMinor {
		b.ShippingMinor = 0
	}
	b.TotalMinor = b.SubtotalMinor + b.TaxMinor + b.ShippingMinor
	return b
}
