package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestApplyRate(t *testing.T) {
	assert.Equal(t, int64(25), ApplyRate(250, decimal.RequireFromString("0.10")))
	assert.Equal(t, int64(18), ApplyRate(99, decimal.RequireFromString("0.18")))
	assert.Equal(t, int64(0), ApplyRate(250, decimal.Zero))
	// 0.5 rounds away from zero
	assert.Equal(t, int64(1), ApplyRate(5, decimal.RequireFromString("0.10")))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "INR 295.00", Format(29500, "INR"))
	assert.Equal(t, "JPY 1200", Format(1200, "jpy"))
	assert.Equal(t, "USD 0.05", Format(5, "USD"))
}

func TestValidCurrency(t *testing.T) {
	assert.True(t, ValidCurrency("INR"))
	assert.False(t, ValidCurrency("inr"))
	assert.False(t, ValidCurrency("RUPEE"))
}
