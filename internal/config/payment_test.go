package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentSettingsWithDefaults(t *testing.T) {
	cfg := PaymentSettings{Currency: "usd", TokenTTL: 10 * time.Minute}.withDefaults()

	assert.Equal(t, "usd", cfg.Currency)
	assert.Equal(t, 10*time.Minute, cfg.TokenTTL)
	assert.Equal(t, "0011", cfg.Mode)
	assert.Equal(t, "sale", cfg.Intent)
	assert.Equal(t, int64(100), cfg.MinimumAmount)
	assert.Equal(t, 30*time.Minute, cfg.ReconcileAfter)
}

func TestValidatePaymentSettings(t *testing.T) {
	require.NoError(t, validatePaymentSettings(DefaultPaymentSettings()))

	tooLong := DefaultPaymentSettings()
	tooLong.TokenTTL = 2 * time.Hour
	assert.Error(t, validatePaymentSettings(tooLong))

	badCurrency := DefaultPaymentSettings()
	badCurrency.Currency = "TAKA"
	assert.Error(t, validatePaymentSettings(badCurrency))

	inverted := DefaultPaymentSettings()
	inverted.AbandonAfter = time.Minute
	assert.Error(t, validatePaymentSettings(inverted))
}

func TestPaymentSettingsHolderFallsBackToDefaults(t *testing.T) {
	var holder *PaymentSettingsHolder
	assert.Equal(t, DefaultPaymentSettings(), holder.Get())

	static := NewStaticPaymentSettings(PaymentSettings{MinimumAmount: 500})
	assert.Equal(t, int64(500), static.Get().MinimumAmount)
	assert.Equal(t, "BDT", static.Get().Currency)
}

func TestNewPaymentSettingsHolderWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	holder, err := NewPaymentSettingsHolder()
	require.NoError(t, err)
	assert.Equal(t, DefaultPaymentSettings(), holder.Get())
}
