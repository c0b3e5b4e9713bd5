package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PaymentSettings are the tunables of the checkout flow that operators may
// change without a restart.
type PaymentSettings struct {
	Currency string `mapstructure:"currency"`
	Mode     string `mapstructure:"mode"`
	Intent   string `mapstructure:"intent"`

	// MinimumAmount is expressed in minor units.
	MinimumAmount int64         `mapstructure:"minimumAmount"`
	TokenTTL      time.Duration `mapstructure:"tokenTTL"`

	ReconcileAfter time.Duration `mapstructure:"reconcileAfter"`
	AbandonAfter   time.Duration `mapstructure:"abandonAfter"`

	GrantRetryBase   time.Duration `mapstructure:"grantRetryBase"`
	GrantRetryMax    time.Duration `mapstructure:"grantRetryMax"`
	GrantMaxAttempts int           `mapstructure:"grantMaxAttempts"`

	CheckoutRate  float64 `mapstructure:"checkoutRate"`
	CheckoutBurst int     `mapstructure:"checkoutBurst"`
}

func DefaultPaymentSettings() PaymentSettings {
	return PaymentSettings{
		Currency:         "BDT",
		Mode:             "0011",
		Intent:           "sale",
		MinimumAmount:    100,
		TokenTTL:         time.Hour,
		ReconcileAfter:   30 * time.Minute,
		AbandonAfter:     24 * time.Hour,
		GrantRetryBase:   30 * time.Second,
		GrantRetryMax:    time.Hour,
		GrantMaxAttempts: 20,
		CheckoutRate:     0.2,
		CheckoutBurst:    5,
	}
}

type PaymentSettingsHolder struct {
	current atomic.Value // holds PaymentSettings
}

// NewStaticPaymentSettings returns a holder that never reloads.
func NewStaticPaymentSettings(cfg PaymentSettings) *PaymentSettingsHolder {
	holder := &PaymentSettingsHolder{}
	holder.current.Store(cfg.withDefaults())
	return holder
}

func NewPaymentSettingsHolder() (*PaymentSettingsHolder, error) {
	v := viper.New()

	v.SetConfigName("payment")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/shikkha/config")
	v.AddConfigPath("/etc/shikkha")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SHIKKHA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPaymentSettings()
	v.SetDefault("payment.currency", defaults.Currency)
	v.SetDefault("payment.mode", defaults.Mode)
	v.SetDefault("payment.intent", defaults.Intent)
	v.SetDefault("payment.minimumAmount", defaults.MinimumAmount)
	v.SetDefault("payment.tokenTTL", defaults.TokenTTL)
	v.SetDefault("payment.reconcileAfter", defaults.ReconcileAfter)
	v.SetDefault("payment.abandonAfter", defaults.AbandonAfter)
	v.SetDefault("payment.grantRetryBase", defaults.GrantRetryBase)
	v.SetDefault("payment.grantRetryMax", defaults.GrantRetryMax)
	v.SetDefault("payment.grantMaxAttempts", defaults.GrantMaxAttempts)
	v.SetDefault("payment.checkoutRate", defaults.CheckoutRate)
	v.SetDefault("payment.checkoutBurst", defaults.CheckoutBurst)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg PaymentSettings
	if err := v.UnmarshalKey("payment", &cfg); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if err := validatePaymentSettings(cfg); err != nil {
		return nil, err
	}

	holder := &PaymentSettingsHolder{}
	holder.current.Store(cfg)

	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PaymentSettings
		if err := v.UnmarshalKey("payment", &updated); err != nil {
			log.Printf("[payment-config] reload failed: %v", err)
			return
		}
		updated = updated.withDefaults()
		if err := validatePaymentSettings(updated); err != nil {
			log.Printf("[payment-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[payment-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *PaymentSettingsHolder) Get() PaymentSettings {
	if h == nil {
		return DefaultPaymentSettings()
	}
	cfg, ok := h.current.Load().(PaymentSettings)
	if !ok {
		return DefaultPaymentSettings()
	}
	return cfg
}

func (c PaymentSettings) withDefaults() PaymentSettings {
	defaults := DefaultPaymentSettings()
	if strings.TrimSpace(c.Currency) == "" {
		c.Currency = defaults.Currency
	}
	if strings.TrimSpace(c.Mode) == "" {
		c.Mode = defaults.Mode
	}
	if strings.TrimSpace(c.Intent) == "" {
		c.Intent = defaults.Intent
	}
	if c.MinimumAmount <= 0 {
		c.MinimumAmount = defaults.MinimumAmount
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = defaults.TokenTTL
	}
	if c.ReconcileAfter <= 0 {
		c.ReconcileAfter = defaults.ReconcileAfter
	}
	if c.AbandonAfter <= 0 {
		c.AbandonAfter = defaults.AbandonAfter
	}
	if c.GrantRetryBase <= 0 {
		c.GrantRetryBase = defaults.GrantRetryBase
	}
	if c.GrantRetryMax <= 0 {
		c.GrantRetryMax = defaults.GrantRetryMax
	}
	if c.GrantMaxAttempts <= 0 {
		c.GrantMaxAttempts = defaults.GrantMaxAttempts
	}
	if c.CheckoutRate <= 0 {
		c.CheckoutRate = defaults.CheckoutRate
	}
	if c.CheckoutBurst <= 0 {
		c.CheckoutBurst = defaults.CheckoutBurst
	}
	return c
}

func validatePaymentSettings(cfg PaymentSettings) error {
	if len(strings.TrimSpace(cfg.Currency)) != 3 {
		return errors.New("payment.currency must be an ISO 4217 code")
	}
	if cfg.TokenTTL > time.Hour {
		return errors.New("payment.tokenTTL cannot exceed the gateway token lifetime of 1h")
	}
	if cfg.AbandonAfter < cfg.ReconcileAfter {
		return errors.New("payment.abandonAfter must not be shorter than payment.reconcileAfter")
	}
	if cfg.GrantRetryMax < cfg.GrantRetryBase {
		return errors.New("payment.grantRetryMax must not be shorter than payment.grantRetryBase")
	}
	return nil
}
