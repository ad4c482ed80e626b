// Package config loads the kiosk configuration with Viper: a YAML file
// plus environment-variable overrides. Secrets (API keys, database URL)
// come from the environment; the file carries the store-level tuning
// (rates, bundle rules, idle timings).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/jcmexdev/kiosk-checkout/internal/catalog"
	"github.com/jcmexdev/kiosk-checkout/internal/gateway/clover"
	"github.com/jcmexdev/kiosk-checkout/internal/gateway/printer"
	"github.com/jcmexdev/kiosk-checkout/internal/gateway/stripe"
	"github.com/jcmexdev/kiosk-checkout/internal/kiosk"
	"github.com/jcmexdev/kiosk-checkout/internal/pricing"
)

type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`

	DatabaseURL string `mapstructure:"database_url"`

	RedisAddr  string        `mapstructure:"redis_addr"`
	CatalogTTL time.Duration `mapstructure:"catalog_ttl"`

	OplogPath string `mapstructure:"oplog_path"`

	Pricing pricing.Rates  `mapstructure:"pricing"`
	Session kiosk.Config   `mapstructure:"session"`
	Stripe  stripe.Config  `mapstructure:"stripe"`
	Clover  clover.Config  `mapstructure:"clover"`
	Printer printer.Config `mapstructure:"printer"`

	Bundles []catalog.BundleRule `mapstructure:"bundles"`
}

// Load initialises and reads the configuration using Viper.
func Load(cfgFile string) (*Config, error) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Secrets never appear in the YAML file and have no defaults, so
	// Unmarshal only sees them when they are bound explicitly. The
	// replacer maps e.g. stripe.secret_key to STRIPE_SECRET_KEY.
	for _, key := range []string{
		"database_url",
		"stripe.secret_key",
		"stripe.reader_id",
		"clover.api_token",
		"clover.merchant_id",
		"clover.tender_id",
	} {
		if err := viper.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	decoderConfigOption := viper.DecoderConfigOption(func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			dc.DecodeHook,
			mapstructure.StringToTimeDurationHookFunc(),
		)
	})
	if err := viper.Unmarshal(&cfg, decoderConfigOption); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("listen_addr", ":8080")
	viper.SetDefault("redis_addr", "localhost:6379")
	viper.SetDefault("catalog_ttl", "5m")
	viper.SetDefault("oplog_path", "./data/checkout.db")

	viper.SetDefault("pricing.tax_rate", pricing.DefaultRates.Tax)
	viper.SetDefault("pricing.card_fee_rate", pricing.DefaultRates.CardFee)

	viper.SetDefault("session.idle_timeout", "90s")
	viper.SetDefault("session.success_display", "6s")
	viper.SetDefault("session.togo_table_label", "")

	viper.SetDefault("stripe.poll_attempts", 30)
	viper.SetDefault("stripe.poll_interval", "2s")

	viper.SetDefault("printer.url", "http://localhost:4000/print")
}
