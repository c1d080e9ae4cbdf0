// Package config loads engine configuration from files and the environment,
// so matching tolerances and batch bounds can be tuned per deployment without
// a rebuild.
package config

import (
	"reflect"
	"strings"

	"bank-reconciliation-engine/internal/matcher"
	"bank-reconciliation-engine/pkg/errors"
	"bank-reconciliation-engine/pkg/logger"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// StoreConfig selects the backing database
type StoreConfig struct {
	// Path is the SQLite database file, or ":memory:" for an ephemeral store.
	Path string `mapstructure:"path"`
}

// Config is the root configuration for the reconciliation engine
type Config struct {
	Matching matcher.MatchingConfig `mapstructure:"matching"`
	Store    StoreConfig            `mapstructure:"store"`
	Logging  logger.Config          `mapstructure:"logging"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Matching: *matcher.DefaultMatchingConfig(),
		Store:    StoreConfig{Path: "reconciliation.db"},
		Logging:  *logger.DefaultConfig(),
	}
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := c.Matching.Validate(); err != nil {
		return err
	}
	if c.Store.Path == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "store.path", "", nil).
			WithSuggestion("Set store.path to a database file or \":memory:\"")
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	return nil
}

// Load reads configuration from the given file (optional) merged over the
// defaults, with RECONCILER_* environment variables taking highest precedence
// (for example RECONCILER_MATCHING_DATE_TOLERANCE_DAYS=5).
func Load(path string) (*Config, error) {
	v := viper.New()

	defaults := Default()
	v.SetDefault("matching.amount_tolerance", "0.01")
	v.SetDefault("matching.date_tolerance_days", defaults.Matching.DateToleranceDays)
	v.SetDefault("matching.min_confidence_score", defaults.Matching.MinConfidenceScore)
	v.SetDefault("matching.date_amount_boundary", defaults.Matching.DateAmountBoundary)
	v.SetDefault("matching.max_bank_transactions", defaults.Matching.MaxBankTransactions)
	v.SetDefault("matching.max_journal_entries", defaults.Matching.MaxJournalEntries)
	v.SetDefault("matching.journal_lookback_days", defaults.Matching.JournalLookbackDays)
	v.SetDefault("matching.weights.amount_weight", defaults.Matching.Weights.AmountWeight)
	v.SetDefault("matching.weights.date_weight", defaults.Matching.Weights.DateWeight)
	v.SetDefault("matching.weights.description_weight", defaults.Matching.Weights.DescriptionWeight)
	v.SetDefault("store.path", defaults.Store.Path)
	v.SetDefault("logging.level", string(defaults.Logging.Level))
	v.SetDefault("logging.format", string(defaults.Logging.Format))

	v.SetEnvPrefix("RECONCILER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "config_file", path, err).
				WithSuggestion("Check that the file exists and is valid YAML, TOML, or JSON")
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, viper.DecodeHook(decimalDecodeHook())); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "config_file", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// decimalDecodeHook converts string and numeric config values into
// decimal.Decimal fields during unmarshalling.
func decimalDecodeHook() mapstructure.DecodeHookFuncType {
	decimalType := reflect.TypeOf(decimal.Decimal{})
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != decimalType {
			return data, nil
		}
		switch value := data.(type) {
		case string:
			return decimal.NewFromString(value)
		case float64:
			return decimal.NewFromFloat(value), nil
		case int:
			return decimal.NewFromInt(int64(value)), nil
		case int64:
			return decimal.NewFromInt(value), nil
		default:
			return data, nil
		}
	}
}
