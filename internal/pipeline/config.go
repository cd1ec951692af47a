package pipeline

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/parsebank/statement-parser/constants"
	"github.com/parsebank/statement-parser/internal/common"
)

// Config is the explicit per-run configuration object. There are no
// process-wide settings behind it; callers pass a value into every run.
type Config struct {
	AccountID string
	Currency  string

	Locale      string
	SignPolicy  string
	DateLayouts []string

	TrustTiers       map[constants.ExtractorKind]int
	ExtractorTimeout time.Duration
	Concurrency      bool

	AmountEpsilon  decimal.Decimal // dispute tolerance during merge
	BalanceEpsilon decimal.Decimal // running balance warning band
	RejectDelta    decimal.Decimal // running balance rejection band

	TemplatesDir string
}

func DefaultConfig() Config {
	return Config{
		Currency:         "GBP",
		Locale:           "en-GB",
		SignPolicy:       "auto",
		TrustTiers:       constants.DefaultTrustTiers,
		ExtractorTimeout: 60 * time.Second,
		Concurrency:      true,
		AmountEpsilon:    decimal.New(1, -2),
		BalanceEpsilon:   decimal.New(5, -3),
		RejectDelta:      decimal.New(100, 0),
	}
}

// fileConfig is the YAML shape. Decimal and duration fields are
// strings so a config file can write "0.01" and "45s".
type fileConfig struct {
	AccountID        string         `yaml:"account_id"`
	Currency         string         `yaml:"currency"`
	Locale           string         `yaml:"locale"`
	SignPolicy       string         `yaml:"sign_policy"`
	DateLayouts      []string       `yaml:"date_layouts"`
	TrustTiers       map[string]int `yaml:"trust_tiers"`
	ExtractorTimeout string         `yaml:"extractor_timeout"`
	Concurrency      *bool          `yaml:"concurrency"`
	AmountEpsilon    string         `yaml:"amount_epsilon"`
	BalanceEpsilon   string         `yaml:"balance_epsilon"`
	RejectDelta      string         `yaml:"reject_delta"`
	TemplatesDir     string         `yaml:"templates_dir"`
}

// LoadConfig overlays a YAML run-config file onto the defaults.
// Unset keys keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, common.NewAppError(common.CodeConfigError, "read config file", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return cfg, common.NewAppError(common.CodeConfigError, "parse config file", err)
	}

	if fc.AccountID != "" {
		cfg.AccountID = fc.AccountID
	}
	if fc.Currency != "" {
		cfg.Currency = fc.Currency
	}
	if fc.Locale != "" {
		cfg.Locale = fc.Locale
	}
	if fc.SignPolicy != "" {
		cfg.SignPolicy = fc.SignPolicy
	}
	if len(fc.DateLayouts) > 0 {
		cfg.DateLayouts = fc.DateLayouts
	}
	if len(fc.TrustTiers) > 0 {
		tiers := make(map[constants.ExtractorKind]int, len(fc.TrustTiers))
		for k, v := range constants.DefaultTrustTiers {
			tiers[k] = v
		}
		for k, v := range fc.TrustTiers {
			tiers[constants.ExtractorKind(k)] = v
		}
		cfg.TrustTiers = tiers
	}
	if fc.ExtractorTimeout != "" {
		d, err := time.ParseDuration(fc.ExtractorTimeout)
		if err != nil {
			return cfg, common.NewAppError(common.CodeConfigError,
				fmt.Sprintf("extractor_timeout %q", fc.ExtractorTimeout), err)
		}
		cfg.ExtractorTimeout = d
	}
	if fc.Concurrency != nil {
		cfg.Concurrency = *fc.Concurrency
	}
	for _, f := range []struct {
		raw  string
		dst  *decimal.Decimal
		name string
	}{
		{fc.AmountEpsilon, &cfg.AmountEpsilon, "amount_epsilon"},
		{fc.BalanceEpsilon, &cfg.BalanceEpsilon, "balance_epsilon"},
		{fc.RejectDelta, &cfg.RejectDelta, "reject_delta"},
	} {
		if f.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return cfg, common.NewAppError(common.CodeConfigError,
				fmt.Sprintf("%s %q", f.name, f.raw), err)
		}
		*f.dst = d
	}
	if fc.TemplatesDir != "" {
		cfg.TemplatesDir = fc.TemplatesDir
	}
	return cfg, nil
}
