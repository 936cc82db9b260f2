package infra

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"gridmaker_go/internal/domain"
)

// Outlier filter reference / out-of-range price modes.
const (
	RefModeVWAP       = "vwap"
	RefModeTickerMid  = "ticker_mid"
	RefModeNearestBid = "nearest_bid"
	RefModeNearestAsk = "nearest_ask"
	RefModeLast       = "last"
	RefModeAuto       = "auto"

	ClampUp   = "up"   // clamp only inflated mids
	ClampBoth = "both" // also clamp large downward moves
)

// Config holds the whole application configuration.
// Secrets are overridden from environment variables after loading.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Venue struct {
		RestURL   string `yaml:"rest_url"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		Symbol    string `yaml:"symbol"` // "BASE/QUOTE"
	} `yaml:"venue"`

	Storage struct {
		DBPath  string `yaml:"db_path"`
		LogFile string `yaml:"log_file"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	Metrics struct {
		Listen string `yaml:"listen"` // e.g. "localhost:9090", empty disables
	} `yaml:"metrics"`

	Bot struct {
		GridLevels                int             `yaml:"grid_levels"`
		GridSpread                decimal.Decimal `yaml:"grid_spread"`
		MinOrderSize              decimal.Decimal `yaml:"min_order_size"`
		MaxPosition               decimal.Decimal `yaml:"max_position"`
		PollingIntervalSec        int             `yaml:"polling_interval_sec"`
		TargetInventoryRatio      decimal.Decimal `yaml:"target_inventory_ratio"`
		InventoryTolerance        decimal.Decimal `yaml:"inventory_tolerance"`
		MaxOrderbookDeviation     decimal.Decimal `yaml:"max_orderbook_deviation"`
		OutlierFilterReference    string          `yaml:"outlier_filter_reference"`
		OutOfRangePricingFallback bool            `yaml:"out_of_range_pricing_fallback"`
		OutOfRangePriceMode       string          `yaml:"out_of_range_price_mode"`
		ClampPolicy               string          `yaml:"clamp_policy"`
		SettlementTimeoutSec      int             `yaml:"settlement_timeout_sec"`
	} `yaml:"bot"`
}

// LoadConfig reads and parses the configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	b := &c.Bot
	if b.GridLevels == 0 {
		b.GridLevels = 3
	}
	if b.GridSpread.IsZero() {
		b.GridSpread = decimal.RequireFromString("0.001")
	}
	if b.PollingIntervalSec == 0 {
		b.PollingIntervalSec = 30
	}
	if b.TargetInventoryRatio.IsZero() {
		b.TargetInventoryRatio = decimal.RequireFromString("0.5")
	}
	if b.InventoryTolerance.IsZero() {
		b.InventoryTolerance = decimal.RequireFromString("0.15")
	}
	if b.OutlierFilterReference == "" {
		b.OutlierFilterReference = RefModeVWAP
	}
	if b.OutOfRangePriceMode == "" {
		b.OutOfRangePriceMode = RefModeVWAP
	}
	if b.ClampPolicy == "" {
		b.ClampPolicy = ClampUp
	}
	if b.SettlementTimeoutSec == 0 {
		b.SettlementTimeoutSec = 60
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = "data/market_maker.db"
	}
	if c.Storage.LogFile == "" {
		c.Storage.LogFile = "logs/market_maker.log"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Venue.RestURL == "" || !strings.HasPrefix(c.Venue.RestURL, "http") {
		return &domain.ConfigError{Field: "venue.rest_url", Err: fmt.Errorf("invalid URL %q", c.Venue.RestURL)}
	}
	if len(strings.Split(c.Venue.Symbol, "/")) != 2 {
		return &domain.ConfigError{Field: "venue.symbol", Err: fmt.Errorf("want BASE/QUOTE, got %q", c.Venue.Symbol)}
	}

	b := &c.Bot
	if b.GridLevels <= 0 {
		return &domain.ConfigError{Field: "bot.grid_levels", Err: errors.New("must be positive")}
	}
	if !b.GridSpread.IsPositive() {
		return &domain.ConfigError{Field: "bot.grid_spread", Err: errors.New("must be positive")}
	}
	if !b.MinOrderSize.IsPositive() {
		return &domain.ConfigError{Field: "bot.min_order_size", Err: errors.New("must be positive")}
	}
	if b.PollingIntervalSec <= 0 {
		return &domain.ConfigError{Field: "bot.polling_interval_sec", Err: errors.New("must be positive")}
	}
	if b.TargetInventoryRatio.IsNegative() || b.TargetInventoryRatio.GreaterThan(decimal.NewFromInt(1)) {
		return &domain.ConfigError{Field: "bot.target_inventory_ratio", Err: errors.New("must be within [0,1]")}
	}
	switch b.OutlierFilterReference {
	case RefModeVWAP, RefModeTickerMid, RefModeNearestBid, RefModeNearestAsk, RefModeLast:
	default:
		return &domain.ConfigError{Field: "bot.outlier_filter_reference", Err: fmt.Errorf("unknown mode %q", b.OutlierFilterReference)}
	}
	switch b.OutOfRangePriceMode {
	case RefModeVWAP, RefModeNearestBid, RefModeNearestAsk, RefModeAuto:
	default:
		return &domain.ConfigError{Field: "bot.out_of_range_price_mode", Err: fmt.Errorf("unknown mode %q", b.OutOfRangePriceMode)}
	}
	switch b.ClampPolicy {
	case ClampUp, ClampBoth:
	default:
		return &domain.ConfigError{Field: "bot.clamp_policy", Err: fmt.Errorf("unknown policy %q", b.ClampPolicy)}
	}

	// A deviation band narrower than the ladder span would make the bot
	// filter out its own resting orders.
	if b.MaxOrderbookDeviation.IsPositive() {
		span := b.GridSpread.Mul(decimal.NewFromInt(int64(b.GridLevels)))
		if b.MaxOrderbookDeviation.LessThan(span) {
			slog.Warn("max_orderbook_deviation is narrower than the grid span",
				slog.String("max_orderbook_deviation", b.MaxOrderbookDeviation.String()),
				slog.String("grid_span", span.String()),
				slog.String("suggested_minimum", span.Mul(decimal.RequireFromString("1.2")).String()))
		}
	}

	return nil
}

// PollingInterval returns the tick period as a duration.
func (c *Config) PollingInterval() time.Duration {
	return time.Duration(c.Bot.PollingIntervalSec) * time.Second
}

// SettlementTimeout returns the settlement window as a duration.
func (c *Config) SettlementTimeout() time.Duration {
	return time.Duration(c.Bot.SettlementTimeoutSec) * time.Second
}

// BaseQuote splits the configured symbol into base and quote currencies.
func (c *Config) BaseQuote() (string, string) {
	parts := strings.SplitN(c.Venue.Symbol, "/", 2)
	return parts[0], parts[1]
}

// overrideWithEnv replaces secrets with environment values when present.
func overrideWithEnv(cfg *Config) {
	if key := os.Getenv("MM_VENUE_KEY"); key != "" {
		cfg.Venue.AccessKey = key
	}
	if secret := os.Getenv("MM_VENUE_SECRET"); secret != "" {
		cfg.Venue.SecretKey = secret
	}
}
