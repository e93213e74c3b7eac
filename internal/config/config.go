// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	App        AppConfig         `yaml:"app"`
	Venue      VenueConfig       `yaml:"venue"`
	Allocator  AllocatorConfig   `yaml:"allocator"`
	Orders     OrdersConfig      `yaml:"orders"`
	Strategies StrategiesConfig  `yaml:"strategies"`
	Width      map[string]float64 `yaml:"width"`
	Recorder   RecorderConfig    `yaml:"recorder"`
	Monitor    MonitorConfig     `yaml:"monitor"`
	Telemetry  TelemetryConfig   `yaml:"telemetry"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	LogLevel       string `yaml:"log_level"`
	PollIntervalMs int    `yaml:"poll_interval_ms"`
	DryRun         bool   `yaml:"dry_run"`
}

// VenueConfig contains the simulator API connection settings
type VenueConfig struct {
	APIKey    string  `yaml:"api_key"`
	BaseURL   string  `yaml:"base_url"`
	TimeoutMs int     `yaml:"timeout_ms"`
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// AllocatorConfig contains the allocation engine parameters. It is frozen at
// startup; degenerate values are configuration bugs and fail the load.
type AllocatorConfig struct {
	GrossLimit          float64            `yaml:"gross_limit"`
	NetLimit            float64            `yaml:"net_limit"`
	MaxShares           map[string]float64 `yaml:"max_shares"`
	TopN                int                `yaml:"top_n"`
	TurnoverPct         float64            `yaml:"turnover_pct"`
	HorizonBars         int                `yaml:"horizon_bars"`
	SwitchLambda        float64            `yaml:"switch_lambda"`
	RegimeCutoff        float64            `yaml:"regime_cutoff"`
	WMax                float64            `yaml:"w_max"`
	ExitTurnoverMult    float64            `yaml:"exit_turnover_mult"`
	TargetVol           float64            `yaml:"target_vol"`
	VolHalflife         int                `yaml:"vol_halflife"`
	DDThrottleThreshold float64            `yaml:"dd_throttle_threshold"`
	DDThrottleFactor    float64            `yaml:"dd_throttle_factor"`
}

// OrdersConfig contains order lifecycle manager settings
type OrdersConfig struct {
	CancelCooldownMs  int `yaml:"cancel_cooldown_ms"`
	UnknownOrderTTLMs int `yaml:"unknown_order_ttl_ms"`
}

// StrategiesConfig lists the signal sources to run
type StrategiesConfig struct {
	Pairs     []PairConfig     `yaml:"pairs"`
	BasketNav *BasketNavConfig `yaml:"basket_nav"`
}

// PairConfig parameterizes one pair-cointegration spread
type PairConfig struct {
	A        string  `yaml:"a"`
	B        string  `yaml:"b"`
	C        float64 `yaml:"c"`
	Beta     float64 `yaml:"beta"`
	Std      float64 `yaml:"std"`
	EntryStd float64 `yaml:"entry_std"`
	EntryAbs float64 `yaml:"entry_abs"`
	Enabled  bool    `yaml:"enabled"`
}

// BasketNavConfig parameterizes the basket-vs-NAV spread
type BasketNavConfig struct {
	EntryDollars float64 `yaml:"entry_dollars"`
	Enabled      bool    `yaml:"enabled"`
}

// RecorderConfig contains session recorder settings
type RecorderConfig struct {
	Enabled   bool   `yaml:"enabled"`
	OutputDir string `yaml:"output_dir"`
	BookDepth int    `yaml:"book_depth"`
	Workers   int    `yaml:"workers"`
}

// MonitorConfig contains the live diagnostics websocket server settings
type MonitorConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := os.Expand(string(data), os.Getenv)

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "INFO"
	}
	if c.App.PollIntervalMs == 0 {
		c.App.PollIntervalMs = 500
	}
	if c.Venue.TimeoutMs == 0 {
		c.Venue.TimeoutMs = 5000
	}
	if c.Venue.RateLimit == 0 {
		c.Venue.RateLimit = 25
	}
	if c.Venue.RateBurst == 0 {
		c.Venue.RateBurst = 30
	}
	if c.Orders.CancelCooldownMs == 0 {
		c.Orders.CancelCooldownMs = 250
	}
	if c.Orders.UnknownOrderTTLMs == 0 {
		c.Orders.UnknownOrderTTLMs = 2000
	}
	if c.Allocator.ExitTurnoverMult == 0 {
		c.Allocator.ExitTurnoverMult = 2.0
	}
	if c.Recorder.BookDepth == 0 {
		c.Recorder.BookDepth = 50
	}
	if c.Recorder.Workers == 0 {
		c.Recorder.Workers = 4
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errs []string

	if err := c.validateAppConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateVenueConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateAllocatorConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateOrdersConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateStrategiesConfig(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}

	return nil
}

func (c *Config) validateAppConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.App.LogLevel)) {
		return ValidationError{
			Field:   "app.log_level",
			Value:   c.App.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	if c.App.PollIntervalMs < 50 || c.App.PollIntervalMs > 60000 {
		return ValidationError{
			Field:   "app.poll_interval_ms",
			Value:   c.App.PollIntervalMs,
			Message: "must be between 50 and 60000",
		}
	}
	return nil
}

func (c *Config) validateVenueConfig() error {
	if c.Venue.BaseURL == "" {
		return ValidationError{
			Field:   "venue.base_url",
			Message: "venue base URL is required",
		}
	}
	if c.Venue.APIKey == "" {
		return ValidationError{
			Field:   "venue.api_key",
			Message: "venue API key is required",
		}
	}
	return nil
}

func (c *Config) validateAllocatorConfig() error {
	a := &c.Allocator
	if a.GrossLimit <= 0 {
		return ValidationError{Field: "allocator.gross_limit", Value: a.GrossLimit, Message: "must be positive"}
	}
	if a.NetLimit < 0 {
		return ValidationError{Field: "allocator.net_limit", Value: a.NetLimit, Message: "must be non-negative"}
	}
	if a.HorizonBars <= 0 {
		return ValidationError{Field: "allocator.horizon_bars", Value: a.HorizonBars, Message: "must be positive"}
	}
	if a.WMax <= 0 || a.WMax > 1 {
		return ValidationError{Field: "allocator.w_max", Value: a.WMax, Message: "must be in (0, 1]"}
	}
	if a.SwitchLambda < 0 {
		return ValidationError{Field: "allocator.switch_lambda", Value: a.SwitchLambda, Message: "must be non-negative"}
	}
	if a.TopN < 1 {
		return ValidationError{Field: "allocator.top_n", Value: a.TopN, Message: "must be at least 1"}
	}
	if a.TurnoverPct <= 0 || a.TurnoverPct > 1 {
		return ValidationError{Field: "allocator.turnover_pct", Value: a.TurnoverPct, Message: "must be in (0, 1]"}
	}
	if a.RegimeCutoff <= 0 {
		return ValidationError{Field: "allocator.regime_cutoff", Value: a.RegimeCutoff, Message: "must be positive"}
	}
	if a.ExitTurnoverMult < 1 {
		return ValidationError{Field: "allocator.exit_turnover_mult", Value: a.ExitTurnoverMult, Message: "must be at least 1; exits are never throttled harder than entries"}
	}
	if a.TargetVol < 0 || (a.TargetVol > 0 && a.VolHalflife <= 0) {
		return ValidationError{Field: "allocator.vol_halflife", Value: a.VolHalflife, Message: "must be positive when target_vol is set"}
	}
	if a.DDThrottleThreshold > 0 && (a.DDThrottleFactor <= 0 || a.DDThrottleFactor > 1) {
		return ValidationError{Field: "allocator.dd_throttle_factor", Value: a.DDThrottleFactor, Message: "must be in (0, 1] when the drawdown throttle is enabled"}
	}
	if len(a.MaxShares) == 0 {
		return ValidationError{Field: "allocator.max_shares", Message: "at least one instrument share cap is required"}
	}
	for ticker, cap := range a.MaxShares {
		if cap <= 0 {
			return ValidationError{Field: fmt.Sprintf("allocator.max_shares.%s", ticker), Value: cap, Message: "must be positive"}
		}
	}
	return nil
}

func (c *Config) validateOrdersConfig() error {
	if c.Orders.CancelCooldownMs < 0 {
		return ValidationError{Field: "orders.cancel_cooldown_ms", Value: c.Orders.CancelCooldownMs, Message: "must be non-negative"}
	}
	if c.Orders.UnknownOrderTTLMs <= 0 {
		return ValidationError{Field: "orders.unknown_order_ttl_ms", Value: c.Orders.UnknownOrderTTLMs, Message: "must be positive"}
	}
	return nil
}

func (c *Config) validateStrategiesConfig() error {
	for i, p := range c.Strategies.Pairs {
		if !p.Enabled {
			continue
		}
		if p.A == "" || p.B == "" {
			return ValidationError{
				Field:   fmt.Sprintf("strategies.pairs[%d]", i),
				Message: "both legs are required",
			}
		}
		if p.Std <= 0 {
			return ValidationError{
				Field:   fmt.Sprintf("strategies.pairs[%d].std", i),
				Value:   p.Std,
				Message: "must be positive",
			}
		}
		if p.EntryStd <= 0 && p.EntryAbs <= 0 {
			return ValidationError{
				Field:   fmt.Sprintf("strategies.pairs[%d]", i),
				Message: "one of entry_std or entry_abs is required",
			}
		}
	}
	return nil
}

// String returns a string representation of the configuration (API key masked)
func (c *Config) String() string {
	configCopy := *c
	configCopy.Venue.APIKey = maskString(configCopy.Venue.APIKey)

	data, _ := yaml.Marshal(configCopy)
	return string(data)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func maskString(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

// DefaultConfig returns a default configuration for testing
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			LogLevel:       "INFO",
			PollIntervalMs: 500,
		},
		Venue: VenueConfig{
			APIKey:    "test-key",
			BaseURL:   "http://localhost:9999",
			TimeoutMs: 5000,
			RateLimit: 25,
			RateBurst: 30,
		},
		Allocator: AllocatorConfig{
			GrossLimit: 50_000_000,
			NetLimit:   10_000_000,
			MaxShares: map[string]float64{
				"AAA": 200_000, "BBB": 200_000, "CCC": 200_000,
				"DDD": 200_000, "ETF": 300_000, "IND": 200_000,
			},
			TopN:             4,
			TurnoverPct:      0.05,
			HorizonBars:      20,
			SwitchLambda:     0.10,
			RegimeCutoff:     2.0,
			WMax:             0.5,
			ExitTurnoverMult: 2.0,
		},
		Orders: OrdersConfig{
			CancelCooldownMs:  250,
			UnknownOrderTTLMs: 2000,
		},
		Width: map[string]float64{
			"AAA": 0.02, "BBB": 0.02, "CCC": 0.02,
			"DDD": 0.02, "ETF": 0.03, "IND": 0.05,
		},
	}
}
