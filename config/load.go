package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"exec-engine-go/infrastructure/logger"
	"exec-engine-go/inventory"
	"exec-engine-go/market"
)

// 场所类型
const (
	VenueSandbox        = "sandbox"
	VenueBinanceFutures = "binance_futures"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env         string             `yaml:"env"`
	Logger      logger.Config      `yaml:"logger"`
	Monitor     MonitorConfig      `yaml:"monitor"`
	API         APIConfig          `yaml:"api"`
	Engine      EngineConfig       `yaml:"engine"`
	Alerts      AlertConfig        `yaml:"alerts"`
	Instruments []InstrumentConfig `yaml:"instruments"`
	Accounts    []AccountConfig    `yaml:"accounts"`
	Venues      []VenueConfig      `yaml:"venues"`
}

type MonitorConfig struct {
	Addr      string `yaml:"addr"` // 为空时不单独监听，/metrics 挂在 API 上
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

type APIConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type EngineConfig struct {
	QueueSize   int           `yaml:"queue_size"`
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

// AlertConfig 同一告警在 throttle 内只发送一次。
type AlertConfig struct {
	Throttle time.Duration `yaml:"throttle"`
}

// InstrumentConfig 合约静态参数，数值以字符串保存以免精度损失。
type InstrumentConfig struct {
	ID             string `yaml:"id"` // SYMBOL.VENUE
	BaseCurrency   string `yaml:"base_currency"`
	QuoteCurrency  string `yaml:"quote_currency"`
	PricePrecision int32  `yaml:"price_precision"`
	SizePrecision  int32  `yaml:"size_precision"`
	TickSize       string `yaml:"tick_size"`
	StepSize       string `yaml:"step_size"`
	Margin         bool   `yaml:"margin"`
}

type AccountConfig struct {
	ID           string            `yaml:"id"`
	Venue        string            `yaml:"venue"`
	Type         string            `yaml:"type"` // CASH / MARGIN
	BaseCurrency string            `yaml:"base_currency"`
	Balances     map[string]string `yaml:"balances"`
}

type VenueConfig struct {
	Name      string `yaml:"name"`
	Kind      string `yaml:"kind"` // sandbox / binance_futures
	AccountID string `yaml:"account_id"`

	// sandbox
	MakerFee string `yaml:"maker_fee"`
	TakerFee string `yaml:"taker_fee"`

	// binance_futures
	BaseURL      string  `yaml:"base_url"`
	WSEndpoint   string  `yaml:"ws_endpoint"`
	APIKey       string  `yaml:"api_key"`
	APISecret    string  `yaml:"api_secret"`
	RecvWindowMs int64   `yaml:"recv_window_ms"`
	RateLimit    float64 `yaml:"rate_limit"`
	Burst        int     `yaml:"burst"`
	QuoteFeed    bool    `yaml:"quote_feed"` // 订阅 bookTicker 作为行情
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	cfg, err := read(path)
	if err != nil {
		return cfg, err
	}
	return cfg, Validate(cfg)
}

// LoadWithEnvOverrides loads config then overrides venue credentials from
// EXEC_<VENUE>_API_KEY / EXEC_<VENUE>_API_SECRET if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := read(path)
	if err != nil {
		return cfg, err
	}
	for i := range cfg.Venues {
		v := &cfg.Venues[i]
		prefix := "EXEC_" + envName(v.Name)
		if s := os.Getenv(prefix + "_API_KEY"); s != "" {
			v.APIKey = s
		}
		if s := os.Getenv(prefix + "_API_SECRET"); s != "" {
			v.APISecret = s
		}
	}
	return cfg, Validate(cfg)
}

func read(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	return cfg, nil
}

func envName(venue string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, venue)
}

// Instrument 转换为领域对象。
func (c InstrumentConfig) Instrument() (market.Instrument, error) {
	id, err := market.ParseInstrumentID(c.ID)
	if err != nil {
		return market.Instrument{}, err
	}
	tick, err := optionalDecimal(c.TickSize)
	if err != nil {
		return market.Instrument{}, fmt.Errorf("instrument %s tick_size: %w", c.ID, err)
	}
	step, err := optionalDecimal(c.StepSize)
	if err != nil {
		return market.Instrument{}, fmt.Errorf("instrument %s step_size: %w", c.ID, err)
	}
	return market.Instrument{
		ID:             id,
		BaseCurrency:   c.BaseCurrency,
		QuoteCurrency:  c.QuoteCurrency,
		PricePrecision: c.PricePrecision,
		SizePrecision:  c.SizePrecision,
		TickSize:       tick,
		StepSize:       step,
		Margin:         c.Margin,
	}, nil
}

// Account 转换为带初始余额的账户。
func (c AccountConfig) Account() (*inventory.Account, error) {
	acc := inventory.NewAccount(inventory.AccountID(c.ID), inventory.AccountType(strings.ToUpper(c.Type)), c.BaseCurrency)
	for cur, amount := range c.Balances {
		v, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("account %s balance %s: %w", c.ID, cur, err)
		}
		acc.SetBalance(cur, v)
	}
	return acc, nil
}

// Fees 沙盒 maker/taker 费率。
func (c VenueConfig) Fees() (maker, taker decimal.Decimal, err error) {
	if maker, err = optionalDecimal(c.MakerFee); err != nil {
		return maker, taker, fmt.Errorf("venue %s maker_fee: %w", c.Name, err)
	}
	if taker, err = optionalDecimal(c.TakerFee); err != nil {
		return maker, taker, fmt.Errorf("venue %s taker_fee: %w", c.Name, err)
	}
	return maker, taker, nil
}

// InstrumentsFor 某场所下的合约。
func (c AppConfig) InstrumentsFor(venue string) []InstrumentConfig {
	var out []InstrumentConfig
	for _, ic := range c.Instruments {
		if strings.HasSuffix(ic.ID, "."+venue) {
			out = append(out, ic)
		}
	}
	return out
}

// AddedInstruments next 中新增（prev 中没有）的合约。
func AddedInstruments(prev, next AppConfig) []InstrumentConfig {
	seen := make(map[string]bool, len(prev.Instruments))
	for _, ic := range prev.Instruments {
		seen[ic.ID] = true
	}
	var out []InstrumentConfig
	for _, ic := range next.Instruments {
		if !seen[ic.ID] {
			out = append(out, ic)
		}
	}
	return out
}

func optionalDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
