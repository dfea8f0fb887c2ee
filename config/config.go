// Package config loads the service configuration: struct defaults, then an
// optional YAML file, then environment overrides, then validation.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"fxanalyst/internal/indicator"
	"fxanalyst/internal/logger"
	"fxanalyst/internal/marketdata"
	"fxanalyst/internal/model"
	"fxanalyst/internal/notification"
	"fxanalyst/internal/oracle"
	"fxanalyst/internal/risk"
	"fxanalyst/internal/scheduler"
	"fxanalyst/internal/signal"
	redisstore "fxanalyst/internal/store/redis"
)

// Config holds all application configuration.
type Config struct {
	General    General             `yaml:"general"`
	Timeframes Timeframes          `yaml:"timeframes"`
	History    History             `yaml:"history"`
	Indicator  indicator.Config    `yaml:"indicator"`
	Risk       risk.Config         `yaml:"risk"`
	Signal     signal.Thresholds   `yaml:"signal"`
	Oracle     Oracle              `yaml:"oracle"`
	Session    Session             `yaml:"session"`
	Schedule   scheduler.Config    `yaml:"schedule"`
	Storage    Storage             `yaml:"storage"`
	Redis      redisstore.Config   `yaml:"redis"`
	HTTP       HTTP                `yaml:"http"`
	Notify     notification.Config `yaml:"notify"`
	Log        logger.Config       `yaml:"log"`
	MarketData MarketData          `yaml:"marketdata"`
}

// General identifies the instrument and the local trading day.
type General struct {
	Symbol         string `yaml:"symbol" default:"EURUSD" validate:"required,alphanum"`
	Timezone       string `yaml:"timezone" default:"Europe/Zurich" validate:"required"`
	PricePrecision int    `yaml:"price_precision" default:"5" validate:"gte=1,lte=10"`
}

// Timeframes are the higher, mid and lower analysis timeframes.
type Timeframes struct {
	Higher model.Timeframe `yaml:"higher" default:"H4"`
	Mid    model.Timeframe `yaml:"mid" default:"H1"`
	Lower  model.Timeframe `yaml:"lower" default:"M15"`
}

// History is the candle count fetched per timeframe; 0 derives it from the
// indicator lookback.
type History struct {
	Candles int `yaml:"candles" validate:"gte=0"`
}

// Oracle selects the probability source.
type Oracle struct {
	oracle.Config `yaml:",inline"`

	// Mode is http for the model service or rule for the offline scorer.
	Mode string `yaml:"mode" default:"rule" validate:"oneof=http rule"`
}

// Session toggles the London/New York session score.
type Session struct {
	Filter bool `yaml:"filter" default:"true"`
}

// Storage locates the local stores.
type Storage struct {
	SignalsDir string `yaml:"signals_dir" default:"signals" validate:"required"`

	// Counter is the trade counter backend.
	Counter     string `yaml:"counter" default:"file" validate:"oneof=file redis"`
	CounterFile string `yaml:"counter_file" default:"data/counter_state.json"`
	SQLite      SQLite `yaml:"sqlite"`
}

// SQLite configures the candle store and decision journal.
type SQLite struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"data/fxanalyst.db"`
}

// HTTP configures the API and metrics listeners.
type HTTP struct {
	Addr        string `yaml:"addr" default:":8080"`
	MetricsAddr string `yaml:"metrics_addr" default:":9090"`

	// TOTPSecret enables POST /api/v1/analyze when set.
	TOTPSecret   string `yaml:"totp_secret"`
	ReplayBuffer int    `yaml:"replay_buffer" default:"500" validate:"gt=0"`
}

// MarketData selects the candle source.
type MarketData struct {
	Source    string                     `yaml:"source" default:"synthetic" validate:"oneof=sqlite synthetic"`
	Synthetic marketdata.SyntheticConfig `yaml:"synthetic"`

	// Persist writes fetched candles to SQLite after every cycle.
	Persist bool `yaml:"persist"`
}

// Default returns the configuration with every default applied.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load applies defaults, the YAML file at path (skipped when path is empty),
// environment overrides and validation, in that order.
func Load(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := c.applyEnv(); err != nil {
		return nil, fmt.Errorf("env override: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadDotEnv loads .env style files into the environment. Missing files are
// skipped; variables already set are kept.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
		log.Printf("[config] loaded %s", p)
	}
	return nil
}

var validate = validator.New()

// Validate checks struct tags and the cross-field rules. Timeframe names are
// normalized in place.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	for _, tf := range []*model.Timeframe{&c.Timeframes.Higher, &c.Timeframes.Mid, &c.Timeframes.Lower, &c.MarketData.Synthetic.Base} {
		parsed, err := model.ParseTimeframe(string(*tf))
		if err != nil {
			return err
		}
		*tf = parsed
	}
	if c.Timeframes.Higher.Duration() < c.Timeframes.Mid.Duration() || c.Timeframes.Mid.Duration() < c.Timeframes.Lower.Duration() {
		return fmt.Errorf("timeframes must be ordered higher >= mid >= lower")
	}
	if c.Oracle.Mode == "http" && c.Oracle.URL == "" {
		return fmt.Errorf("oracle.url is required in http mode")
	}
	if c.Storage.Counter == "redis" && !c.Redis.Enabled {
		return fmt.Errorf("storage.counter=redis requires redis.enabled")
	}
	if c.Storage.Counter == "file" && c.Storage.CounterFile == "" {
		return fmt.Errorf("storage.counter_file is required for the file counter")
	}
	if c.MarketData.Source == "sqlite" && !c.Storage.SQLite.Enabled {
		return fmt.Errorf("marketdata.source=sqlite requires storage.sqlite.enabled")
	}
	if _, err := c.Schedule.Calendar(time.UTC); err != nil {
		return err
	}
	return nil
}

// Location returns the configured trading-day timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.General.Timezone)
	if err != nil {
		return nil, fmt.Errorf("general.timezone: %w", err)
	}
	return loc, nil
}

func (c *Config) applyEnv() error {
	c.General.Symbol = getEnv("FX_SYMBOL", c.General.Symbol)
	c.General.Timezone = getEnv("FX_TIMEZONE", c.General.Timezone)

	c.Oracle.Mode = getEnv("ORACLE_MODE", c.Oracle.Mode)
	c.Oracle.URL = getEnv("ORACLE_URL", c.Oracle.URL)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Storage.SQLite.Path = getEnv("SQLITE_PATH", c.Storage.SQLite.Path)
	c.Storage.SignalsDir = getEnv("SIGNALS_DIR", c.Storage.SignalsDir)

	c.HTTP.Addr = getEnv("HTTP_ADDR", c.HTTP.Addr)
	c.HTTP.MetricsAddr = getEnv("METRICS_ADDR", c.HTTP.MetricsAddr)
	c.HTTP.TOTPSecret = getEnv("API_TOTP_SECRET", c.HTTP.TOTPSecret)

	c.Notify.TelegramToken = getEnv("TELEGRAM_TOKEN", c.Notify.TelegramToken)
	c.Notify.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", c.Notify.TelegramChatID)
	c.Notify.WebhookURL = getEnv("WEBHOOK_URL", c.Notify.WebhookURL)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)

	var err error
	if c.Redis.Enabled, err = getEnvBool("REDIS_ENABLED", c.Redis.Enabled); err != nil {
		return err
	}
	if c.Oracle.Timeout, err = getEnvDuration("ORACLE_TIMEOUT", c.Oracle.Timeout); err != nil {
		return err
	}
	if c.Risk.MaxTradesPerDay, err = getEnvInt("RISK_MAX_TRADES_PER_DAY", c.Risk.MaxTradesPerDay); err != nil {
		return err
	}
	if c.Risk.MinRR, err = getEnvFloat("RISK_MIN_RR", c.Risk.MinRR); err != nil {
		return err
	}
	if c.Risk.SLATRFactor, err = getEnvFloat("RISK_SL_ATR_FACTOR", c.Risk.SLATRFactor); err != nil {
		return err
	}
	if c.Schedule.IntervalMinutes, err = getEnvInt("SCHEDULE_INTERVAL_MINUTES", c.Schedule.IntervalMinutes); err != nil {
		return err
	}
	if v := os.Getenv("SCHEDULE_WEEKDAYS"); v != "" {
		c.Schedule.Weekdays = splitList(v)
	}
	return nil
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
