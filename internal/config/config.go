// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// PollLimit is the number of client poll requests allowed per user and window.
	PollLimit  int           `yaml:"poll_limit"`
	PollWindow time.Duration `yaml:"poll_window"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL     string `yaml:"url"`
	Migrate bool   `yaml:"migrate"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type PaynowConfig struct {
	IntegrationID  string `yaml:"integration_id"`
	IntegrationKey string `yaml:"integration_key"`
	BaseURL        string `yaml:"base_url"`
	ResultURL      string `yaml:"result_url"`
	ReturnURL      string `yaml:"return_url"`
}

type PaymentConfig struct {
	Gateway        string        `yaml:"gateway"` // paynow | noop
	Currency       string        `yaml:"currency"`
	GatewayTimeout time.Duration `yaml:"gateway_timeout"`
	StaleAfter     time.Duration `yaml:"stale_after"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	SweepBatch     int           `yaml:"sweep_batch"`
	PollRate       float64       `yaml:"poll_rate"`
	PollBurst      int           `yaml:"poll_burst"`
	Paynow         PaynowConfig  `yaml:"paynow"`
}

type BillingConfig struct {
	Timezone           string `yaml:"timezone"`
	ChargeAt           string `yaml:"charge_at"`   // HH:MM local time
	ReminderAt         string `yaml:"reminder_at"` // HH:MM local time
	ReminderWindowDays int    `yaml:"reminder_window_days"`
	ReminderMode       string `yaml:"reminder_mode"` // once_per_cycle | daily
}

type EmailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	Workers  int    `yaml:"workers"`
}

type TelegramConfig struct {
	Token       string `yaml:"token"`
	AlertChatID int64  `yaml:"alert_chat_id"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Payment  PaymentConfig  `yaml:"payment"`
	Billing  BillingConfig  `yaml:"billing"`
	Email    EmailConfig    `yaml:"email"`
	Telegram TelegramConfig `yaml:"telegram"`
	Auth     AuthConfig     `yaml:"auth"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Language string         `yaml:"language"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig() (*Config, error) {
	var configPath string = ""
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// Parse decodes YAML, applies environment overrides and defaults, then validates.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	override := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	override(&c.Database.URL, "DATABASE_URL")
	override(&c.Redis.URL, "REDIS_URL")
	override(&c.Redis.Password, "REDIS_PASSWORD")
	override(&c.Payment.Paynow.IntegrationID, "PAYNOW_INTEGRATION_ID")
	override(&c.Payment.Paynow.IntegrationKey, "PAYNOW_INTEGRATION_KEY")
	override(&c.Email.Password, "SMTP_PASSWORD")
	override(&c.Auth.JWTSecret, "JWT_SECRET")
	override(&c.Telegram.Token, "TELEGRAM_TOKEN")
}

func (c *Config) applyDefaults() {
	if c.HTTP.Port <= 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.RequestTimeout <= 0 {
		c.HTTP.RequestTimeout = 30 * time.Second
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.HTTP.PollLimit <= 0 {
		c.HTTP.PollLimit = 30
	}
	if c.HTTP.PollWindow <= 0 {
		c.HTTP.PollWindow = time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	c.Redis.TTL = normalizeTTL(c.Redis.TTL)

	if c.Payment.Gateway == "" {
		c.Payment.Gateway = "paynow"
	}
	if c.Payment.Currency == "" {
		c.Payment.Currency = "USD"
	}
	c.Payment.Currency = strings.ToUpper(c.Payment.Currency)
	if c.Payment.GatewayTimeout <= 0 {
		c.Payment.GatewayTimeout = 15 * time.Second
	}
	if c.Payment.StaleAfter <= 0 {
		c.Payment.StaleAfter = 15 * time.Minute
	}
	if c.Payment.SweepInterval <= 0 {
		c.Payment.SweepInterval = 5 * time.Minute
	}
	if c.Payment.SweepBatch <= 0 {
		c.Payment.SweepBatch = 100
	}
	if c.Payment.PollRate <= 0 {
		c.Payment.PollRate = 5
	}
	if c.Payment.PollBurst <= 0 {
		c.Payment.PollBurst = 10
	}
	if c.Payment.Paynow.BaseURL == "" {
		c.Payment.Paynow.BaseURL = "https://www.paynow.co.zw/interface"
	}

	if c.Billing.Timezone == "" {
		c.Billing.Timezone = "UTC"
	}
	if c.Billing.ChargeAt == "" {
		c.Billing.ChargeAt = "00:00"
	}
	if c.Billing.ReminderAt == "" {
		c.Billing.ReminderAt = "09:00"
	}
	if c.Billing.ReminderWindowDays <= 0 {
		c.Billing.ReminderWindowDays = 7
	}
	if c.Billing.ReminderMode == "" {
		c.Billing.ReminderMode = "once_per_cycle"
	}

	if c.Email.Port <= 0 {
		c.Email.Port = 587
	}
	if c.Email.Workers <= 0 {
		c.Email.Workers = 2
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "bizbilling"
	}
	if c.Language == "" {
		c.Language = "en"
	}
}

// Validate fails fast on settings the service cannot run without.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	switch c.Payment.Gateway {
	case "paynow":
		if c.Payment.Paynow.IntegrationID == "" || c.Payment.Paynow.IntegrationKey == "" {
			return errors.New("payment.paynow.integration_id and integration_key are required")
		}
		if c.Payment.Paynow.ResultURL == "" {
			return errors.New("payment.paynow.result_url is required")
		}
	case "noop":
	default:
		return fmt.Errorf("unknown payment.gateway %q", c.Payment.Gateway)
	}
	if _, err := time.LoadLocation(c.Billing.Timezone); err != nil {
		return fmt.Errorf("billing.timezone: %w", err)
	}
	for name, v := range map[string]string{"billing.charge_at": c.Billing.ChargeAt, "billing.reminder_at": c.Billing.ReminderAt} {
		if _, err := time.Parse("15:04", v); err != nil {
			return fmt.Errorf("%s must be HH:MM: %w", name, err)
		}
	}
	switch c.Billing.ReminderMode {
	case "once_per_cycle", "daily":
	default:
		return fmt.Errorf("unknown billing.reminder_mode %q", c.Billing.ReminderMode)
	}
	return nil
}

// Location returns the billing timezone; Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Billing.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
