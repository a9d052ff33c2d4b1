package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Bot      BotConfig      `mapstructure:"bot"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Lock     LockConfig     `mapstructure:"lock"`
	Checker  CheckerConfig  `mapstructure:"checker"`
	Review   ReviewConfig   `mapstructure:"review"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Digest   DigestConfig   `mapstructure:"digest"`
}

type AppConfig struct {
	Env      string `mapstructure:"env" validate:"oneof=development production"`
	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
}

type BotConfig struct {
	Token       string        `mapstructure:"token" validate:"required"`
	Channel     string        `mapstructure:"channel"` // membership gate, e.g. @mychannel; empty disables
	ChannelURL  string        `mapstructure:"channel_url"`
	PollTimeout time.Duration `mapstructure:"poll_timeout" validate:"gt=0"`
	HelpContact string        `mapstructure:"help_contact"`
}

type AdminConfig struct {
	EssayAdminID   int64 `mapstructure:"essay_id" validate:"required"`
	PaymentAdminID int64 `mapstructure:"payment_id" validate:"required"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver" validate:"oneof=postgres sqlite"`
	DSN          string `mapstructure:"dsn" validate:"required"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"min=1"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" validate:"min=0"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LockConfig struct {
	Backend string        `mapstructure:"backend" validate:"oneof=memory redis"`
	TTL     time.Duration `mapstructure:"ttl" validate:"min=0"`
}

type CheckerConfig struct {
	BaseURL string        `mapstructure:"base_url" validate:"omitempty,url"`
	APIKey  string        `mapstructure:"api_key" validate:"required"`
	Model   string        `mapstructure:"model" validate:"required"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

type ReviewConfig struct {
	Delay      time.Duration `mapstructure:"delay" validate:"min=0"`
	VoiceDelay time.Duration `mapstructure:"voice_delay" validate:"min=0"`
	MinWords   int           `mapstructure:"min_words" validate:"min=1"`
	MaxWords   int           `mapstructure:"max_words" validate:"gtfield=MinWords"`
}

type PaymentConfig struct {
	CardInfo string `mapstructure:"card_info"`
	Price    string `mapstructure:"price"`
	Amount   int64  `mapstructure:"amount" validate:"min=1"`
	NodeID   int64  `mapstructure:"node_id" validate:"min=0,max=1023"`
}

type DigestConfig struct {
	Spec string `mapstructure:"spec"` // cron spec; empty disables
}

var defaults = map[string]any{
	"app.env":                 "development",
	"app.log_level":           "info",
	"bot.token":               "",
	"bot.channel":             "",
	"bot.channel_url":         "",
	"bot.poll_timeout":        10 * time.Second,
	"bot.help_contact":        "",
	"admin.essay_id":          0,
	"admin.payment_id":        0,
	"database.driver":         "sqlite",
	"database.dsn":            "essay.db",
	"database.max_open_conns": 10,
	"database.max_idle_conns": 2,
	"redis.addr":              "",
	"redis.password":          "",
	"redis.db":                0,
	"lock.backend":            "memory",
	"lock.ttl":                time.Duration(0),
	"checker.base_url":        "",
	"checker.api_key":         "",
	"checker.model":           "gpt-5-mini",
	"checker.timeout":         2 * time.Minute,
	"review.delay":            15 * time.Minute,
	"review.voice_delay":      30 * time.Minute,
	"review.min_words":        100,
	"review.max_words":        350,
	"payment.card_info":       "",
	"payment.price":           "",
	"payment.amount":          1,
	"payment.node_id":         1,
	"digest.spec":             "@hourly",
}

// Load reads .env (if present), then the YAML file at path (if non-empty and
// present), then environment variables named after the keys with dots
// replaced by underscores, e.g. BOT_TOKEN or DATABASE_DSN.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: read .env: %w", err)
	}

	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Lock.Backend == "redis" && c.Redis.Addr == "" {
		return errors.New("config: lock.backend=redis needs redis.addr")
	}
	return nil
}
