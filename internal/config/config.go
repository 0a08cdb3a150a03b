// Package config loads application configuration from defaults, a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for generic configuration overrides, e.g. COACHING_STORE__DRIVER.
const EnvPrefix = "COACHING_"

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Log      LogConfig      `koanf:"log"`
	Stripe   StripeConfig   `koanf:"stripe"`
	Discord  DiscordConfig  `koanf:"discord"`
	Calendly CalendlyConfig `koanf:"calendly"`
	Store    StoreConfig    `koanf:"store"`
	Admin    AdminConfig    `koanf:"admin"`
	Poller   PollerConfig   `koanf:"poller"`
}

// ServerConfig configures the HTTP servers.
type ServerConfig struct {
	Host               string        `koanf:"host"`
	Port               string        `koanf:"port" validate:"required"`
	MetricsPort        string        `koanf:"metrics_port" validate:"required"`
	ReadTimeout        time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout  time.Duration `koanf:"read_header_timeout"`
	WriteTimeout       time.Duration `koanf:"write_timeout"`
	IdleTimeout        time.Duration `koanf:"idle_timeout"`
	PublicBaseURL      string        `koanf:"public_base_url" validate:"required"`
	CORSAllowedOrigins []string      `koanf:"cors_allowed_origins"`
	// SupportContact is shown on the success page when the channel is late.
	SupportContact string `koanf:"support_contact"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

// StripeConfig configures the payment provider.
type StripeConfig struct {
	SecretKey     string `koanf:"secret_key"`
	WebhookSecret string `koanf:"webhook_secret"`
	Currency      string `koanf:"currency" validate:"required,len=3"`
	// APIURL overrides the API base URL, used against local mocks.
	APIURL string `koanf:"api_url" validate:"omitempty,url"`
}

// DiscordConfig configures the chat platform integration.
type DiscordConfig struct {
	BotToken               string        `koanf:"bot_token"`
	GuildID                string        `koanf:"guild_id"`
	APIURL                 string        `koanf:"api_url" validate:"required,url"`
	CategoryName           string        `koanf:"category_name" validate:"required"`
	NotificationsChannel   string        `koanf:"notifications_channel"`
	NotificationsChannelID string        `koanf:"notifications_channel_id"`
	StaffRoleIDs           []string      `koanf:"staff_role_ids"`
	InviteURL              string        `koanf:"invite_url"`
	CoachMention           string        `koanf:"coach_mention"`
	RateLimit              float64       `koanf:"rate_limit" validate:"gte=0"`
	Timeout                time.Duration `koanf:"timeout"`
}

// Enabled reports whether enough credentials are present to talk to Discord.
func (c DiscordConfig) Enabled() bool {
	return c.BotToken != "" && c.GuildID != ""
}

// CalendlyConfig configures the booking webhook.
type CalendlyConfig struct {
	SigningKey  string            `koanf:"signing_key"`
	BookingURLs map[string]string `koanf:"booking_urls"`
}

// StoreConfig configures the session-to-channel store.
type StoreConfig struct {
	Driver        string         `koanf:"driver" validate:"oneof=memory file redis postgres dynamodb"`
	Retention     time.Duration  `koanf:"retention" validate:"gte=0"`
	ClaimTTL      time.Duration  `koanf:"claim_ttl" validate:"gt=0"`
	SweepInterval time.Duration  `koanf:"sweep_interval" validate:"gt=0"`
	File          FileConfig     `koanf:"file"`
	Redis         RedisConfig    `koanf:"redis"`
	Postgres      PostgresConfig `koanf:"postgres"`
	DynamoDB      DynamoDBConfig `koanf:"dynamodb"`
}

// FileConfig configures the JSON file store.
type FileConfig struct {
	Path string `koanf:"path"`
}

// RedisConfig configures the Redis store.
type RedisConfig struct {
	Addr      string `koanf:"addr"`
	Password  string `koanf:"password"`
	DB        int    `koanf:"db"`
	KeyPrefix string `koanf:"key_prefix"`
}

// PostgresConfig configures the PostgreSQL store.
type PostgresConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// DynamoDBConfig configures the DynamoDB store.
type DynamoDBConfig struct {
	Table    string `koanf:"table"`
	Region   string `koanf:"region"`
	Endpoint string `koanf:"endpoint"`
}

// AdminConfig configures the operational endpoints.
type AdminConfig struct {
	Token string `koanf:"token"`
}

// PollerConfig configures the success page polling schedule.
type PollerConfig struct {
	InitialDelay time.Duration `koanf:"initial_delay" validate:"gte=0"`
	Interval     time.Duration `koanf:"interval" validate:"gt=0"`
	Multiplier   float64       `koanf:"multiplier" validate:"gte=1"`
	MaxInterval  time.Duration `koanf:"max_interval" validate:"gt=0"`
	MaxAttempts  int           `koanf:"max_attempts" validate:"gt=0"`
}

// Default returns configuration with all defaults applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      75 * time.Second,
			IdleTimeout:       60 * time.Second,
			PublicBaseURL:     "http://localhost:8080",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Stripe: StripeConfig{
			Currency: "eur",
		},
		Discord: DiscordConfig{
			APIURL:               "https://discord.com/api/v10",
			CategoryName:         "Active Customers",
			NotificationsChannel: "notifications",
			CoachMention:         "@Azzinoth",
			RateLimit:            5,
			Timeout:              10 * time.Second,
		},
		Calendly: CalendlyConfig{
			BookingURLs: map[string]string{
				"premium":      "https://calendly.com/enzogireauds/toplane-coaching-1h",
				"premium-plus": "https://calendly.com/enzogireauds/premium-plan-1h30",
			},
		},
		Store: StoreConfig{
			Driver:        "memory",
			Retention:     2 * time.Hour,
			ClaimTTL:      5 * time.Minute,
			SweepInterval: time.Minute,
			File: FileConfig{
				Path: "data/channel-store.json",
			},
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "coaching:",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    10,
				MaxIdleConns:    2,
				ConnMaxLifetime: 30 * time.Minute,
				ConnectAttempts: 5,
				ConnectTimeout:  60 * time.Second,
				AutoMigrate:     true,
			},
			DynamoDB: DynamoDBConfig{
				Table: "coaching-channel-records",
			},
		},
		Poller: PollerConfig{
			InitialDelay: time.Second,
			Interval:     2 * time.Second,
			Multiplier:   1.5,
			MaxInterval:  10 * time.Second,
			MaxAttempts:  12,
		},
	}
}

// envAliases maps conventional secret variable names to configuration keys.
var envAliases = map[string]string{
	"STRIPE_SECRET_KEY":     "stripe.secret_key",
	"STRIPE_WEBHOOK_SECRET": "stripe.webhook_secret",
	"DISCORD_BOT_TOKEN":     "discord.bot_token",
	"DISCORD_GUILD_ID":      "discord.guild_id",
	"PUBLIC_BASE_URL":       "server.public_base_url",
	"CALENDLY_SIGNING_KEY":  "calendly.signing_key",
	"ADMIN_TOKEN":           "admin.token",
	"DATABASE_URL":          "store.postgres.url",
	"REDIS_ADDR":            "store.redis.addr",
	"REDIS_PASSWORD":        "store.redis.password",
	"PORT":                  "server.port",
}

// listKeys are split on commas when provided through the environment.
var listKeys = map[string]bool{
	"discord.staff_role_ids":      true,
	"server.cors_allowed_origins": true,
}

// Load reads configuration. An empty path skips the YAML file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// envTransform maps an environment variable to a configuration key.
// Returning an empty key skips the variable.
func envTransform(name, value string) (string, interface{}) {
	key, ok := envAliases[name]
	if !ok {
		if !strings.HasPrefix(name, EnvPrefix) {
			return "", nil
		}
		key = strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
		key = strings.ReplaceAll(key, "__", ".")
	}

	if value == "" {
		return "", nil
	}

	if listKeys[key] {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return key, out
	}

	return key, value
}

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	var errs []error

	switch c.Store.Driver {
	case "file":
		if c.Store.File.Path == "" {
			errs = append(errs, errors.New("store.file.path is required for file driver"))
		}
	case "redis":
		if c.Store.Redis.Addr == "" {
			errs = append(errs, errors.New("store.redis.addr is required for redis driver"))
		}
	case "postgres":
		if c.Store.Postgres.URL == "" {
			errs = append(errs, errors.New("store.postgres.url is required for postgres driver"))
		}
	case "dynamodb":
		if c.Store.DynamoDB.Table == "" {
			errs = append(errs, errors.New("store.dynamodb.table is required for dynamodb driver"))
		}
	}

	if c.Poller.MaxInterval < c.Poller.Interval {
		errs = append(errs, errors.New("poller.max_interval must not be less than poller.interval"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validate config: %w", errors.Join(errs...))
	}
	return nil
}
