package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	App       AppConfig
	DB        DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Log       LogConfig
	Storage   StorageConfig
	RateLimit RateLimitConfig
	WhatsApp  WhatsAppConfig
	Blast     BlastConfig
}

type AppConfig struct {
	Env     string `env:"APP_ENV" envDefault:"development"`
	Port    string `env:"PORT" envDefault:"8080"`
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`
}

type StorageConfig struct {
	Driver          string `env:"DB_DRIVER" envDefault:"sqlite"`
	DataDir         string `env:"DATA_DIR" envDefault:"/app/data"`
	MediaTTLSeconds int    `env:"MEDIA_TTL_SECONDS" envDefault:"7200"`
}

type DatabaseConfig struct {
	URL      string `env:"DATABASE_URL"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	Name     string `env:"DB_NAME" envDefault:"blastline"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
}

// DSN returns a connection string in the format accepted by pgxpool.
func (cfg DatabaseConfig) DSN() string {
	if cfg.URL != "" {
		return cfg.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	Enabled  bool   `env:"REDIS_ENABLED" envDefault:"false"`
}

type JWTConfig struct {
	Secret   string `env:"JWT_SECRET,required"`
	ExpHours int    `env:"JWT_EXP_HOURS" envDefault:"24"`
}

type LogConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"debug"`
}

type RateLimitConfig struct {
	Enabled       bool   `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	Requests      int    `env:"RATE_LIMIT_REQUESTS" envDefault:"300"`
	WindowSeconds int    `env:"RATE_LIMIT_WINDOW_SECONDS" envDefault:"60"`
	Prefix        string `env:"RATE_LIMIT_PREFIX" envDefault:"ratelimit:api"`
}

// WhatsAppConfig tunes the per-outlet connection manager. The cooldown values
// are policy, not protocol: the conflict cooldown must stay >= the ordinary
// reconnect cooldown.
type WhatsAppConfig struct {
	SessionKeyEnc            string `env:"WA_SESSION_KEY_ENC" envDefault:"blastline-session-key-change-in-production"`
	DeviceOSName             string `env:"WA_DEVICE_OS" envDefault:"Blastline"`
	DevicePlatform           string `env:"WA_DEVICE_PLATFORM" envDefault:"DESKTOP"`
	ReconnectCooldownSeconds int    `env:"WA_RECONNECT_COOLDOWN_SECONDS" envDefault:"30"`
	ConflictCooldownSeconds  int    `env:"WA_CONFLICT_COOLDOWN_SECONDS" envDefault:"60"`
	MaxReconnectAttempts     int    `env:"WA_MAX_RECONNECT_ATTEMPTS" envDefault:"10"`
	PhoneCheckTimeoutSeconds int    `env:"WA_PHONE_CHECK_TIMEOUT_SECONDS" envDefault:"12"`
	WatchdogIntervalSeconds  int    `env:"WA_WATCHDOG_INTERVAL_SECONDS" envDefault:"60"`
}

func (cfg WhatsAppConfig) ReconnectCooldown() time.Duration {
	return time.Duration(cfg.ReconnectCooldownSeconds) * time.Second
}

func (cfg WhatsAppConfig) ConflictCooldown() time.Duration {
	return time.Duration(cfg.ConflictCooldownSeconds) * time.Second
}

func (cfg WhatsAppConfig) PhoneCheckTimeout() time.Duration {
	return time.Duration(cfg.PhoneCheckTimeoutSeconds) * time.Second
}

func (cfg WhatsAppConfig) WatchdogInterval() time.Duration {
	return time.Duration(cfg.WatchdogIntervalSeconds) * time.Second
}

// BlastConfig tunes the delivery pipeline throttling. Media delays must stay
// >= text delays and the first-attachment warmup >= the between-attachment
// delay; the relative ordering matters more than the exact values.
type BlastConfig struct {
	Workers                int `env:"BLAST_WORKERS" envDefault:"4"`
	MaxRetries             int `env:"BLAST_MAX_RETRIES" envDefault:"2"`
	RetryBackoffMS         int `env:"BLAST_RETRY_BACKOFF_MS" envDefault:"2000"`
	TextDelayMS            int `env:"BLAST_TEXT_DELAY_MS" envDefault:"3000"`
	MediaDelayMS           int `env:"BLAST_MEDIA_DELAY_MS" envDefault:"5000"`
	FirstAttachmentDelayMS int `env:"BLAST_FIRST_ATTACHMENT_DELAY_MS" envDefault:"2000"`
	ImageDelayMS           int `env:"BLAST_IMAGE_DELAY_MS" envDefault:"1000"`
	DocumentDelayMS        int `env:"BLAST_DOCUMENT_DELAY_MS" envDefault:"1500"`
}

// Load reads the application configuration from the environment.
func Load() Config {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("config: could not load environment: %v", err)
	}
	return cfg
}
