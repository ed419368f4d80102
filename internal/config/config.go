package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPAddr        = ":8080"
	defaultDatabaseURL     = "file:cleanhub.db?cache=shared"
	defaultStripeCurrency  = "usd"
	defaultNotifyTransport = "log"
	defaultSMTPPort        = "587"
	defaultMailFrom        = "CleanHub <no-reply@cleanhub.local>"
	defaultAMQPQueue       = "cleanhub.email"
	defaultKafkaTopic      = "cleanhub.email"
	defaultJWTTTL          = "24h"
	defaultInflightTTL     = "2m"
	defaultNotifyTimeout   = "10s"
	defaultDraftTTL        = "72h"
	defaultEventRetention  = "720h"
	defaultJWTSecret       = "change-me-jwt-secret"
	defaultWebhookSecret   = "whsec_change_me"
)

// Notification transports accepted by NOTIFY_TRANSPORT.
const (
	TransportLog   = "log"
	TransportSMTP  = "smtp"
	TransportAMQP  = "amqp"
	TransportKafka = "kafka"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	DatabaseURL string

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeCurrency      string
	StripeAPIBase       string

	RedisEnabled bool

	NotifyTransport string
	NotifyTimeout   time.Duration
	SMTPHost        string
	SMTPPort        int
	SMTPUser        string
	SMTPPassword    string
	MailFrom        string
	AdminEmail      string
	TemplatesPath   string
	AMQPURL         string
	AMQPQueue       string
	KafkaBrokers    []string
	KafkaTopic      string

	JWTSecret   string
	JWTTTL      time.Duration
	InflightTTL time.Duration

	DraftTTL       time.Duration
	EventRetention time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{}
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = strings.TrimSpace(os.Getenv("ENV"))
	}
	if appEnv == "" {
		appEnv = "dev"
	}
	cfg.AppEnv = strings.ToLower(appEnv)

	cfg.HTTPAddr = strings.TrimSpace(getEnv("HTTP_ADDR", defaultHTTPAddr))
	cfg.DatabaseURL = strings.TrimSpace(getEnv("DATABASE_URL", defaultDatabaseURL))

	cfg.StripeSecretKey = strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY"))
	cfg.StripeWebhookSecret = strings.TrimSpace(getEnv("STRIPE_WEBHOOK_SECRET", defaultWebhookSecret))
	cfg.StripeCurrency = strings.ToLower(strings.TrimSpace(getEnv("STRIPE_CURRENCY", defaultStripeCurrency)))
	cfg.StripeAPIBase = strings.TrimSpace(os.Getenv("STRIPE_API_BASE"))

	cfg.RedisEnabled = parseBoolEnv("REDIS_ENABLED", "false")

	cfg.NotifyTransport = strings.ToLower(strings.TrimSpace(getEnv("NOTIFY_TRANSPORT", defaultNotifyTransport)))
	cfg.SMTPHost = strings.TrimSpace(os.Getenv("SMTP_HOST"))
	cfg.SMTPUser = strings.TrimSpace(os.Getenv("SMTP_USER"))
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.MailFrom = strings.TrimSpace(getEnv("MAIL_FROM", defaultMailFrom))
	cfg.AdminEmail = strings.TrimSpace(os.Getenv("ADMIN_EMAIL"))
	cfg.TemplatesPath = strings.TrimSpace(os.Getenv("NOTIFY_TEMPLATES_PATH"))
	cfg.AMQPURL = strings.TrimSpace(os.Getenv("AMQP_URL"))
	cfg.AMQPQueue = strings.TrimSpace(getEnv("AMQP_QUEUE", defaultAMQPQueue))
	cfg.KafkaBrokers = splitList(os.Getenv("KAFKA_BROKERS"))
	cfg.KafkaTopic = strings.TrimSpace(getEnv("KAFKA_TOPIC", defaultKafkaTopic))
	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", defaultJWTSecret))

	var err error
	cfg.SMTPPort, err = parseIntEnv("SMTP_PORT", defaultSMTPPort)
	if err != nil {
		return nil, err
	}
	cfg.NotifyTimeout, err = parseDurationEnv("NOTIFY_TIMEOUT", defaultNotifyTimeout)
	if err != nil {
		return nil, err
	}
	cfg.JWTTTL, err = parseDurationEnv("JWT_TTL", defaultJWTTTL)
	if err != nil {
		return nil, err
	}
	cfg.InflightTTL, err = parseDurationEnv("WEBHOOK_INFLIGHT_TTL", defaultInflightTTL)
	if err != nil {
		return nil, err
	}
	cfg.DraftTTL, err = parseDurationEnv("DRAFT_TTL", defaultDraftTTL)
	if err != nil {
		return nil, err
	}
	cfg.EventRetention, err = parseDurationEnv("WEBHOOK_EVENT_RETENTION", defaultEventRetention)
	if err != nil {
		return nil, err
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	log.Printf("config: env=%s notify_transport=%s redis=%t", cfg.AppEnv, cfg.NotifyTransport, cfg.RedisEnabled)

	return cfg, nil
}

// nonCentCurrencies are the processor's zero- and three-decimal currencies.
// Amounts are exchanged in cents, so these would be off by a factor of 10 or 100.
var nonCentCurrencies = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
	"bhd": true, "jod": true, "kwd": true, "omr": true, "tnd": true,
}

func validateConfig(cfg *Config) error {
	if cfg.HTTPAddr == "" {
		return fmt.Errorf("HTTP_ADDR must not be empty")
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	if len(cfg.StripeCurrency) != 3 {
		return fmt.Errorf("STRIPE_CURRENCY must be a 3-letter ISO code")
	}
	if nonCentCurrencies[cfg.StripeCurrency] {
		return fmt.Errorf("STRIPE_CURRENCY %s is not supported: amounts are converted with two decimal places", cfg.StripeCurrency)
	}
	if cfg.NotifyTimeout <= 0 {
		return fmt.Errorf("NOTIFY_TIMEOUT must be > 0")
	}
	if cfg.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be > 0")
	}
	if cfg.InflightTTL <= 0 {
		return fmt.Errorf("WEBHOOK_INFLIGHT_TTL must be > 0")
	}
	if cfg.DraftTTL <= 0 {
		return fmt.Errorf("DRAFT_TTL must be > 0")
	}
	if cfg.EventRetention <= 0 {
		return fmt.Errorf("WEBHOOK_EVENT_RETENTION must be > 0")
	}

	switch cfg.NotifyTransport {
	case TransportLog:
	case TransportSMTP:
		if cfg.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required when NOTIFY_TRANSPORT=smtp")
		}
	case TransportAMQP:
		if cfg.AMQPURL == "" {
			return fmt.Errorf("AMQP_URL is required when NOTIFY_TRANSPORT=amqp")
		}
	case TransportKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required when NOTIFY_TRANSPORT=kafka")
		}
	default:
		return fmt.Errorf("NOTIFY_TRANSPORT must be one of: log, smtp, amqp, kafka")
	}

	if isProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.JWTSecret, defaultJWTSecret) {
			return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
		}
		if isEmptyOrDefault(cfg.StripeWebhookSecret, defaultWebhookSecret) {
			return fmt.Errorf("in prod/release STRIPE_WEBHOOK_SECRET must be set and not default")
		}
		if cfg.StripeSecretKey == "" {
			return fmt.Errorf("in prod/release STRIPE_SECRET_KEY must be set")
		}
		if cfg.NotifyTransport == TransportLog {
			return fmt.Errorf("in prod/release NOTIFY_TRANSPORT must not be log")
		}
	}

	return nil
}

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

// IsProdLike reports whether the loaded environment is a production one.
func (c *Config) IsProdLike() bool {
	return isProdLike(c.AppEnv)
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func parseIntEnv(name, fallback string) (int, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

func parseBoolEnv(name, fallback string) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(name, fallback)))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
