package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr        string
	DBDSN           string
	JWTIssuer       string
	JWTSecret       string
	InternalToken   string
	WebSocketOrigin string
	LogLevel        string

	FeedURL          string
	FeedWSURL        string
	FeedAPIKey       string
	FeedFetchTimeout time.Duration
	FeedPollInterval time.Duration
	FeedRPS          float64
	FeedInitAttempts int

	CatalogFile string
	RedisAddr   string
	QuoteTTL    time.Duration

	KafkaBrokers     []string
	KafkaIncomeTopic string
}

// Load reads the process environment. A .env file in the working directory is
// applied first when present; variables already set take precedence.
func Load() (Config, error) {
	_ = godotenv.Load()
	return fromEnv()
}

func fromEnv() (Config, error) {
	var c Config
	var missing []string
	required := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}
	c.HTTPAddr = required("HTTP_ADDR")
	c.DBDSN = required("DB_DSN")
	c.JWTSecret = required("JWT_SECRET")
	c.InternalToken = required("INTERNAL_API_TOKEN")
	c.FeedURL = required("FEED_URL")

	c.JWTIssuer = envOr("JWT_ISSUER", "lv-brokerfeed")
	c.WebSocketOrigin = envOr("WS_ORIGIN", "*")
	c.LogLevel = envOr("LOG_LEVEL", "info")
	c.FeedWSURL = os.Getenv("FEED_WS_URL")
	c.FeedAPIKey = os.Getenv("FEED_API_KEY")
	c.CatalogFile = os.Getenv("CATALOG_FILE")
	c.RedisAddr = os.Getenv("REDIS_ADDR")
	c.KafkaIncomeTopic = envOr("KAFKA_INCOME_TOPIC", "broker.income")
	for _, b := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			c.KafkaBrokers = append(c.KafkaBrokers, b)
		}
	}

	var err error
	if c.FeedFetchTimeout, err = durationEnv("FEED_FETCH_TIMEOUT", 3*time.Second); err != nil {
		return c, err
	}
	if c.FeedPollInterval, err = durationEnv("FEED_POLL_INTERVAL", time.Second); err != nil {
		return c, err
	}
	if c.QuoteTTL, err = durationEnv("QUOTE_TTL", 10*time.Minute); err != nil {
		return c, err
	}
	if raw := os.Getenv("FEED_RPS"); raw != "" {
		c.FeedRPS, err = strconv.ParseFloat(raw, 64)
		if err != nil || c.FeedRPS <= 0 {
			return c, errors.New("invalid FEED_RPS")
		}
	} else {
		c.FeedRPS = 20
	}
	if raw := os.Getenv("FEED_INIT_ATTEMPTS"); raw != "" {
		c.FeedInitAttempts, err = strconv.Atoi(raw)
		if err != nil || c.FeedInitAttempts < 1 {
			return c, errors.New("invalid FEED_INIT_ATTEMPTS")
		}
	} else {
		c.FeedInitAttempts = 5
	}

	if len(missing) > 0 {
		return c, errors.New("missing required env: " + strings.Join(missing, ","))
	}
	return c, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return d, nil
}
