package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("DB_DSN", "postgres://localhost/brokerfeed")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("INTERNAL_API_TOKEN", "internal")
	t.Setenv("FEED_URL", "http://feed.local")
}

func TestFromEnvDefaults(t *testing.T) {
	setRequired(t)

	c, err := fromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, "lv-brokerfeed", c.JWTIssuer)
	assert.Equal(t, "*", c.WebSocketOrigin)
	assert.Equal(t, 3*time.Second, c.FeedFetchTimeout)
	assert.Equal(t, time.Second, c.FeedPollInterval)
	assert.Equal(t, 20.0, c.FeedRPS)
	assert.Equal(t, 5, c.FeedInitAttempts)
	assert.Empty(t, c.KafkaBrokers)
}

func TestFromEnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("FEED_FETCH_TIMEOUT", "750ms")
	t.Setenv("FEED_RPS", "5")
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092")

	c, err := fromEnv()
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, c.FeedFetchTimeout)
	assert.Equal(t, 5.0, c.FeedRPS)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.KafkaBrokers)
}

func TestFromEnvMissing(t *testing.T) {
	setRequired(t)
	t.Setenv("DB_DSN", "")
	t.Setenv("JWT_SECRET", "")

	_, err := fromEnv()
	require.Error(t, err)
	assert.Equal(t, "missing required env: DB_DSN,JWT_SECRET", err.Error())
}

func TestFromEnvInvalid(t *testing.T) {
	setRequired(t)
	t.Setenv("FEED_POLL_INTERVAL", "soon")
	_, err := fromEnv()
	assert.EqualError(t, err, "invalid FEED_POLL_INTERVAL")

	t.Setenv("FEED_POLL_INTERVAL", "")
	t.Setenv("FEED_INIT_ATTEMPTS", "0")
	_, err = fromEnv()
	assert.EqualError(t, err, "invalid FEED_INIT_ATTEMPTS")
}
