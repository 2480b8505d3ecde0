package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew_Defaults(t *testing.T) {
	t.Setenv("MYSQL_DSN", "")
	t.Setenv("PASS_TTL", "")
	t.Setenv("MATCH_TX_RETRIES", "")

	cfg := New()

	assert.Equal(t, "mysql", cfg.DB.Driver)
	assert.Equal(t, "root:root@tcp(localhost:3306)/muzz?parseTime=true&charset=utf8mb4&loc=UTC", cfg.DB.DSN)
	assert.Equal(t, 3, cfg.Matching.TxAttempts)
	assert.Equal(t, time.Duration(0), cfg.Matching.PassTTL)
	assert.Equal(t, 10, cfg.Feed.DefaultPageSize)
	assert.Equal(t, 50, cfg.Feed.MaxPageSize)
}

func TestNew_Overrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("PASS_TTL", "72h")
	t.Setenv("MATCH_TX_RETRIES", "5")
	t.Setenv("MESSAGE_RATE_PER_SEC", "0.5")
	t.Setenv("LOG_SOURCE", "yes")

	cfg := New()

	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, 72*time.Hour, cfg.Matching.PassTTL)
	assert.Equal(t, 5, cfg.Matching.TxAttempts)
	assert.Equal(t, 0.5, cfg.Chat.MessageRate)
	assert.True(t, cfg.Log.Source)
}

func TestGetEnvDuration_Seconds(t *testing.T) {
	t.Setenv("X_TTL", "90")
	assert.Equal(t, 90*time.Second, getEnvDuration("X_TTL", time.Minute))

	t.Setenv("X_TTL", "garbage")
	assert.Equal(t, time.Minute, getEnvDuration("X_TTL", time.Minute))
}
