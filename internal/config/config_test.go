package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libradesk/internal/apperr"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(nil, lookupFrom(map[string]string{
		"DATABASE_URL": "postgres://localhost/library",
	}))
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 14, cfg.Circulation.DefaultLoanDays)
	assert.Equal(t, 6*time.Hour, cfg.Sweep.Interval())
	assert.Equal(t, 5, cfg.Sweep.DueSoonDays)
	assert.Zero(t, cfg.Sweep.OverdueCooldown())
	assert.True(t, cfg.Sweep.Enabled)
	assert.Equal(t, "log", cfg.Notify.Transport)
	assert.Equal(t, "text", cfg.Logger.Format)
	assert.Equal(t, ":8080", cfg.Server.Addr())
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := `
app:
  environment: production
database:
  driver: sqlite
  url: file:library.db
sweep:
  interval_hours: 12
  due_soon_days: 3
notify:
  transport: smtp
  smtp:
    host: smtp.example.com
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o600))

	cfg, err := load(
		[]string{"-config", path, "-sweep-interval-hours", "2"},
		lookupFrom(map[string]string{
			"DUE_SOON_DAYS": "7",
			"KAFKA_BROKERS": "k1:9092, k2:9092",
			"CORS_ORIGINS":  "http://localhost:3000",
		}),
	)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver, "file overrides default")
	assert.Equal(t, 7, cfg.Sweep.DueSoonDays, "env overrides file")
	assert.Equal(t, 2*time.Hour, cfg.Sweep.Interval(), "flag overrides file")
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Notify.Kafka.Brokers)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "json", cfg.Logger.Format, "production defaults to json logs")
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing database url", map[string]string{}},
		{"unknown driver", map[string]string{"DATABASE_URL": "x", "DB_DRIVER": "oracle"}},
		{"zero interval", map[string]string{"DATABASE_URL": "x", "SCHEDULER_INTERVAL_HOURS": "0"}},
		{"non numeric window", map[string]string{"DATABASE_URL": "x", "DUE_SOON_DAYS": "five"}},
		{"smtp without host", map[string]string{"DATABASE_URL": "x", "NOTIFY_TRANSPORT": "smtp"}},
		{"kafka without brokers", map[string]string{"DATABASE_URL": "x", "NOTIFY_TRANSPORT": "kafka"}},
		{"zero loan days", map[string]string{"DATABASE_URL": "x", "DEFAULT_LOAN_DAYS": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(nil, lookupFrom(tt.env))
			require.Error(t, err)
			assert.ErrorIs(t, err, apperr.ErrConfig)
		})
	}
}
