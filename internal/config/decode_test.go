package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	yaml "go.yaml.in/yaml/v3"
)

const sampleYAML = `
telegram:
  token: abc
  owner_user_ids: [42, 43]
source:
  url: https://status.example.net/aggregate
  cache_window: 15s
schedule:
  cron: "0 16 * * 5"
  timezone: America/Vancouver
poll:
  near_window: 20m
storage:
  driver: sqlite
  path: ./subs.db
`

func TestDecodeYAML(t *testing.T) {
	cfg, err := Decode("config.yml", []byte(sampleYAML))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []int64{42, 43}, cfg.Telegram.OwnerUserIDs)
	assert.Equal(t, 15*time.Second, cfg.SourceCacheWindow())
	assert.Equal(t, 10*time.Second, cfg.SourceTimeout(), "unset duration takes the default")
	assert.Equal(t, 5*time.Hour, cfg.ScheduleLateBuffer())
	require.NotNil(t, cfg.Storage)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode("config.yaml", []byte("schedule:\n  crontab: '@weekly'\n"))
	assert.ErrorContains(t, err, "crontab")

	_, err = Decode("config.json", []byte(`{"source":{"url":"https://x"}} {}`))
	assert.ErrorContains(t, err, "trailing data")
}

func TestDecodeEmptyYAML(t *testing.T) {
	cfg, err := Decode("config.yaml", nil)
	require.NoError(t, err)
	assert.Error(t, cfg.Validate(), "empty config lacks token, url and cron")
}

func TestStringKeys(t *testing.T) {
	var doc any
	require.NoError(t, yaml.Unmarshal([]byte("1: a\ntrue:\n  - 2: b\n    name: c\n"), &doc))

	got := stringKeys(doc)
	assert.Equal(t, map[string]any{
		"1":    "a",
		"true": []any{map[string]any{"2": "b", "name": "c"}},
	}, got)
}

func TestDurationFields(t *testing.T) {
	cfg := &Config{
		Telegram: TelegramConfig{Token: "t"},
		Source:   SourceConfig{URL: "https://x.example", Timeout: "soon"},
		Schedule: ScheduleConfig{Cron: "@weekly", LateBuffer: "-1h"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "source.timeout")
	assert.ErrorContains(t, err, "schedule.late_buffer")

	assert.Equal(t, 10*time.Second, cfg.SourceTimeout(), "invalid value falls back")
	assert.Equal(t, time.Minute, DurationOr("poll.baseline", " 1m ", time.Hour))
	assert.Equal(t, time.Hour, DurationOr("poll.baseline", "0s", time.Hour))
}
