package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livewatch/internal/config"
	"livewatch/internal/notifier"
	"livewatch/internal/watch"
)

const sampleYAML = `
telegram:
  token: "123:abc"
  owner_user_ids: [42]
logging:
  level: debug
  console: true
  telegram:
    enabled: true
    chat_id: -100123
    min_level: warn
source:
  url: https://status.example.com/aggregate
schedule:
  cron: "0 16 * * 5"
  timezone: America/Vancouver
poll:
  live: 3m
  baseline: 90s
notifier:
  rate_per_sec: 10
  send_timeout: 4s
storage:
  driver: SQLite
  path: ./data/subs.db
ops:
  enabled: true
  pprof: true
`

func decode(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Decode("config.yaml", []byte(sampleYAML))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestMapping(t *testing.T) {
	cfg := decode(t)

	iv := mapIntervals(cfg)
	assert.Equal(t, 3*time.Minute, iv.Live)
	assert.Equal(t, 90*time.Second, iv.Baseline)
	assert.Zero(t, iv.Thumbnail, "unset intervals defer to the watcher defaults")
	assert.Equal(t, watch.Intervals{Live: 3 * time.Minute, Baseline: 90 * time.Second}, iv)

	assert.Equal(t, notifier.Config{RatePerSec: 10, SendTimeout: 4 * time.Second}, mapNotifier(cfg))

	sc := mapStorage(cfg)
	assert.Equal(t, "sqlite", sc.Driver)
	assert.Equal(t, "./data/subs.db", sc.Path)
	assert.Equal(t, time.Second, sc.BusyTimeout)

	lc := mapLogging(cfg)
	assert.Equal(t, int64(-100123), lc.Telegram.ChatID)
	assert.True(t, lc.Telegram.Enabled)

	ops := mapOps(cfg)
	assert.True(t, ops.Enabled)
	assert.True(t, ops.Pprof)
	assert.Equal(t, 10*time.Second, ops.ReadTimeout)
}

func TestMappingDefaults(t *testing.T) {
	cfg := &config.Config{}
	assert.Equal(t, notifier.Config{}, mapNotifier(cfg))
	sc := mapStorage(cfg)
	assert.Equal(t, "file", sc.Driver)
	assert.NotEmpty(t, sc.Path)
}

func TestValidateRejectsUnknownKeys(t *testing.T) {
	_, err := config.Decode("config.yaml", []byte("telegram:\n  tokn: x\n"))
	assert.Error(t, err)
}
