package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate checks required fields and that every duration parses.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, fmt.Errorf("telegram.token is required (or set %s)", EnvTelegramToken))
	}
	if u, err := url.Parse(strings.TrimSpace(c.Source.URL)); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("source.url: must be an absolute URL, got %q", c.Source.URL))
	}
	if strings.TrimSpace(c.Schedule.Cron) == "" {
		errs = append(errs, errors.New("schedule.cron is required"))
	}
	if c.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
		case "", "memory", "file", "sqlite", "sqlite3", "none", "disabled":
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
		}
	}
	if c.Notifier != nil && c.Notifier.RatePerSec < 0 {
		errs = append(errs, errors.New("notifier.rate_per_sec must be >= 0"))
	}

	durations := map[string]string{
		"telegram.poll_timeout": c.Telegram.PollTimeout,
		"source.timeout":        c.Source.Timeout,
		"source.cache_window":   c.Source.CacheWindow,
		"schedule.late_buffer":  c.Schedule.LateBuffer,
		"poll.live":             c.Poll.Live,
		"poll.thumbnail":        c.Poll.Thumbnail,
		"poll.late":             c.Poll.Late,
		"poll.near":             c.Poll.Near,
		"poll.near_window":      c.Poll.NearWindow,
		"poll.baseline":         c.Poll.Baseline,
		"ops.read_timeout":      c.Ops.ReadTimeout,
		"ops.idle_timeout":      c.Ops.IdleTimeout,
	}
	if c.Notifier != nil {
		durations["notifier.send_timeout"] = c.Notifier.SendTimeout
	}
	if c.Storage != nil {
		durations["storage.busy_timeout"] = c.Storage.BusyTimeout
	}
	for path, raw := range durations {
		if _, err := durationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DurationOr resolves a duration field, falling back to def when the value is
// empty, zero or invalid. Validate reports invalid values before this runs.
func DurationOr(path, raw string, def time.Duration) time.Duration {
	d, err := durationField(path, raw)
	if err != nil || d == 0 {
		return def
	}
	return d
}

// durationField parses a Go duration string; empty means unset.
func durationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", path, raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %q", path, raw)
	}
	return d, nil
}

func (c *Config) SourceTimeout() time.Duration {
	return DurationOr("source.timeout", c.Source.Timeout, 10*time.Second)
}

func (c *Config) SourceCacheWindow() time.Duration {
	return DurationOr("source.cache_window", c.Source.CacheWindow, 10*time.Second)
}

func (c *Config) ScheduleLateBuffer() time.Duration {
	return DurationOr("schedule.late_buffer", c.Schedule.LateBuffer, 5*time.Hour)
}

func (c *Config) TelegramPollTimeout() time.Duration {
	return DurationOr("telegram.poll_timeout", c.Telegram.PollTimeout, 10*time.Second)
}
