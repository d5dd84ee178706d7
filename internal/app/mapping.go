package app

import (
	"strings"
	"time"

	"livewatch/internal/config"
	"livewatch/internal/notifier"
	"livewatch/internal/observability/opshttp"
	"livewatch/internal/storage"
	"livewatch/internal/watch"
	logx "livewatch/pkg/logx"
)

// Mappers assume the config passed Validate; unparsable durations fall back
// to their defaults.

func duration(path, raw string, def time.Duration) time.Duration {
	return config.DurationOr(path, raw, def)
}

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     cfg.Logging.Telegram.ChatID,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapIntervals(cfg *config.Config) watch.Intervals {
	p := cfg.Poll
	return watch.Intervals{
		Live:       duration("poll.live", p.Live, 0),
		Thumbnail:  duration("poll.thumbnail", p.Thumbnail, 0),
		Late:       duration("poll.late", p.Late, 0),
		Near:       duration("poll.near", p.Near, 0),
		NearWindow: duration("poll.near_window", p.NearWindow, 0),
		Baseline:   duration("poll.baseline", p.Baseline, 0),
	}
}

func mapNotifier(cfg *config.Config) notifier.Config {
	if cfg.Notifier == nil {
		return notifier.Config{}
	}
	return notifier.Config{
		RatePerSec:  cfg.Notifier.RatePerSec,
		Burst:       cfg.Notifier.Burst,
		SendTimeout: duration("notifier.send_timeout", cfg.Notifier.SendTimeout, notifier.DefaultSendTimeout),
	}
}

// mapStorage defaults to the file driver next to the working directory.
func mapStorage(cfg *config.Config) storage.Config {
	if cfg.Storage == nil {
		return storage.Config{Driver: "file", Path: "./livewatch_store"}
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)),
		Path:        strings.TrimSpace(cfg.Storage.Path),
		BusyTimeout: duration("storage.busy_timeout", cfg.Storage.BusyTimeout, time.Second),
	}
}

func mapOps(cfg *config.Config) opshttp.Config {
	o := cfg.Ops
	return opshttp.Config{
		Enabled:       o.Enabled,
		Addr:          o.Addr,
		Token:         o.Token,
		AllowInsecure: o.AllowInsecure,
		Pprof:         o.Pprof,
		ReadTimeout:   duration("ops.read_timeout", o.ReadTimeout, 10*time.Second),
		IdleTimeout:   duration("ops.idle_timeout", o.IdleTimeout, 60*time.Second),
	}
}
