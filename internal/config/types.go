package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Source   SourceConfig   `json:"source"`
	Schedule ScheduleConfig `json:"schedule"`
	Poll     PollConfig     `json:"poll,omitempty"`

	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
	Ops      OpsConfig       `json:"ops,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
	// Workers bounds concurrent command handlers.
	Workers int `json:"workers,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// SourceConfig points at the remote aggregate status document.
//
// Defaults: timeout "10s", cache_window "10s".
type SourceConfig struct {
	URL         string `json:"url"`
	Timeout     string `json:"timeout,omitempty"`
	CacheWindow string `json:"cache_window,omitempty"`
	UserAgent   string `json:"user_agent,omitempty"`
}

// ScheduleConfig describes the announced recurrence of the tracked event.
//
// Cron accepts an optional seconds field and descriptors (@weekly).
// Example: "0 16 * * 5" with timezone "America/Vancouver".
type ScheduleConfig struct {
	Cron       string `json:"cron"`
	Timezone   string `json:"timezone,omitempty"`
	LateBuffer string `json:"late_buffer,omitempty"` // default "5h"
}

// PollConfig overrides the adaptive poll intervals. Zero or empty keeps the default.
type PollConfig struct {
	Live       string `json:"live,omitempty"`        // default "5m"
	Thumbnail  string `json:"thumbnail,omitempty"`   // default "10s"
	Late       string `json:"late,omitempty"`        // default "30s"
	Near       string `json:"near,omitempty"`        // default "30s"
	NearWindow string `json:"near_window,omitempty"` // default "10m"
	Baseline   string `json:"baseline,omitempty"`    // default "60s"
}

// NotifierConfig controls subscriber fan-out.
type NotifierConfig struct {
	RatePerSec  int    `json:"rate_per_sec"`
	Burst       int    `json:"burst,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`
}

// StorageConfig controls the subscriber store.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./livewatch_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// OpsConfig controls the ops HTTP listener (/metrics, /healthz, /debug/pprof).
//
// Prefer binding to localhost. A non-loopback address needs a token or allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:9090"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout string `json:"read_timeout,omitempty"`
	IdleTimeout string `json:"idle_timeout,omitempty"`
}
