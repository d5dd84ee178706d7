package notifier

import (
	"context"
	"errors"
	"time"

	"livewatch/internal/storage"
)

var ErrStopped = errors.New("notifier stopped")

const (
	DefaultRatePerSec  = 25
	DefaultSendTimeout = 10 * time.Second
)

type Config struct {
	RatePerSec  int
	Burst       int
	SendTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.RatePerSec <= 0 {
		c.RatePerSec = DefaultRatePerSec
	}
	if c.Burst <= 0 {
		c.Burst = c.RatePerSec
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	return c
}

// Remover drops a recipient from every subscription list.
type Remover interface {
	RemoveSubscriber(ctx context.Context, id int64) error
}

// Message is a rendered notification.
type Message struct {
	Text           string
	ParseMode      string
	DisablePreview bool
}

// Result is the outcome of one delivery.
type Result string

const (
	ResultSent        Result = "sent"
	ResultFailed      Result = "failed"
	ResultUnreachable Result = "unreachable"
	ResultCanceled    Result = "canceled"
)

// Delivery is published on the event bus for every finished delivery.
type Delivery struct {
	Dispatch  string           `json:"dispatch"`
	Category  storage.Category `json:"category"`
	Recipient int64            `json:"recipient"`
	Result    Result           `json:"result"`
	At        time.Time        `json:"at"`
	Error     string           `json:"error,omitempty"`
}

// DispatchStatus summarizes one Dispatch call.
type DispatchStatus struct {
	ID          string
	Category    storage.Category
	Total       int
	Sent        int
	Failed      int
	Unreachable int
	CreatedAt   time.Time
	DoneAt      time.Time
}

// Pending is the number of deliveries not finished yet.
func (s DispatchStatus) Pending() int {
	return s.Total - s.Sent - s.Failed - s.Unreachable
}
