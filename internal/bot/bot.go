// Package bot is the chat front-end: it renders watch events into
// notifications for subscribers and serves the user commands.
package bot

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"

	"livewatch/internal/notifier"
	rtsup "livewatch/internal/runtime/supervisor"
	"livewatch/internal/source"
	"livewatch/internal/storage"
	"livewatch/internal/watch"
	logx "livewatch/pkg/logx"
)

// StatusReader is the read side of the poll loop.
type StatusReader interface {
	CurrentEventStatus(ctx context.Context) watch.LiveStatus
	CurrentNotableStatus(ctx context.Context) watch.NotablePeopleStatus
	State() watch.State
	NextOccurrence() time.Time
}

type Dispatcher interface {
	Dispatch(recipients []int64, msg notifier.Message, category storage.Category) (string, error)
	Recent(n int) []notifier.DispatchStatus
	InFlight() int64
}

// CacheReader exposes the fetcher's last good snapshot.
type CacheReader interface {
	Cached() (*source.Snapshot, time.Time)
}

type Deps struct {
	Watcher    StatusReader
	Store      storage.Store
	Dispatcher Dispatcher
	Source     CacheReader // optional
	Location   *time.Location
	Clock      clockwork.Clock
	// Runtime lists named supervisors for /health. Optional.
	Runtime func() map[string]rtsup.Snapshot
	// Dropped reports event bus drops. Optional.
	Dropped func() uint64
}

type Bot struct {
	deps      Deps
	log       logx.Logger
	startedAt time.Time

	// consumer-owned
	tracker watch.PlatformTracker
}

func New(deps Deps, log logx.Logger) (*Bot, error) {
	if deps.Watcher == nil || deps.Store == nil || deps.Dispatcher == nil {
		return nil, errors.New("bot: watcher, store and dispatcher are required")
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	return &Bot{deps: deps, log: log, startedAt: deps.Clock.Now()}, nil
}
