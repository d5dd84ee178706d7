package watch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"livewatch/internal/eventbus"
	"livewatch/internal/metrics"
	rtsup "livewatch/internal/runtime/supervisor"
	"livewatch/internal/source"
	logx "livewatch/pkg/logx"
)

// Fetcher returns the latest snapshot, or nil when none is available.
type Fetcher interface {
	Fetch(ctx context.Context, forceFresh bool) *source.Snapshot
}

// Estimator returns the nominal occurrence relevant at now. done reports the
// current occurrence already happened.
type Estimator interface {
	Next(now time.Time, done bool) time.Time
}

type Options struct {
	Fetcher   Fetcher
	Estimator Estimator // optional; without it the schedule rules are skipped
	Intervals Intervals
	// LateBuffer bounds how long a seen occurrence counts as done.
	LateBuffer time.Duration

	Clock   clockwork.Clock
	Metrics *metrics.Metrics
	Bus     eventbus.Bus
}

// Watcher seeds a baseline, then runs Fetch, Normalize, Detect, emit and
// sleep until stopped.
type Watcher struct {
	fetcher Fetcher
	est     Estimator
	buffer  time.Duration
	clock   clockwork.Clock
	metrics *metrics.Metrics
	bus     eventbus.Bus
	log     logx.Logger

	mu        sync.Mutex
	state     State
	intervals Intervals
	gen       uint64
	sup       *rtsup.Supervisor
}

func New(opts Options, log logx.Logger) (*Watcher, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("watch: fetcher is required")
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.LateBuffer <= 0 {
		opts.LateBuffer = 5 * time.Hour
	}
	return &Watcher{
		fetcher:   opts.Fetcher,
		est:       opts.Estimator,
		buffer:    opts.LateBuffer,
		clock:     opts.Clock,
		metrics:   opts.Metrics,
		bus:       opts.Bus,
		log:       log,
		intervals: opts.Intervals.withDefaults(),
	}, nil
}

// Start seeds the baseline without emitting and begins polling. Events are
// sent to out until Stop or ctx is done. No-op while running.
func (w *Watcher) Start(ctx context.Context, out chan<- Event) error {
	if out == nil {
		return errors.New("watch: out channel is nil")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state.Running {
		return nil
	}
	w.gen++
	gen := w.gen
	w.state = State{Running: true}
	if w.sup != nil {
		w.sup.Cancel()
	}
	w.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(w.log))
	w.sup.Go0("watch.loop", func(c context.Context) { w.run(c, gen, out) })
	w.log.Info("watcher started")
	return nil
}

// Stop cancels the pending delay, drops the output channel and resets state.
// An in-flight fetch finishes on its own timeout. Idempotent.
func (w *Watcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.state.Running {
		w.mu.Unlock()
		return nil
	}
	sup := w.sup
	w.sup = nil
	w.gen++
	w.state = State{}
	w.mu.Unlock()

	w.log.Info("watcher stopping")
	return sup.Stop(ctx)
}

// Running reports whether the loop is active.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.Running
}

// State returns a deep copy of the loop state.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.clone()
}

// SetIntervals replaces the poll intervals; the next sleep uses them.
func (w *Watcher) SetIntervals(iv Intervals) {
	w.mu.Lock()
	w.intervals = iv.withDefaults()
	w.mu.Unlock()
}

// CurrentEventStatus fetches (cache-aware) and normalizes without touching loop state.
func (w *Watcher) CurrentEventStatus(ctx context.Context) LiveStatus {
	return Normalize(w.fetcher.Fetch(ctx, false))
}

// CurrentNotableStatus fetches (cache-aware) and normalizes without touching loop state.
func (w *Watcher) CurrentNotableStatus(ctx context.Context) NotablePeopleStatus {
	return NormalizeNotable(w.fetcher.Fetch(ctx, false))
}

// NextOccurrence is the nominal time the loop is currently aiming at.
func (w *Watcher) NextOccurrence() time.Time {
	if w.est == nil {
		return time.Time{}
	}
	now := w.clock.Now()
	return w.est.Next(now, w.done(w.State(), now))
}

func (w *Watcher) run(ctx context.Context, gen uint64, out chan<- Event) {
	// Parent cancel or a recovered panic ends the loop without Stop.
	defer func() {
		if w.commit(gen, func(s *State) { *s = State{} }) {
			w.log.Warn("watch loop exited without stop", logx.Err(context.Cause(ctx)))
		}
	}()
	if !w.seed(ctx, gen) {
		return
	}
	for {
		if !w.cycle(ctx, gen, out) {
			return
		}
		t := w.clock.NewTimer(w.nextDelay(gen))
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.Chan():
		}
	}
}

// seed records the first observation as the baseline.
func (w *Watcher) seed(ctx context.Context, gen uint64) bool {
	var (
		ev      LiveStatus
		notable NotablePeopleStatus
	)
	var g errgroup.Group
	g.Go(func() error {
		ev = w.CurrentEventStatus(ctx)
		return nil
	})
	g.Go(func() error {
		notable = w.CurrentNotableStatus(ctx)
		return nil
	})
	_ = g.Wait()

	now := w.clock.Now()
	ok := w.commit(gen, func(s *State) {
		s.LastStatus = &ev
		s.LastNotableStatus = &notable
		s.LastThumbnailFresh = ev.IsThumbnailFresh
		s.LastPollAt = now
		if ev.IsLive && ev.IsEvent {
			s.EventSeenAt = now
		}
	})
	if ok {
		w.log.Info("baseline seeded",
			logx.Bool("live", ev.IsLive),
			logx.Bool("event", ev.IsEvent),
			logx.Int("notable_live", notable.LiveCount()),
		)
	}
	return ok
}

// cycle runs one poll. It returns false once the loop should exit.
func (w *Watcher) cycle(ctx context.Context, gen uint64, out chan<- Event) bool {
	snap := w.fetcher.Fetch(ctx, false)
	if ctx.Err() != nil {
		return false
	}
	cur := Normalize(snap)
	curNotable := NormalizeNotable(snap)
	now := w.clock.Now()

	var (
		prev        *LiveStatus
		prevNotable *NotablePeopleStatus
	)
	ok := w.commit(gen, func(s *State) {
		prev, prevNotable = s.LastStatus, s.LastNotableStatus
		c, n := cur.Clone(), curNotable.Clone()
		s.LastStatus = &c
		s.LastNotableStatus = &n
		s.LastThumbnailFresh = cur.IsThumbnailFresh
		s.LastPollAt = now
		if cur.IsLive && cur.IsEvent {
			s.EventSeenAt = now
		}
	})
	if !ok {
		return false
	}

	var events []Event
	diff := Detect(prev, cur)
	if diff.Any() {
		events = append(events, StatusChanged{Current: cur, Previous: prev, Diff: diff})
		w.countTransitions(diff)
	}
	if diff.ThumbnailNewlyFresh {
		events = append(events, ThumbnailSignal{Current: cur, Previous: prev})
		w.metrics.Transition("thumbnail_fresh")
	}
	for _, id := range DetectNotable(prevNotable, curNotable) {
		events = append(events, EntityWentLive{ID: id, Person: curNotable.People[id], Current: curNotable})
		w.metrics.Transition("notable_live")
	}

	for _, ev := range events {
		if !w.emit(ctx, gen, out, ev) {
			return false
		}
	}
	return true
}

func (w *Watcher) countTransitions(d Diff) {
	if d.WentLive {
		w.metrics.Transition("went_live")
	}
	if d.EventStarted {
		w.metrics.Transition("event_started")
	}
	if len(d.PlatformsStarted) > 0 {
		w.metrics.Transition("platform_started")
	}
}

func (w *Watcher) emit(ctx context.Context, gen uint64, out chan<- Event, ev Event) bool {
	if !w.current(gen) {
		return false
	}
	w.log.Info("transition detected", logx.String("kind", ev.Kind()))
	if w.bus != nil {
		w.bus.Publish(eventbus.Event{Type: busType(ev), Data: ev})
	}
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func busType(ev Event) string {
	switch ev.(type) {
	case StatusChanged:
		return eventbus.TypeStatusChanged
	case EntityWentLive:
		return eventbus.TypeEntityWentLive
	default:
		return eventbus.TypeThumbnailSignal
	}
}

func (w *Watcher) nextDelay(gen uint64) time.Duration {
	now := w.clock.Now()
	w.mu.Lock()
	st := w.state.clone()
	iv := w.intervals
	w.mu.Unlock()

	var nominal time.Time
	if w.est != nil {
		nominal = w.est.Next(now, w.done(st, now))
	}
	delay := iv.Select(st.LastStatus, nominal, now)

	notableLive := 0
	if st.LastNotableStatus != nil {
		notableLive = st.LastNotableStatus.LiveCount()
	}
	eventLive := st.LastStatus != nil && st.LastStatus.IsLive && st.LastStatus.IsEvent
	w.metrics.ObservePoll(delay, eventLive, notableLive)
	w.commit(gen, func(s *State) { s.NextPollIn = delay })
	w.log.Debug("next poll scheduled", logx.Duration("in", delay), logx.Time("nominal", nominal))
	return delay
}

// done reports that the current occurrence was seen live recently and is over.
func (w *Watcher) done(st State, now time.Time) bool {
	if st.EventSeenAt.IsZero() || now.Sub(st.EventSeenAt) >= w.buffer {
		return false
	}
	return st.LastStatus == nil || !(st.LastStatus.IsLive && st.LastStatus.IsEvent)
}

func (w *Watcher) current(gen uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gen == gen
}

// commit applies fn to the state if the loop generation is still current.
func (w *Watcher) commit(gen uint64, fn func(s *State)) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gen != gen {
		return false
	}
	fn(&w.state)
	return true
}
