package notifier

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"livewatch/internal/eventbus"
	"livewatch/internal/metrics"
	rtsup "livewatch/internal/runtime/supervisor"
	"livewatch/internal/storage"
	kit "livewatch/internal/transport"
	logx "livewatch/pkg/logx"
)

const (
	statusMax     = 64
	removeTimeout = 5 * time.Second
)

// Deps are optional collaborators.
type Deps struct {
	Bus     eventbus.Bus
	Metrics *metrics.Metrics
	Clock   clockwork.Clock
}

type Dispatcher struct {
	sender  kit.Sender
	store   Remover
	log     logx.Logger
	bus     eventbus.Bus
	metrics *metrics.Metrics
	clock   clockwork.Clock

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	sup     *rtsup.Supervisor

	seq      atomic.Uint64
	statusMu sync.Mutex
	status   map[string]*DispatchStatus
}

func New(cfg Config, sender kit.Sender, store Remover, log logx.Logger, deps Deps) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	cfg = cfg.withDefaults()
	return &Dispatcher{
		sender:  sender,
		store:   store,
		log:     log,
		bus:     deps.Bus,
		metrics: deps.Metrics,
		clock:   deps.Clock,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		status:  map[string]*DispatchStatus{},
	}
}

// Apply swaps rate and timeout settings. In-flight deliveries keep the
// limiter they already hold.
func (d *Dispatcher) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	d.mu.Lock()
	defer d.mu.Unlock()
	if cfg.RatePerSec != d.cfg.RatePerSec || cfg.Burst != d.cfg.Burst {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst)
	}
	d.cfg = cfg
}

// Start enables Dispatch. No-op while running.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sup != nil {
		return
	}
	d.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(d.log))
	d.log.Info("dispatcher started", logx.Int("rps", d.cfg.RatePerSec), logx.Int("burst", d.cfg.Burst))
}

// Stop rejects new dispatches and waits for in-flight deliveries. When ctx
// expires first the remaining deliveries are canceled.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	sup := d.sup
	d.sup = nil
	d.mu.Unlock()
	if sup == nil {
		return nil
	}
	start := d.clock.Now()
	if err := sup.Wait(ctx); err != nil && ctx.Err() != nil {
		sup.Cancel()
		d.log.Warn("dispatcher stop timed out; canceling deliveries", logx.Err(err))
		return err
	}
	sup.Cancel()
	d.log.Info("dispatcher stopped", logx.Duration("took", d.clock.Since(start)))
	return nil
}

// Dispatch schedules one delivery per recipient and returns without waiting
// for them. The returned id keys Status.
func (d *Dispatcher) Dispatch(recipients []int64, msg Message, category storage.Category) (string, error) {
	// Held while spawning so Stop cannot start waiting mid-fanout.
	d.mu.Lock()
	defer d.mu.Unlock()
	sup := d.sup
	lim := d.limiter
	timeout := d.cfg.SendTimeout
	if sup == nil {
		return "", ErrStopped
	}

	id := fmt.Sprintf("d%08d", d.seq.Add(1))
	d.track(&DispatchStatus{ID: id, Category: category, Total: len(recipients), CreatedAt: d.clock.Now()})
	if len(recipients) == 0 {
		d.finishIfDone(id)
		return id, nil
	}
	d.log.Debug("dispatch scheduled",
		logx.String("dispatch", id),
		logx.String("category", string(category)),
		logx.Int("recipients", len(recipients)),
	)

	opt := &kit.SendOptions{ParseMode: msg.ParseMode, DisablePreview: msg.DisablePreview}
	for _, rid := range recipients {
		sup.Go0("notify."+string(category), func(sctx context.Context) {
			res := d.deliver(sctx, lim, timeout, rid, msg.Text, opt)
			d.record(id, category, rid, res)
		})
	}
	return id, nil
}

type outcome struct {
	result Result
	err    error
}

func (d *Dispatcher) deliver(ctx context.Context, lim *rate.Limiter, timeout time.Duration, rid int64, text string, opt *kit.SendOptions) outcome {
	if err := lim.Wait(ctx); err != nil {
		return outcome{result: ResultCanceled, err: err}
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := d.sender.SendText(sctx, kit.ChatTarget{ChatID: rid}, text, opt)
	switch {
	case err == nil:
		return outcome{result: ResultSent}
	case errors.Is(err, kit.ErrRecipientUnreachable):
		d.drop(ctx, rid, err)
		return outcome{result: ResultUnreachable, err: err}
	case ctx.Err() != nil:
		return outcome{result: ResultCanceled, err: err}
	default:
		d.log.Warn("delivery failed", logx.Int64("recipient", rid), logx.Err(err))
		return outcome{result: ResultFailed, err: err}
	}
}

// drop removes a recipient that can no longer be reached.
func (d *Dispatcher) drop(ctx context.Context, rid int64, cause error) {
	if d.store == nil {
		d.log.Info("recipient unreachable", logx.Int64("recipient", rid), logx.Err(cause))
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), removeTimeout)
	defer cancel()
	if err := d.store.RemoveSubscriber(rctx, rid); err != nil {
		d.log.Warn("unsubscribe of unreachable recipient failed", logx.Int64("recipient", rid), logx.Err(err))
		return
	}
	d.metrics.SubscriberRemoved()
	d.log.Info("recipient unreachable; unsubscribed", logx.Int64("recipient", rid), logx.Err(cause))
}

func (d *Dispatcher) record(id string, category storage.Category, rid int64, o outcome) {
	now := d.clock.Now()
	d.metrics.Delivery(string(category), string(o.result))

	d.statusMu.Lock()
	if st, ok := d.status[id]; ok {
		switch o.result {
		case ResultSent:
			st.Sent++
		case ResultUnreachable:
			st.Unreachable++
		default:
			st.Failed++
		}
		if st.Pending() == 0 {
			st.DoneAt = now
		}
	}
	d.statusMu.Unlock()

	if d.bus == nil {
		return
	}
	ev := Delivery{Dispatch: id, Category: category, Recipient: rid, Result: o.result, At: now}
	if o.err != nil {
		ev.Error = o.err.Error()
	}
	typ := eventbus.TypeNotifyFailed
	switch o.result {
	case ResultSent:
		typ = eventbus.TypeNotifySent
	case ResultUnreachable:
		typ = eventbus.TypeUnreachable
	}
	d.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: ev})
}

func (d *Dispatcher) track(st *DispatchStatus) {
	d.statusMu.Lock()
	defer d.statusMu.Unlock()
	d.status[st.ID] = st
	if len(d.status) <= statusMax {
		return
	}
	// evict the oldest finished entries
	done := make([]*DispatchStatus, 0, len(d.status))
	for _, s := range d.status {
		if !s.DoneAt.IsZero() {
			done = append(done, s)
		}
	}
	sort.Slice(done, func(i, j int) bool { return done[i].CreatedAt.Before(done[j].CreatedAt) })
	for _, s := range done {
		if len(d.status) <= statusMax {
			break
		}
		delete(d.status, s.ID)
	}
}

func (d *Dispatcher) finishIfDone(id string) {
	d.statusMu.Lock()
	defer d.statusMu.Unlock()
	if st, ok := d.status[id]; ok && st.Pending() == 0 {
		st.DoneAt = d.clock.Now()
	}
}

// Status returns a copy of a dispatch summary.
func (d *Dispatcher) Status(id string) (DispatchStatus, bool) {
	d.statusMu.Lock()
	defer d.statusMu.Unlock()
	st, ok := d.status[id]
	if !ok {
		return DispatchStatus{}, false
	}
	return *st, true
}

// Recent returns up to n summaries, newest first.
func (d *Dispatcher) Recent(n int) []DispatchStatus {
	d.statusMu.Lock()
	out := make([]DispatchStatus, 0, len(d.status))
	for _, st := range d.status {
		out = append(out, *st)
	}
	d.statusMu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// InFlight reports the number of running delivery goroutines.
func (d *Dispatcher) InFlight() int64 {
	d.mu.Lock()
	sup := d.sup
	d.mu.Unlock()
	if sup == nil {
		return 0
	}
	return sup.Snapshot().Active
}
