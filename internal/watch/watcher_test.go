package watch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livewatch/internal/source"
	logx "livewatch/pkg/logx"
)

type fakeFetcher struct {
	mu    sync.Mutex
	snap  *source.Snapshot
	calls atomic.Int32
	boom  atomic.Bool

	// hold, when set, parks the next Fetch until it is closed.
	hold    chan struct{}
	entered chan struct{}
}

func (f *fakeFetcher) set(s *source.Snapshot) {
	f.mu.Lock()
	f.snap = s
	f.mu.Unlock()
}

// holdNext parks the next Fetch. Close the returned channel to release it.
func (f *fakeFetcher) holdNext() (release chan struct{}, entered chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hold, f.entered = make(chan struct{}), make(chan struct{})
	return f.hold, f.entered
}

func (f *fakeFetcher) Fetch(context.Context, bool) *source.Snapshot {
	f.calls.Add(1)
	if f.boom.Load() {
		panic("fetch exploded")
	}
	f.mu.Lock()
	hold, entered := f.hold, f.entered
	f.hold, f.entered = nil, nil
	f.mu.Unlock()
	if hold != nil {
		close(entered)
		<-hold
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

type recordingEstimator struct {
	next     time.Time
	lastDone atomic.Bool
}

func (e *recordingEstimator) Next(_ time.Time, done bool) time.Time {
	e.lastDone.Store(done)
	return e.next
}

func snapshot(live, event, thumb bool, notable map[string]bool) *source.Snapshot {
	off := func() *source.PlatformStatus { return &source.PlatformStatus{} }
	s := &source.Snapshot{
		YouTube:       &source.PlatformStatus{IsLive: live, IsEvent: event, IsThumbnailNew: thumb, Title: "The Show"},
		Floatplane:    off(),
		Twitch:        off(),
		NotablePeople: map[string]source.NotablePerson{},
	}
	for id, l := range notable {
		s.NotablePeople[id] = source.NotablePerson{IsLive: l, Name: id}
	}
	return s
}

type harness struct {
	w     *Watcher
	f     *fakeFetcher
	clock *clockwork.FakeClock
	out   chan Event
}

func startHarness(t *testing.T, seed *source.Snapshot, est Estimator) *harness {
	t.Helper()
	return startHarnessCtx(t, context.Background(), seed, est)
}

func startHarnessCtx(t *testing.T, ctx context.Context, seed *source.Snapshot, est Estimator) *harness {
	t.Helper()
	h := &harness{
		f:     &fakeFetcher{},
		clock: clockwork.NewFakeClockAt(time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)),
		out:   make(chan Event, 32),
	}
	h.f.set(seed)
	w, err := New(Options{Fetcher: h.f, Estimator: est, Clock: h.clock}, logx.Nop())
	require.NoError(t, err)
	h.w = w
	require.NoError(t, w.Start(ctx, h.out))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = w.Stop(ctx)
	})
	h.waitSleeping(t)
	return h
}

func (h *harness) waitSleeping(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1), "loop never went to sleep")
}

func drain(out chan Event) []Event {
	var got []Event
	for {
		select {
		case ev := <-out:
			got = append(got, ev)
		default:
			return got
		}
	}
}

// poll serves snap on the next cycle and waits for the loop to sleep again.
func (h *harness) poll(t *testing.T, snap *source.Snapshot) []Event {
	t.Helper()
	h.f.set(snap)
	h.clock.Advance(10 * time.Minute)
	h.waitSleeping(t)
	return drain(h.out)
}

func TestBaselineSeedScenario(t *testing.T) {
	h := startHarness(t, snapshot(false, false, false, nil), nil)
	assert.Empty(t, h.out, "baseline seed must not emit")

	got := h.poll(t, snapshot(true, true, false, nil))
	require.Len(t, got, 1)
	sc, ok := got[0].(StatusChanged)
	require.True(t, ok)
	assert.True(t, sc.Diff.WentLive)
	assert.True(t, sc.Diff.EventStarted)
	require.NotNil(t, sc.Previous)
	assert.False(t, sc.Previous.IsLive)
	assert.Equal(t, "The Show", sc.Current.Title)
	assert.Equal(t, 5*time.Minute, h.w.State().NextPollIn)

	assert.Empty(t, h.poll(t, snapshot(true, true, false, nil)), "steady live must not emit")
	assert.Empty(t, h.poll(t, snapshot(false, false, false, nil)), "end of stream must not emit")

	st := h.w.State()
	require.NotNil(t, st.LastStatus)
	assert.False(t, st.LastStatus.IsLive)
	assert.Equal(t, 60*time.Second, st.NextPollIn)
}

func TestNotableAndThumbnailEvents(t *testing.T) {
	h := startHarness(t, snapshot(false, false, false, map[string]bool{"a": false, "b": true}), nil)

	got := h.poll(t, snapshot(false, false, true, map[string]bool{"a": true, "b": true}))
	require.Len(t, got, 2)
	thumb, ok := got[0].(ThumbnailSignal)
	require.True(t, ok)
	assert.True(t, thumb.Current.IsThumbnailFresh)
	ent, ok := got[1].(EntityWentLive)
	require.True(t, ok)
	assert.Equal(t, "a", ent.ID)
	assert.True(t, ent.Current.HasAnyLive)
	assert.Equal(t, 10*time.Second, h.w.State().NextPollIn)
}

func TestFetchFailureKeepsLoopAlive(t *testing.T) {
	h := startHarness(t, nil, nil)
	st := h.w.State()
	require.NotNil(t, st.LastStatus)
	assert.False(t, st.LastStatus.IsLive, "absent snapshot seeds the offline status")

	got := h.poll(t, snapshot(true, true, false, nil))
	require.Len(t, got, 1)
	assert.True(t, got[0].(StatusChanged).Diff.WentLive)
}

func TestDoneFlagAfterEventEnds(t *testing.T) {
	est := &recordingEstimator{next: time.Date(2026, 10, 14, 11, 0, 0, 0, time.UTC)}
	h := startHarness(t, snapshot(false, false, false, nil), est)
	assert.False(t, est.lastDone.Load())
	assert.Equal(t, 30*time.Second, h.w.State().NextPollIn, "past nominal means late")

	h.poll(t, snapshot(true, true, false, nil))
	assert.False(t, est.lastDone.Load(), "not done while live")

	h.poll(t, snapshot(false, false, false, nil))
	assert.True(t, est.lastDone.Load(), "seen live within the buffer and now offline")
}

func TestStopCancelsPendingDelay(t *testing.T) {
	h := startHarness(t, snapshot(false, false, false, nil), nil)
	require.True(t, h.w.Running())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.w.Stop(ctx), "stop must not wait out the interval")

	st := h.w.State()
	assert.False(t, st.Running)
	assert.Nil(t, st.LastStatus)
	assert.NoError(t, h.w.Stop(ctx), "second stop is a no-op")

	calls := h.f.calls.Load()
	h.clock.Advance(time.Hour)
	assert.Equal(t, calls, h.f.calls.Load(), "no polling after stop")
}

func TestStartIsIdempotent(t *testing.T) {
	h := startHarness(t, snapshot(false, false, false, nil), nil)
	calls := h.f.calls.Load()
	require.NoError(t, h.w.Start(context.Background(), h.out))
	assert.Equal(t, calls, h.f.calls.Load(), "second start must not seed again")
}

func TestCurrentStatusDoesNotTouchLoopState(t *testing.T) {
	h := startHarness(t, snapshot(false, false, false, nil), nil)
	h.f.set(snapshot(true, true, false, map[string]bool{"z": true}))

	cur := h.w.CurrentEventStatus(context.Background())
	assert.True(t, cur.IsLive)
	assert.True(t, h.w.CurrentNotableStatus(context.Background()).HasAnyLive)
	assert.False(t, h.w.State().LastStatus.IsLive)
}

func TestStartRequiresOut(t *testing.T) {
	w, err := New(Options{Fetcher: &fakeFetcher{}}, logx.Nop())
	require.NoError(t, err)
	assert.Error(t, w.Start(context.Background(), nil))

	_, err = New(Options{}, logx.Nop())
	assert.Error(t, err)
}

func TestFirstCycleRunsRightAfterSeed(t *testing.T) {
	h := startHarness(t, snapshot(false, false, false, nil), nil)
	// two seed fetches plus the first cycle, before any sleep
	assert.Equal(t, int32(3), h.f.calls.Load())
	assert.False(t, h.w.State().LastPollAt.IsZero())
}

func TestParentCancelResetsState(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := startHarnessCtx(t, ctx, snapshot(false, false, false, nil), nil)
	require.True(t, h.w.Running())

	cancel()
	require.Eventually(t, func() bool { return !h.w.Running() }, 2*time.Second, 5*time.Millisecond)
	assert.Nil(t, h.w.State().LastStatus)

	calls := h.f.calls.Load()
	require.NoError(t, h.w.Start(context.Background(), h.out))
	h.waitSleeping(t)
	assert.True(t, h.w.Running())
	assert.Greater(t, h.f.calls.Load(), calls, "restart seeds again")
	require.NotNil(t, h.w.State().LastStatus)
}

func TestPanickingCycleResetsState(t *testing.T) {
	h := startHarness(t, snapshot(false, false, false, nil), nil)

	h.f.boom.Store(true)
	h.clock.Advance(10 * time.Minute)
	require.Eventually(t, func() bool { return !h.w.Running() }, 2*time.Second, 5*time.Millisecond)

	h.f.boom.Store(false)
	require.NoError(t, h.w.Start(context.Background(), h.out))
	h.waitSleeping(t)
	assert.True(t, h.w.Running())
}

func TestStaleCycleDoesNotLeakAfterStop(t *testing.T) {
	h := startHarness(t, snapshot(false, false, false, nil), nil)
	h.w.mu.Lock()
	oldSup := h.w.sup
	h.w.mu.Unlock()

	release, entered := h.f.holdNext()
	h.clock.Advance(10 * time.Minute)
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("cycle never fetched")
	}

	// The parked fetch keeps the old loop alive past the stop deadline.
	stopCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.w.Stop(stopCtx), context.DeadlineExceeded)
	assert.False(t, h.w.Running())

	require.NoError(t, h.w.Start(context.Background(), h.out))
	h.waitSleeping(t)
	assert.Empty(t, drain(h.out))

	h.f.set(snapshot(true, true, true, map[string]bool{"a": true}))
	close(release)
	waitCtx, cancelWait := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelWait()
	require.NoError(t, oldSup.Wait(waitCtx))

	assert.Empty(t, drain(h.out), "stale cycle must not emit")
	st := h.w.State()
	assert.True(t, st.Running)
	require.NotNil(t, st.LastStatus)
	assert.False(t, st.LastStatus.IsLive, "stale cycle must not write state")
}
