package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livewatch/internal/eventbus"
	"livewatch/internal/metrics"
	"livewatch/internal/storage"
	kit "livewatch/internal/transport"
	logx "livewatch/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  map[int64]string
	fail  map[int64]error
	block chan struct{}
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: map[int64]string{}, fail: map[int64]error{}}
}

func (f *fakeSender) SendText(ctx context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return kit.MessageRef{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[to.ChatID]; err != nil {
		return kit.MessageRef{}, err
	}
	f.sent[to.ChatID] = text
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeSender) sentTo() map[int64]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int64]string, len(f.sent))
	for k, v := range f.sent {
		out[k] = v
	}
	return out
}

func seedStore(t *testing.T, ids ...int64) storage.Store {
	t.Helper()
	st := storage.NewMemory()
	for _, id := range ids {
		for _, c := range storage.Categories {
			_, err := st.AddSubscriber(context.Background(), c, id)
			require.NoError(t, err)
		}
	}
	return st
}

func stop(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))
}

func TestDispatchRemovesUnreachableRecipient(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t, 1, 2, 3)
	sender := newFakeSender()
	sender.fail[2] = fmt.Errorf("telegram: %w: bot was blocked by the user", kit.ErrRecipientUnreachable)
	sender.fail[3] = errors.New("telegram: too many requests")

	bus := eventbus.New()
	events, unsub := bus.Subscribe(16, "notifier.")
	defer unsub()
	m := metrics.New(prometheus.NewRegistry())

	d := New(Config{RatePerSec: 1000}, sender, store, logx.Nop(), Deps{Bus: bus, Metrics: m})
	d.Start(ctx)
	id, err := d.Dispatch([]int64{1, 2, 3}, Message{Text: "live now"}, storage.CategoryLive)
	require.NoError(t, err)
	stop(t, d)

	assert.Equal(t, map[int64]string{1: "live now"}, sender.sentTo())
	for _, c := range storage.Categories {
		ids, err := store.ListSubscribers(ctx, c)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 3}, ids, "unreachable recipient leaves %s; transient failure stays", c)
	}

	st, ok := d.Status(id)
	require.True(t, ok)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 1, st.Sent)
	assert.Equal(t, 1, st.Failed)
	assert.Equal(t, 1, st.Unreachable)
	assert.False(t, st.DoneAt.IsZero())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubsRemoved))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("live", "unreachable")))

	types := map[string]int{}
	for i := 0; i < 3; i++ {
		ev := <-events
		types[ev.Type]++
	}
	assert.Equal(t, map[string]int{
		eventbus.TypeNotifySent:   1,
		eventbus.TypeNotifyFailed: 1,
		eventbus.TypeUnreachable:  1,
	}, types)
}

func TestDispatchReachesEveryRecipient(t *testing.T) {
	sender := newFakeSender()
	d := New(Config{RatePerSec: 1000, Burst: 100}, sender, storage.NewMemory(), logx.Nop(), Deps{})
	d.Start(context.Background())

	want := map[int64]string{}
	var ids []int64
	for id := int64(100); id < 140; id++ {
		ids = append(ids, id)
		want[id] = "hi"
	}
	_, err := d.Dispatch(ids, Message{Text: "hi"}, storage.CategoryNotable)
	require.NoError(t, err)
	stop(t, d)

	assert.Equal(t, want, sender.sentTo())
}

func TestDispatchReturnsBeforeDelivery(t *testing.T) {
	sender := newFakeSender()
	sender.block = make(chan struct{})
	d := New(Config{}, sender, nil, logx.Nop(), Deps{})
	d.Start(context.Background())

	_, err := d.Dispatch([]int64{7, 8}, Message{Text: "hi"}, storage.CategoryNotable)
	require.NoError(t, err)
	assert.Empty(t, sender.sentTo(), "nothing delivered while the sender is blocked")

	close(sender.block)
	stop(t, d)
	assert.Len(t, sender.sentTo(), 2)
}

func TestStopCancelsWhenDeadlinePasses(t *testing.T) {
	sender := newFakeSender()
	sender.block = make(chan struct{})
	defer close(sender.block)
	d := New(Config{}, sender, nil, logx.Nop(), Deps{})
	d.Start(context.Background())
	_, err := d.Dispatch([]int64{1}, Message{Text: "x"}, storage.CategoryLive)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Stop(ctx), context.DeadlineExceeded)
}

func TestDispatchAfterStop(t *testing.T) {
	d := New(Config{}, newFakeSender(), nil, logx.Nop(), Deps{})
	_, err := d.Dispatch([]int64{1}, Message{Text: "x"}, storage.CategoryLive)
	assert.ErrorIs(t, err, ErrStopped)

	d.Start(context.Background())
	stop(t, d)
	_, err = d.Dispatch([]int64{1}, Message{Text: "x"}, storage.CategoryLive)
	assert.ErrorIs(t, err, ErrStopped)
}

func TestEmptyDispatchFinishesImmediately(t *testing.T) {
	d := New(Config{}, newFakeSender(), nil, logx.Nop(), Deps{})
	d.Start(context.Background())
	defer stop(t, d)

	id, err := d.Dispatch(nil, Message{Text: "x"}, storage.CategoryThumbnail)
	require.NoError(t, err)
	st, ok := d.Status(id)
	require.True(t, ok)
	assert.Zero(t, st.Pending())
	assert.False(t, st.DoneAt.IsZero())
	assert.Len(t, d.Recent(5), 1)
}

func TestConfigDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	assert.Equal(t, DefaultRatePerSec, c.RatePerSec)
	assert.Equal(t, DefaultRatePerSec, c.Burst)
	assert.Equal(t, DefaultSendTimeout, c.SendTimeout)
}
