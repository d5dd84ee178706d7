package source

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livewatch/internal/metrics"
	logx "livewatch/pkg/logx"
)

const offlineDoc = `{
  "youtube": {"isLive": false, "isEvent": false},
  "floatplane": {"isLive": false, "isEvent": false},
  "twitch": {"isLive": false, "isEvent": false},
  "notablePeople": {}
}`

const liveDoc = `{
  "youtube": {"isLive": true, "isEvent": true, "title": "The Show", "thumbnail": "https://img/1.jpg", "started": "2026-10-16T23:00:00Z"},
  "floatplane": {"isLive": false, "isEvent": false},
  "twitch": {"isLive": false, "isEvent": false},
  "notablePeople": {"lukas": {"isLive": true, "name": "Lukas", "channel": "lukas", "game": "Factorio"}}
}`

// fakeSource serves a mutable body and counts requests.
type fakeSource struct {
	mu     sync.Mutex
	body   string
	status int
	delay  time.Duration
	calls  atomic.Int32
}

func (f *fakeSource) set(status int, body string) {
	f.mu.Lock()
	f.status, f.body = status, body
	f.mu.Unlock()
}

func (f *fakeSource) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	f.mu.Lock()
	status, body, delay := f.status, f.body, f.delay
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func newTestClient(t *testing.T, h http.Handler, opts Options) (*Client, *clockwork.FakeClock, *bytes.Buffer) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	clock := clockwork.NewFakeClock()
	var logs bytes.Buffer
	opts.URL = srv.URL
	opts.Clock = clock
	c, err := New(opts, logx.NewWriter(&logs, "debug"))
	require.NoError(t, err)
	return c, clock, &logs
}

func TestFetchFreshnessWindow(t *testing.T) {
	src := &fakeSource{status: http.StatusOK, body: offlineDoc}
	m := metrics.New(prometheus.NewRegistry())
	c, clock, _ := newTestClient(t, src, Options{Metrics: m})
	ctx := context.Background()

	first := c.Fetch(ctx, false)
	require.NotNil(t, first)
	second := c.Fetch(ctx, false)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), src.calls.Load(), "second call inside window must not hit the network")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits))

	c.Fetch(ctx, true)
	assert.Equal(t, int32(2), src.calls.Load(), "forced fetch always hits the network")

	clock.Advance(DefaultCacheWindow)
	c.Fetch(ctx, false)
	assert.Equal(t, int32(3), src.calls.Load(), "expired entry is refreshed")
}

func TestFetchInvalidPayloadFallsBack(t *testing.T) {
	src := &fakeSource{status: http.StatusOK, body: liveDoc}
	m := metrics.New(prometheus.NewRegistry())
	c, clock, logs := newTestClient(t, src, Options{Metrics: m})
	ctx := context.Background()

	good := c.Fetch(ctx, true)
	require.NotNil(t, good)
	_, stampBefore := c.Cached()

	clock.Advance(time.Second)
	src.set(http.StatusOK, `{"youtube": null, "floatplane": {}, "twitch": {}, "notablePeople": {}}`)
	got := c.Fetch(ctx, true)
	assert.Same(t, good, got)

	cached, stampAfter := c.Cached()
	assert.Same(t, good, cached)
	assert.Equal(t, stampBefore, stampAfter, "freshness timestamp must not advance on invalid payload")
	assert.Contains(t, logs.String(), "aggregate payload invalid")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchFailures.WithLabelValues(metrics.CauseInvalid)))
}

func TestFetchFailureWithoutCacheReturnsNil(t *testing.T) {
	src := &fakeSource{status: http.StatusBadGateway, body: "oops"}
	c, _, logs := newTestClient(t, src, Options{})

	assert.Nil(t, c.Fetch(context.Background(), false))
	assert.Contains(t, logs.String(), "aggregate fetch failed")
	assert.NotContains(t, logs.String(), "timed out")
}

func TestFetchTimeoutLoggedDistinctly(t *testing.T) {
	src := &fakeSource{status: http.StatusOK, body: offlineDoc, delay: 2 * time.Second}
	m := metrics.New(prometheus.NewRegistry())
	c, _, logs := newTestClient(t, src, Options{Timeout: 50 * time.Millisecond, Metrics: m})

	assert.Nil(t, c.Fetch(context.Background(), true))
	assert.Contains(t, logs.String(), "aggregate fetch timed out")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchFailures.WithLabelValues(metrics.CauseTimeout)))
}

func TestDecodeValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		ok   bool
	}{
		{name: "valid", body: offlineDoc, ok: true},
		{name: "missing twitch", body: `{"youtube":{},"floatplane":{},"notablePeople":{}}`},
		{name: "null notable", body: `{"youtube":{},"floatplane":{},"twitch":{},"notablePeople":null}`},
		{name: "platform is array", body: `{"youtube":[],"floatplane":{},"twitch":{},"notablePeople":{}}`},
		{name: "not json", body: `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := Decode([]byte(tt.body))
			if tt.ok {
				require.NoError(t, err)
				require.NotNil(t, snap.Platform(Twitch))
				return
			}
			assert.ErrorIs(t, err, ErrInvalidSnapshot)
		})
	}
}
