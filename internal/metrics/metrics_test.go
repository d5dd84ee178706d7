package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObservePoll(30*time.Second, true, 2)
	m.ObserveFetch(200 * time.Millisecond)
	m.CacheHit()
	m.FetchFailed(CauseTimeout)
	m.FetchFailed(CauseTimeout)
	m.Transition("went_live")
	m.Delivery("live", "sent")
	m.SubscriberRemoved()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Polls))
	assert.Equal(t, 30.0, testutil.ToFloat64(m.PollInterval))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventLive))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.NotableLiveCnt))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fetches))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FetchFailures.WithLabelValues(CauseTimeout)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("went_live")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("live", "sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubsRemoved))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObservePoll(time.Second, false, 0)
		m.ObserveFetch(time.Second)
		m.CacheHit()
		m.FetchFailed(CauseInvalid)
		m.Transition("x")
		m.Delivery("live", "failed")
		m.SubscriberRemoved()
	})
}
