package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "livewatch"

// Fetch failure causes.
const (
	CauseTimeout = "timeout"
	CauseNetwork = "network"
	CauseStatus  = "status"
	CauseInvalid = "invalid"
)

// Metrics holds the collectors for the poll loop, fetcher and notifier.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Polls          prometheus.Counter
	Fetches        prometheus.Counter
	CacheHits      prometheus.Counter
	FetchFailures  *prometheus.CounterVec
	FetchDuration  prometheus.Histogram
	Transitions    *prometheus.CounterVec
	Deliveries     *prometheus.CounterVec
	SubsRemoved    prometheus.Counter
	PollInterval   prometheus.Gauge
	EventLive      prometheus.Gauge
	NotableLiveCnt prometheus.Gauge
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Polls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "watch", Name: "polls_total",
			Help: "Total poll cycles run.",
		}),
		Fetches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "source", Name: "requests_total",
			Help: "Total network requests to the aggregate source.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "source", Name: "cache_hits_total",
			Help: "Fetches served from the freshness cache.",
		}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "source", Name: "failures_total",
			Help: "Failed fetches by cause (timeout, network, status, invalid).",
		}, []string{"cause"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "source", Name: "request_duration_seconds",
			Help:    "Aggregate source request latency.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "watch", Name: "transitions_total",
			Help: "Detected edge transitions by kind.",
		}, []string{"kind"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "notifier", Name: "deliveries_total",
			Help: "Notification deliveries by category and result.",
		}, []string{"category", "result"}),
		SubsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "notifier", Name: "subscribers_removed_total",
			Help: "Subscribers removed after an unreachable delivery.",
		}),
		PollInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "watch", Name: "poll_interval_seconds",
			Help: "Delay chosen before the next poll.",
		}),
		EventLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "watch", Name: "event_live",
			Help: "1 while the tracked event is live.",
		}),
		NotableLiveCnt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "watch", Name: "notable_live",
			Help: "Number of notable entities currently live.",
		}),
	}
	reg.MustRegister(
		m.Polls, m.Fetches, m.CacheHits, m.FetchFailures, m.FetchDuration,
		m.Transitions, m.Deliveries, m.SubsRemoved,
		m.PollInterval, m.EventLive, m.NotableLiveCnt,
	)
	return m
}

func (m *Metrics) ObservePoll(interval time.Duration, eventLive bool, notableLive int) {
	if m == nil {
		return
	}
	m.Polls.Inc()
	m.PollInterval.Set(interval.Seconds())
	if eventLive {
		m.EventLive.Set(1)
	} else {
		m.EventLive.Set(0)
	}
	m.NotableLiveCnt.Set(float64(notableLive))
}

func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.Fetches.Inc()
	m.FetchDuration.Observe(d.Seconds())
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

func (m *Metrics) FetchFailed(cause string) {
	if m == nil {
		return
	}
	m.FetchFailures.WithLabelValues(cause).Inc()
}

func (m *Metrics) Transition(kind string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(kind).Inc()
}

func (m *Metrics) Delivery(category, result string) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(category, result).Inc()
}

func (m *Metrics) SubscriberRemoved() {
	if m == nil {
		return
	}
	m.SubsRemoved.Inc()
}
