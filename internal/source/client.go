package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"livewatch/internal/eventbus"
	"livewatch/internal/metrics"
	logx "livewatch/pkg/logx"
)

const (
	DefaultTimeout     = 10 * time.Second
	DefaultCacheWindow = 10 * time.Second

	maxBodyBytes = 4 << 20
)

type Options struct {
	URL         string
	Timeout     time.Duration
	CacheWindow time.Duration
	UserAgent   string

	HTTPClient *http.Client
	Clock      clockwork.Clock
	Metrics    *metrics.Metrics
	Bus        eventbus.Bus
}

// FetchFailure is the event bus payload for a failed fetch.
type FetchFailure struct {
	Cause string
	Err   string
}

// Client fetches the aggregate status document with a short freshness cache.
// Fetch never returns an error: nil means no good snapshot is available.
type Client struct {
	opts Options
	log  logx.Logger

	sf singleflight.Group

	mu        sync.Mutex
	cached    *Snapshot
	fetchedAt time.Time
}

func New(opts Options, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, errors.New("source url is empty")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.CacheWindow <= 0 {
		opts.CacheWindow = DefaultCacheWindow
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "livewatch"
	}
	return &Client{opts: opts, log: log}, nil
}

// Fetch returns the cached snapshot when it is younger than the cache window
// and forceFresh is false. Otherwise it hits the network; on any failure it
// falls back to the previous good snapshot, or nil if there is none.
func (c *Client) Fetch(ctx context.Context, forceFresh bool) *Snapshot {
	if !forceFresh {
		if snap := c.fresh(); snap != nil {
			c.opts.Metrics.CacheHit()
			return snap
		}
	}
	key := "cached"
	if forceFresh {
		key = "forced"
	}
	v, _, _ := c.sf.Do(key, func() (any, error) {
		return c.refresh(ctx), nil
	})
	snap, _ := v.(*Snapshot)
	return snap
}

// Cached returns the last good snapshot and when it was fetched.
func (c *Client) Cached() (*Snapshot, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cached, c.fetchedAt
}

func (c *Client) fresh() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached == nil || c.opts.Clock.Since(c.fetchedAt) >= c.opts.CacheWindow {
		return nil
	}
	return c.cached
}

func (c *Client) previous() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cached
}

func (c *Client) refresh(ctx context.Context) *Snapshot {
	start := c.opts.Clock.Now()
	snap, cause, err := c.get(ctx)
	c.opts.Metrics.ObserveFetch(c.opts.Clock.Since(start))
	if err != nil {
		switch cause {
		case metrics.CauseTimeout:
			c.log.Error("aggregate fetch timed out", logx.Duration("timeout", c.opts.Timeout), logx.Err(err))
		case metrics.CauseInvalid:
			c.log.Error("aggregate payload invalid", logx.String("cause", cause), logx.Err(err))
		default:
			c.log.Error("aggregate fetch failed", logx.String("cause", cause), logx.Err(err))
		}
		c.opts.Metrics.FetchFailed(cause)
		if c.opts.Bus != nil {
			c.opts.Bus.Publish(eventbus.Event{Type: eventbus.TypeFetchFailed, Data: FetchFailure{Cause: cause, Err: err.Error()}})
		}
		return c.previous()
	}

	c.mu.Lock()
	snap.FetchedAt = c.opts.Clock.Now()
	c.cached = snap
	c.fetchedAt = snap.FetchedAt
	c.mu.Unlock()
	return snap
}

// get performs one bounded request. The caller's cancellation does not abort
// it; only the timeout does.
func (c *Client) get(ctx context.Context) (*Snapshot, string, error) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(rctx, http.MethodGet, c.opts.URL, nil)
	if err != nil {
		return nil, metrics.CauseNetwork, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, classify(err), err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, metrics.CauseStatus, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classify(err), err
	}
	snap, err := Decode(body)
	if err != nil {
		return nil, metrics.CauseInvalid, err
	}
	return snap, "", nil
}

func classify(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return metrics.CauseTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return metrics.CauseTimeout
	}
	return metrics.CauseNetwork
}
