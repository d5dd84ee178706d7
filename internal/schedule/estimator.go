// Package schedule estimates the nominal start of a recurring event from its
// announced cron schedule.
package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
)

const DefaultLateBuffer = 5 * time.Hour

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Estimator maps "now" to the occurrence the poller should care about.
//
// An occurrence stays current for LateBuffer after its nominal time unless
// the caller reports it done, so a late start keeps the poller tight.
type Estimator struct {
	spec   string
	sched  cron.Schedule
	loc    *time.Location
	buffer time.Duration
}

func New(spec, timezone string, lateBuffer time.Duration) (*Estimator, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New("schedule spec required")
	}
	loc := time.Local
	if tz := strings.TrimSpace(timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("schedule timezone %q: %w", tz, err)
		}
		loc = l
	}
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("schedule spec %q: %w", spec, err)
	}
	if lateBuffer <= 0 {
		lateBuffer = DefaultLateBuffer
	}
	return &Estimator{spec: spec, sched: sched, loc: loc, buffer: lateBuffer}, nil
}

// Next returns the nominal occurrence relevant at now. While an occurrence is
// less than LateBuffer in the past and not done, it is returned (it may be
// before now). Otherwise the next future occurrence is returned.
func (e *Estimator) Next(now time.Time, done bool) time.Time {
	local := now.In(e.loc)
	if !done {
		if n := e.sched.Next(local.Add(-e.buffer)); !n.After(local) {
			return n
		}
	}
	return e.sched.Next(local)
}

func (e *Estimator) LateBuffer() time.Duration { return e.buffer }
func (e *Estimator) Location() *time.Location  { return e.loc }
func (e *Estimator) Spec() string              { return e.spec }
