package watch

import (
	"sort"

	"livewatch/internal/source"
)

// Diff is the set of edge transitions between two consecutive statuses.
type Diff struct {
	WentLive            bool
	EventStarted        bool
	ThumbnailNewlyFresh bool
	// PlatformsStarted lists platforms newly live while the event is on.
	// This is the raw edge; PlatformTracker applies the sticky gate.
	PlatformsStarted []Platform
}

// Any reports whether the status change is worth announcing.
func (d Diff) Any() bool {
	return d.WentLive || d.EventStarted || len(d.PlatformsStarted) > 0
}

// Detect compares cur against prev (nil when there is no previous status).
// Every flag is edge-triggered: it is true only on a false to true change.
func Detect(prev *LiveStatus, cur LiveStatus) Diff {
	var d Diff
	d.WentLive = cur.IsLive && (prev == nil || !prev.IsLive)
	d.EventStarted = cur.IsEvent && (prev == nil || !prev.IsEvent)
	// Thumbnail freshness only signals an imminent start.
	d.ThumbnailNewlyFresh = cur.IsThumbnailFresh && (prev == nil || !prev.IsThumbnailFresh) && !cur.IsLive
	d.PlatformsStarted = platformEdges(prev, cur)
	return d
}

func platformEdges(prev *LiveStatus, cur LiveStatus) []Platform {
	if !cur.IsEvent {
		return nil
	}
	var out []Platform
	for _, p := range source.Platforms {
		if cur.PerPlatform[p] && (prev == nil || !prev.PerPlatform[p]) {
			out = append(out, p)
		}
	}
	return out
}

// DetectNotable returns ids newly live in cur, sorted. An id missing from
// prev counts as not live. Entities are compared independently.
func DetectNotable(prev *NotablePeopleStatus, cur NotablePeopleStatus) []string {
	var out []string
	for id, p := range cur.People {
		if !p.IsLive {
			continue
		}
		if prev != nil {
			if before, ok := prev.People[id]; ok && before.IsLive {
				continue
			}
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func carriesEvent(s *LiveStatus) bool {
	return s != nil && s.IsEvent && len(s.LivePlatforms()) > 0
}

// PlatformTracker gates "now on platform X" notices with a sticky flag.
// The flag is set while any platform carries the event and cleared only once
// none does, so a move between platforms without a gap does not fire again.
// Edges pass the gate only when the event was not carried before, so they
// always coincide with a went-live or event-started change.
//
// Not safe for concurrent use.
type PlatformTracker struct {
	sticky bool
}

// Observe is fed each announced status change. prev may be nil.
func (t *PlatformTracker) Observe(prev *LiveStatus, cur LiveStatus) []Platform {
	// Offline gaps and a baseline seeded mid-event are not announced, so
	// prev is the authority on whether the event was carried.
	t.sticky = carriesEvent(prev)
	var out []Platform
	if !t.sticky {
		out = platformEdges(prev, cur)
	}
	t.sticky = carriesEvent(&cur)
	return out
}

// Sticky reports whether the event is currently known to be on some platform.
func (t *PlatformTracker) Sticky() bool { return t.sticky }
