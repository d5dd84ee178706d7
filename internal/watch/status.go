// Package watch runs the adaptive poll loop over the aggregate status source
// and turns consecutive snapshots into edge-triggered events.
package watch

import (
	"maps"
	"time"

	"livewatch/internal/source"
)

type Platform = source.Platform

// LiveStatus is the platform-agnostic view of the tracked event.
type LiveStatus struct {
	IsLive           bool
	PerPlatform      map[Platform]bool
	IsEvent          bool
	IsThumbnailFresh bool
	Title            string
	Thumbnail        string
	StartedAt        string
}

// Offline is the all-false status used when no snapshot is available.
func Offline() LiveStatus {
	pp := make(map[Platform]bool, len(source.Platforms))
	for _, p := range source.Platforms {
		pp[p] = false
	}
	return LiveStatus{PerPlatform: pp}
}

func (s LiveStatus) Clone() LiveStatus {
	s.PerPlatform = maps.Clone(s.PerPlatform)
	return s
}

// LivePlatforms returns platforms currently live, in priority order.
func (s LiveStatus) LivePlatforms() []Platform {
	var out []Platform
	for _, p := range source.Platforms {
		if s.PerPlatform[p] {
			out = append(out, p)
		}
	}
	return out
}

type Person struct {
	IsLive    bool
	Title     string
	Name      string
	Channel   string
	Game      string
	StartedAt string
}

// NotablePeopleStatus is keyed by the entity id used by the source.
type NotablePeopleStatus struct {
	People     map[string]Person
	HasAnyLive bool
}

func (s NotablePeopleStatus) Clone() NotablePeopleStatus {
	s.People = maps.Clone(s.People)
	return s
}

// LiveCount returns how many entities are live.
func (s NotablePeopleStatus) LiveCount() int {
	n := 0
	for _, p := range s.People {
		if p.IsLive {
			n++
		}
	}
	return n
}

// State is the poll loop's view. Readers get copies via Watcher.State.
type State struct {
	Running            bool
	LastStatus         *LiveStatus
	LastNotableStatus  *NotablePeopleStatus
	LastThumbnailFresh bool
	// EventSeenAt is the last time a cycle observed the event live.
	EventSeenAt time.Time
	LastPollAt  time.Time
	NextPollIn  time.Duration
}

func (s State) clone() State {
	if s.LastStatus != nil {
		c := s.LastStatus.Clone()
		s.LastStatus = &c
	}
	if s.LastNotableStatus != nil {
		c := s.LastNotableStatus.Clone()
		s.LastNotableStatus = &c
	}
	return s
}
