package watch

import "livewatch/internal/source"

// Normalize reduces a snapshot to a LiveStatus. A nil snapshot is Offline.
func Normalize(snap *source.Snapshot) LiveStatus {
	st := Offline()
	if snap == nil {
		return st
	}
	picked := false
	for _, p := range source.Platforms {
		ps := snap.Platform(p)
		if ps == nil {
			continue
		}
		st.PerPlatform[p] = ps.IsLive
		st.IsLive = st.IsLive || ps.IsLive
		st.IsEvent = st.IsEvent || ps.IsEvent
		st.IsThumbnailFresh = st.IsThumbnailFresh || ps.IsThumbnailNew
		if !picked && ps.IsLive && ps.IsEvent {
			st.Title, st.Thumbnail, st.StartedAt = ps.Title, ps.Thumbnail, ps.Started
			picked = true
		}
	}
	return st
}

// NormalizeNotable reduces a snapshot to per-entity status. A nil snapshot
// yields an empty mapping.
func NormalizeNotable(snap *source.Snapshot) NotablePeopleStatus {
	st := NotablePeopleStatus{People: map[string]Person{}}
	if snap == nil {
		return st
	}
	for id, np := range snap.NotablePeople {
		st.People[id] = Person{
			IsLive:    np.IsLive,
			Title:     np.Title,
			Name:      np.Name,
			Channel:   np.Channel,
			Game:      np.Game,
			StartedAt: np.Started,
		}
		st.HasAnyLive = st.HasAnyLive || np.IsLive
	}
	return st
}
