package watch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"livewatch/internal/source"
)

func status(live, event bool, platforms ...Platform) LiveStatus {
	st := Offline()
	st.IsLive, st.IsEvent = live, event
	for _, p := range platforms {
		st.PerPlatform[p] = true
	}
	return st
}

func TestWentLiveFiresOncePerSession(t *testing.T) {
	for k := 2; k <= 6; k++ {
		var prev *LiveStatus
		fired := 0
		for i := 1; i <= k+2; i++ {
			cur := status(i >= 2 && i <= k, false)
			if Detect(prev, cur).WentLive {
				fired++
			}
			c := cur
			prev = &c
		}
		assert.Equal(t, 1, fired, "k=%d", k)
	}
}

func TestDetect(t *testing.T) {
	live := status(true, true, source.YouTube)
	offline := status(false, false)
	liveNotEvent := status(true, false, source.Twitch)
	fresh := offline
	fresh.IsThumbnailFresh = true

	tests := []struct {
		name string
		prev *LiveStatus
		cur  LiveStatus
		want Diff
	}{
		{name: "absent prev, live", prev: nil, cur: live, want: Diff{WentLive: true, EventStarted: true, PlatformsStarted: []Platform{source.YouTube}}},
		{name: "steady live", prev: &live, cur: live},
		{name: "going offline", prev: &live, cur: offline},
		{name: "live then becomes event", prev: &liveNotEvent, cur: status(true, true, source.Twitch), want: Diff{EventStarted: true}},
		{name: "fresh thumbnail", prev: &offline, cur: fresh, want: Diff{ThumbnailNewlyFresh: true}},
		{name: "fresh thumbnail suppressed once live", prev: &offline, cur: func() LiveStatus { s := live; s.IsThumbnailFresh = true; return s }(),
			want: Diff{WentLive: true, EventStarted: true, PlatformsStarted: []Platform{source.YouTube}}},
		{name: "second platform joins", prev: &live, cur: status(true, true, source.YouTube, source.Twitch), want: Diff{PlatformsStarted: []Platform{source.Twitch}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Detect(tt.prev, tt.cur)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.WentLive || tt.want.EventStarted || len(tt.want.PlatformsStarted) > 0, got.Any())
		})
	}
}

func TestDetectNotableIndependence(t *testing.T) {
	prev := NotablePeopleStatus{People: map[string]Person{
		"a": {IsLive: false},
		"b": {IsLive: true},
	}}
	cur := NotablePeopleStatus{People: map[string]Person{
		"a": {IsLive: true},
		"b": {IsLive: true},
		"c": {IsLive: true},
		"d": {IsLive: false},
	}}
	assert.Equal(t, []string{"a", "c"}, DetectNotable(&prev, cur))

	// b staying live is unaffected by a going live, and vice versa.
	onlyB := NotablePeopleStatus{People: map[string]Person{"b": {IsLive: true}}}
	assert.Empty(t, DetectNotable(&prev, onlyB))
	assert.Equal(t, []string{"b"}, DetectNotable(nil, onlyB))
}

func TestPlatformTrackerSticky(t *testing.T) {
	var tr PlatformTracker
	offline := status(false, false)
	yt := status(true, true, source.YouTube)
	tw := status(true, true, source.Twitch)
	both := status(true, true, source.YouTube, source.Twitch)

	assert.Equal(t, []Platform{source.YouTube}, tr.Observe(&offline, yt))
	assert.True(t, tr.Sticky())

	assert.Empty(t, tr.Observe(&yt, both), "joining a second platform while sticky does not fire")
	assert.Empty(t, tr.Observe(&both, tw), "moving without a gap does not fire")

	// The offline gap is never announced; the next change carries it as prev.
	assert.Equal(t, []Platform{source.Twitch}, tr.Observe(&offline, tw))

	var fresh PlatformTracker
	assert.Empty(t, fresh.Observe(&yt, both), "prev carrying the event sets the flag")
	assert.True(t, fresh.Sticky())
}

func TestPlatformEdgesImplyAnnouncedChange(t *testing.T) {
	offline := status(false, false)
	pre := status(true, false, source.YouTube)
	yt := status(true, true, source.YouTube)
	tw := status(true, true, source.Twitch)
	both := status(true, true, source.YouTube, source.Twitch)
	steps := []LiveStatus{pre, yt, both, tw, offline, tw, pre, both, offline, yt}

	var tr PlatformTracker
	var prev *LiveStatus
	for i, cur := range steps {
		d := Detect(prev, cur)
		if started := tr.Observe(prev, cur); len(started) > 0 {
			assert.True(t, d.WentLive || d.EventStarted, "step %d: platform edge without a went-live or event-started change", i)
		}
		prev = &steps[i]
	}
}

func TestNormalize(t *testing.T) {
	snap := &source.Snapshot{
		YouTube:    &source.PlatformStatus{IsLive: true, IsEvent: false, Title: "side stream"},
		Floatplane: &source.PlatformStatus{IsLive: true, IsEvent: true, Title: "The Show", Thumbnail: "fp.jpg", Started: "t0"},
		Twitch:     &source.PlatformStatus{IsLive: true, IsEvent: true, Title: "The Show (twitch)", IsThumbnailNew: true},
		NotablePeople: map[string]source.NotablePerson{
			"x": {IsLive: true, Name: "X", Game: "Chess"},
			"y": {IsLive: false},
		},
	}
	st := Normalize(snap)
	assert.True(t, st.IsLive)
	assert.True(t, st.IsEvent)
	assert.True(t, st.IsThumbnailFresh)
	assert.Equal(t, "The Show", st.Title, "first platform that is live and the event wins")
	assert.Equal(t, "fp.jpg", st.Thumbnail)
	assert.Equal(t, "t0", st.StartedAt)
	assert.Equal(t, []Platform{source.YouTube, source.Floatplane, source.Twitch}, st.LivePlatforms())

	np := NormalizeNotable(snap)
	assert.True(t, np.HasAnyLive)
	assert.Equal(t, 1, np.LiveCount())
	assert.Equal(t, "Chess", np.People["x"].Game)

	assert.Equal(t, Offline(), Normalize(nil))
	assert.False(t, NormalizeNotable(nil).HasAnyLive)
}
