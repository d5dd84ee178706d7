package watch

import "time"

// Intervals are the poll delays chosen by Select. Zero fields take defaults.
type Intervals struct {
	Live       time.Duration // event confirmed live
	Thumbnail  time.Duration // fresh thumbnail, start is imminent
	Late       time.Duration // past the nominal time
	Near       time.Duration // within NearWindow of the nominal time
	NearWindow time.Duration
	Baseline   time.Duration
}

func DefaultIntervals() Intervals {
	return Intervals{
		Live:       5 * time.Minute,
		Thumbnail:  10 * time.Second,
		Late:       30 * time.Second,
		Near:       30 * time.Second,
		NearWindow: 10 * time.Minute,
		Baseline:   60 * time.Second,
	}
}

func (iv Intervals) withDefaults() Intervals {
	def := DefaultIntervals()
	pick := func(v, d time.Duration) time.Duration {
		if v <= 0 {
			return d
		}
		return v
	}
	return Intervals{
		Live:       pick(iv.Live, def.Live),
		Thumbnail:  pick(iv.Thumbnail, def.Thumbnail),
		Late:       pick(iv.Late, def.Late),
		Near:       pick(iv.Near, def.Near),
		NearWindow: pick(iv.NearWindow, def.NearWindow),
		Baseline:   pick(iv.Baseline, def.Baseline),
	}
}

// Select picks the delay before the next poll. First match wins:
// live event, fresh thumbnail, late, near, baseline. A zero nominal time
// skips the schedule rules.
func (iv Intervals) Select(last *LiveStatus, nominal, now time.Time) time.Duration {
	iv = iv.withDefaults()
	switch {
	case last != nil && last.IsLive && last.IsEvent:
		return iv.Live
	case last != nil && last.IsThumbnailFresh && !last.IsLive:
		return iv.Thumbnail
	case nominal.IsZero():
		return iv.Baseline
	case now.After(nominal):
		return iv.Late
	case nominal.Sub(now) < iv.NearWindow:
		return iv.Near
	default:
		return iv.Baseline
	}
}
