package watch

// Event is one of StatusChanged, EntityWentLive or ThumbnailSignal.
type Event interface {
	Kind() string
}

// StatusChanged is emitted when Diff.Any is true. Previous is nil after an
// absent baseline.
type StatusChanged struct {
	Current  LiveStatus
	Previous *LiveStatus
	Diff     Diff
}

// EntityWentLive is emitted once per notable entity going live.
type EntityWentLive struct {
	ID      string
	Person  Person
	Current NotablePeopleStatus
}

// ThumbnailSignal is emitted when a fresh thumbnail appears before the event is live.
type ThumbnailSignal struct {
	Current  LiveStatus
	Previous *LiveStatus
}

func (StatusChanged) Kind() string   { return "status_changed" }
func (EntityWentLive) Kind() string  { return "entity_live" }
func (ThumbnailSignal) Kind() string { return "thumbnail" }
