package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Platform is one of the fixed streaming platforms carried by a snapshot.
type Platform string

const (
	YouTube    Platform = "youtube"
	Floatplane Platform = "floatplane"
	Twitch     Platform = "twitch"
)

// Platforms lists platforms in priority order.
var Platforms = []Platform{YouTube, Floatplane, Twitch}

var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Snapshot is one fetched aggregate status document. Treat as read-only once returned.
type Snapshot struct {
	YouTube       *PlatformStatus          `json:"youtube"`
	Floatplane    *PlatformStatus          `json:"floatplane"`
	Twitch        *PlatformStatus          `json:"twitch"`
	NotablePeople map[string]NotablePerson `json:"notablePeople"`

	FetchedAt time.Time `json:"-"`
}

type PlatformStatus struct {
	IsLive         bool   `json:"isLive"`
	IsEvent        bool   `json:"isEvent"`
	Title          string `json:"title,omitempty"`
	Thumbnail      string `json:"thumbnail,omitempty"`
	Started        string `json:"started,omitempty"`
	IsThumbnailNew bool   `json:"isThumbnailNew"`
}

type NotablePerson struct {
	IsLive  bool   `json:"isLive"`
	Title   string `json:"title,omitempty"`
	Name    string `json:"name,omitempty"`
	Channel string `json:"channel,omitempty"`
	Game    string `json:"game,omitempty"`
	Started string `json:"started,omitempty"`
}

// Platform returns the status for p, or nil.
func (s *Snapshot) Platform(p Platform) *PlatformStatus {
	if s == nil {
		return nil
	}
	switch p {
	case YouTube:
		return s.YouTube
	case Floatplane:
		return s.Floatplane
	case Twitch:
		return s.Twitch
	}
	return nil
}

// Decode parses and validates a snapshot document. Every platform key and
// notablePeople must be present as a JSON object.
func Decode(body []byte) (*Snapshot, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	required := []string{string(YouTube), string(Floatplane), string(Twitch), "notablePeople"}
	for _, key := range required {
		raw, ok := top[key]
		if !ok {
			return nil, fmt.Errorf("%w: missing %q", ErrInvalidSnapshot, key)
		}
		if !isObject(raw) {
			return nil, fmt.Errorf("%w: %q is not an object", ErrInvalidSnapshot, key)
		}
	}
	var snap Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	return &snap, nil
}

func isObject(raw json.RawMessage) bool {
	b := bytes.TrimSpace(raw)
	return len(b) > 0 && b[0] == '{'
}
