package domain

import (
	"fmt"
	"time"
)

type IntentKind string

const (
	IntentLoad  IntentKind = "load"
	IntentPlay  IntentKind = "play"
	IntentPause IntentKind = "pause"
	IntentEnded IntentKind = "ended"
)

func ParseIntentKind(s string) (IntentKind, error) {
	switch k := IntentKind(s); k {
	case IntentLoad, IntentPlay, IntentPause, IntentEnded:
		return k, nil
	}

	return "", fmt.Errorf("unknown intent kind %q", s)
}

// SyncIntent is a transient playback command. Host -> authority it carries
// the host's position; authority -> followers it also carries the authority
// timestamp it was applied at.
type SyncIntent struct {
	Kind            IntentKind `json:"kind"`
	VideoID         string     `json:"video_id,omitempty"`
	PositionSeconds float64    `json:"position_seconds"`
	Timestamp       time.Time  `json:"timestamp"`
}

// Apply returns the state that results from applying the intent at time at.
// Applying the same intent twice yields the same state apart from the anchor.
func (i SyncIntent) Apply(state PlaybackState, at time.Time) PlaybackState {
	next := state
	next.AnchorTimestamp = at
	switch i.Kind {
	case IntentLoad:
		next.VideoID = i.VideoID
		next.PositionSeconds = i.PositionSeconds
		next.IsPlaying = false
	case IntentPlay:
		next.PositionSeconds = i.PositionSeconds
		next.IsPlaying = true
	case IntentPause:
		next.PositionSeconds = i.PositionSeconds
		next.IsPlaying = false
	}

	return next
}

// IsPlaying reports the play state a follower should end up in after
// applying the intent.
func (i SyncIntent) IsPlaying() bool {
	return i.Kind == IntentPlay
}
