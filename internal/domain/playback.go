package domain

import "time"

// PlaybackState is the canonical playback state of a room. Only the room
// authority writes it, and only from host intents and host heartbeats.
type PlaybackState struct {
	VideoID               string    `json:"video_id"`
	PositionSeconds       float64   `json:"position_seconds"`
	AnchorTimestamp       time.Time `json:"anchor_timestamp"`
	IsPlaying             bool      `json:"is_playing"`
	BackgroundPlayEnabled bool      `json:"background_play_enabled"`
}

func (p PlaybackState) HasVideo() bool {
	return p.VideoID != ""
}

// Cleared returns the "no video loaded" state. The background play flag is a
// room setting and survives.
func (p PlaybackState) Cleared(at time.Time) PlaybackState {
	return PlaybackState{
		AnchorTimestamp:       at,
		BackgroundPlayEnabled: p.BackgroundPlayEnabled,
	}
}

// Snapshot is a full copy of the canonical state together with the authority
// time it was taken at.
type Snapshot struct {
	State     PlaybackState `json:"state"`
	Timestamp time.Time     `json:"timestamp"`
}
