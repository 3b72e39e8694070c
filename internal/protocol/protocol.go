package protocol

import (
	"encoding/json"
	"time"

	"github.com/sharetube/syncstream/internal/domain"
)

// Client -> server message types.
const (
	TypeAlive                = "ALIVE"
	TypeGetState             = "GET_STATE"
	TypeLoadVideo            = "LOAD_VIDEO"
	TypePlay                 = "PLAY"
	TypePause                = "PAUSE"
	TypeHeartbeat            = "HEARTBEAT"
	TypeVideoEnded           = "VIDEO_ENDED"
	TypeAddToQueue           = "ADD_TO_QUEUE"
	TypeUpdateBackgroundPlay = "UPDATE_BACKGROUND_PLAY"
)

// Server -> client message types.
const (
	TypeRoomJoined            = "ROOM_JOINED"
	TypeLoad                  = "LOAD"
	TypePlayed                = "PLAY"
	TypePaused                = "PAUSE"
	TypeSyncCheck             = "SYNC_CHECK"
	TypeSnapshot              = "SNAPSHOT"
	TypePromoted              = "PROMOTED"
	TypeMemberJoined          = "MEMBER_JOINED"
	TypeMemberLeft            = "MEMBER_LEFT"
	TypeQueueUpdated          = "QUEUE_UPDATED"
	TypeBackgroundPlayUpdated = "BACKGROUND_PLAY_UPDATED"
	TypeError                 = "ERROR"
)

type Input struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type Output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Millis encodes an authority timestamp for the wire. The zero time encodes
// as 0.
func Millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UnixMilli()
}

func FromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}

	return time.UnixMilli(ms)
}

type LoadVideoPayload struct {
	VideoID         string  `json:"video_id" validate:"required,max=64"`
	PositionSeconds float64 `json:"position_seconds" validate:"gte=0"`
}

type PositionPayload struct {
	PositionSeconds float64 `json:"position_seconds" validate:"gte=0"`
}

type AddToQueuePayload struct {
	VideoID string `json:"video_id" validate:"required,max=64"`
}

type BackgroundPlayPayload struct {
	Enabled bool `json:"enabled"`
}

type IntentEvent struct {
	Kind            string  `json:"kind"`
	VideoID         string  `json:"video_id,omitempty"`
	PositionSeconds float64 `json:"position_seconds"`
	IsPlaying       bool    `json:"is_playing"`
	Timestamp       int64   `json:"timestamp"`
}

func NewIntentEvent(i domain.SyncIntent, isPlaying bool) IntentEvent {
	return IntentEvent{
		Kind:            string(i.Kind),
		VideoID:         i.VideoID,
		PositionSeconds: i.PositionSeconds,
		IsPlaying:       isPlaying,
		Timestamp:       Millis(i.Timestamp),
	}
}

func (e IntentEvent) Intent() (domain.SyncIntent, error) {
	kind, err := domain.ParseIntentKind(e.Kind)
	if err != nil {
		return domain.SyncIntent{}, err
	}

	return domain.SyncIntent{
		Kind:            kind,
		VideoID:         e.VideoID,
		PositionSeconds: e.PositionSeconds,
		Timestamp:       FromMillis(e.Timestamp),
	}, nil
}

// IntentType maps an intent kind to the message type it is relayed under.
func IntentType(kind domain.IntentKind) string {
	switch kind {
	case domain.IntentLoad:
		return TypeLoad
	case domain.IntentPlay:
		return TypePlayed
	case domain.IntentPause:
		return TypePaused
	}

	return ""
}

type SyncCheckEvent struct {
	PositionSeconds float64 `json:"position_seconds"`
	IsPlaying       bool    `json:"is_playing"`
	Timestamp       int64   `json:"timestamp"`
}

type SnapshotEvent struct {
	VideoID         string  `json:"video_id"`
	PositionSeconds float64 `json:"position_seconds"`
	IsPlaying       bool    `json:"is_playing"`
	BackgroundPlay  bool    `json:"background_play"`
	AnchorTimestamp int64   `json:"anchor_timestamp"`
	Timestamp       int64   `json:"timestamp"`
}

func NewSnapshotEvent(s domain.Snapshot) SnapshotEvent {
	return SnapshotEvent{
		VideoID:         s.State.VideoID,
		PositionSeconds: s.State.PositionSeconds,
		IsPlaying:       s.State.IsPlaying,
		BackgroundPlay:  s.State.BackgroundPlayEnabled,
		AnchorTimestamp: Millis(s.State.AnchorTimestamp),
		Timestamp:       Millis(s.Timestamp),
	}
}

func (e SnapshotEvent) Snapshot() domain.Snapshot {
	return domain.Snapshot{
		State: domain.PlaybackState{
			VideoID:               e.VideoID,
			PositionSeconds:       e.PositionSeconds,
			AnchorTimestamp:       FromMillis(e.AnchorTimestamp),
			IsPlaying:             e.IsPlaying,
			BackgroundPlayEnabled: e.BackgroundPlay,
		},
		Timestamp: FromMillis(e.Timestamp),
	}
}

type RoomJoinedEvent struct {
	RoomID   string        `json:"room_id"`
	MemberID string        `json:"member_id"`
	IsHost   bool          `json:"is_host"`
	Members  []string      `json:"members"`
	Snapshot SnapshotEvent `json:"snapshot"`
}

type PromotedEvent struct {
	MemberID string `json:"member_id"`
}

type MemberEvent struct {
	MemberID string   `json:"member_id"`
	Username string   `json:"username"`
	HostID   string   `json:"host_id"`
	Members  []string `json:"members"`
}

type QueueEvent struct {
	Queue []string `json:"queue"`
}

type BackgroundPlayEvent struct {
	Enabled bool `json:"enabled"`
}

type ErrorEvent struct {
	Message string `json:"message"`
	Errors  any    `json:"errors,omitempty"`
}
