package room

// Playback is the stored form of a room's canonical playback state.
// AnchorMillis is authority time in unix milliseconds.
type Playback struct {
	VideoID         string  `redis:"video_id"`
	PositionSeconds float64 `redis:"position_seconds"`
	AnchorMillis    int64   `redis:"anchor_ms"`
	IsPlaying       bool    `redis:"is_playing"`
	BackgroundPlay  bool    `redis:"background_play"`
}

type SetPlaybackParams struct {
	Playback Playback
	RoomID   string
}
