package client

type PlayState string

const (
	PlayStateUnstarted PlayState = "unstarted"
	PlayStatePlaying   PlayState = "playing"
	PlayStatePaused    PlayState = "paused"
	PlayStateEnded     PlayState = "ended"
)

// Player is the capability set the sync machine needs from a playback
// widget. Implementations report state changes through a func(PlayerEvent)
// and must never invoke it synchronously from inside one of these methods.
type Player interface {
	Load(videoID string) error
	Seek(seconds float64) error
	Play() error
	Pause() error
	Position() (float64, error)
	State() PlayState
}

type PlayerEventKind string

const (
	PlayerReady   PlayerEventKind = "ready"
	PlayerPlaying PlayerEventKind = "playing"
	PlayerPaused  PlayerEventKind = "paused"
	PlayerEnded   PlayerEventKind = "ended"
	PlayerError   PlayerEventKind = "error"
)

type PlayerEvent struct {
	Kind    PlayerEventKind
	VideoID string
	Err     error
}
