// Package virtual is a headless client.Player whose playhead advances with a
// clockwork clock. It stands in for an embedded video widget.
package virtual

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sharetube/syncstream/internal/client"
)

var (
	ErrNoVideo          = errors.New("no video loaded")
	ErrVideoUnavailable = errors.New("video unavailable")
)

type Config struct {
	// LoadDelay is how long a load takes before the ready event.
	LoadDelay time.Duration
	// Duration of every video. Zero means videos never end.
	Duration time.Duration
	// Unavailable videos fail to load with ErrVideoUnavailable.
	Unavailable []string
}

type Player struct {
	mu sync.Mutex

	clock       clockwork.Clock
	cfg         Config
	unavailable map[string]struct{}
	events      chan client.PlayerEvent
	done        chan struct{}
	closeOnce   sync.Once

	videoID  string
	state    client.PlayState
	ready    bool
	position float64
	since    time.Time
	gen      uint64
	timer    clockwork.Timer
}

// New starts a player that delivers its notifications to notify from its own
// goroutine, in the order they happened.
func New(clock clockwork.Clock, cfg Config, notify func(client.PlayerEvent)) *Player {
	p := &Player{
		clock:       clock,
		cfg:         cfg,
		unavailable: make(map[string]struct{}, len(cfg.Unavailable)),
		events:      make(chan client.PlayerEvent, 64),
		done:        make(chan struct{}),
		state:       client.PlayStateUnstarted,
	}
	for _, id := range cfg.Unavailable {
		p.unavailable[id] = struct{}{}
	}

	go p.dispatch(notify)

	return p
}

func (p *Player) dispatch(notify func(client.PlayerEvent)) {
	for {
		select {
		case ev := <-p.events:
			notify(ev)
		case <-p.done:
			return
		}
	}
}

func (p *Player) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.stopTimer()
		p.mu.Unlock()
		close(p.done)
	})
}

func (p *Player) emit(ev client.PlayerEvent) {
	select {
	case p.events <- ev:
	case <-p.done:
	}
}

func (p *Player) Load(videoID string) error {
	p.mu.Lock()
	p.stopTimer()
	p.videoID = videoID
	p.state = client.PlayStateUnstarted
	p.ready = false
	p.position = 0
	p.gen++
	gen := p.gen

	_, unavailable := p.unavailable[videoID]
	p.timer = p.clock.AfterFunc(p.cfg.LoadDelay, func() {
		p.loaded(gen, unavailable)
	})
	p.mu.Unlock()

	return nil
}

func (p *Player) loaded(gen uint64, unavailable bool) {
	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	p.timer = nil

	ev := client.PlayerEvent{Kind: client.PlayerReady, VideoID: p.videoID}
	if unavailable {
		ev = client.PlayerEvent{
			Kind:    client.PlayerError,
			VideoID: p.videoID,
			Err:     fmt.Errorf("%w: %s", ErrVideoUnavailable, p.videoID),
		}
		p.videoID = ""
	} else {
		p.ready = true
		p.state = client.PlayStatePaused
	}
	p.mu.Unlock()

	p.emit(ev)
}

func (p *Player) Seek(seconds float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.ready {
		return ErrNoVideo
	}

	p.position = p.clampPosition(seconds)
	p.since = p.clock.Now()
	if p.state == client.PlayStatePlaying {
		p.scheduleEnd()
	} else if p.state == client.PlayStateEnded {
		p.state = client.PlayStatePaused
	}

	return nil
}

func (p *Player) Play() error {
	p.mu.Lock()
	if !p.ready {
		p.mu.Unlock()
		return ErrNoVideo
	}
	if p.state == client.PlayStatePlaying {
		p.mu.Unlock()
		return nil
	}

	if p.state == client.PlayStateEnded {
		p.position = 0
	}
	p.state = client.PlayStatePlaying
	p.since = p.clock.Now()
	p.scheduleEnd()
	videoID := p.videoID
	p.mu.Unlock()

	p.emit(client.PlayerEvent{Kind: client.PlayerPlaying, VideoID: videoID})
	return nil
}

func (p *Player) Pause() error {
	p.mu.Lock()
	if !p.ready {
		p.mu.Unlock()
		return ErrNoVideo
	}
	if p.state != client.PlayStatePlaying {
		p.mu.Unlock()
		return nil
	}

	p.position = p.currentPosition()
	p.state = client.PlayStatePaused
	p.stopTimer()
	videoID := p.videoID
	p.mu.Unlock()

	p.emit(client.PlayerEvent{Kind: client.PlayerPaused, VideoID: videoID})
	return nil
}

func (p *Player) Position() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.ready {
		return 0, ErrNoVideo
	}

	return p.currentPosition(), nil
}

func (p *Player) State() client.PlayState {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

func (p *Player) currentPosition() float64 {
	if p.state != client.PlayStatePlaying {
		return p.position
	}

	return p.clampPosition(p.position + p.clock.Since(p.since).Seconds())
}

func (p *Player) clampPosition(seconds float64) float64 {
	if seconds < 0 {
		return 0
	}
	if p.cfg.Duration > 0 && seconds > p.cfg.Duration.Seconds() {
		return p.cfg.Duration.Seconds()
	}

	return seconds
}

func (p *Player) scheduleEnd() {
	p.stopTimer()
	if p.cfg.Duration <= 0 {
		return
	}

	p.gen++
	gen := p.gen
	remaining := time.Duration((p.cfg.Duration.Seconds() - p.position) * float64(time.Second))
	p.timer = p.clock.AfterFunc(remaining, func() {
		p.ended(gen)
	})
}

func (p *Player) ended(gen uint64) {
	p.mu.Lock()
	if gen != p.gen || p.state != client.PlayStatePlaying {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	p.position = p.cfg.Duration.Seconds()
	p.state = client.PlayStateEnded
	videoID := p.videoID
	p.mu.Unlock()

	p.emit(client.PlayerEvent{Kind: client.PlayerEnded, VideoID: videoID})
}

func (p *Player) stopTimer() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}
