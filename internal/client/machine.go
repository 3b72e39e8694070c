package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sharetube/syncstream/internal/domain"
	"github.com/sharetube/syncstream/internal/latency"
	"github.com/sharetube/syncstream/internal/protocol"
)

var ErrNotHost = errors.New("only the host can do this")

// Sender delivers a message to the room authority.
type Sender interface {
	Send(ctx context.Context, msgType string, payload any) error
}

type Config struct {
	SettleDelay       time.Duration
	DriftTolerance    float64
	HeartbeatInterval time.Duration
	MaxLatency        time.Duration
	// OnNotice receives user-facing notices such as player failures.
	OnNotice func(string)
}

func DefaultConfig() Config {
	return Config{
		SettleDelay:       500 * time.Millisecond,
		DriftTolerance:    2.0,
		HeartbeatInterval: 5 * time.Second,
		MaxLatency:        latency.DefaultMaxLatency,
	}
}

// State is the client's view of its own sync status.
type State struct {
	Role                          domain.Role  `json:"role"`
	Phase                         domain.Phase `json:"phase"`
	VideoID                       string       `json:"video_id"`
	EstimatedOneWayLatencySeconds float64      `json:"estimated_one_way_latency_seconds"`
}

// target is where the player should be once a pending load completes.
type target struct {
	position float64
	ts       time.Time
	playing  bool
	// advance from ts even when paused; set for join snapshots
	elapsed bool
}

// Machine keeps one local player consistent with the room's canonical
// playback state. A host's machine only authors intents; a follower's machine
// only applies them.
type Machine struct {
	mu sync.Mutex

	player    Player
	sender    Sender
	clock     clockwork.Clock
	estimator *latency.Estimator
	logger    *slog.Logger
	cfg       Config

	ctx    context.Context
	cancel context.CancelFunc

	memberID string
	role     domain.Role
	phase    domain.Phase
	videoID  string
	latency  time.Duration
	pending  *target

	settleTimer    clockwork.Timer
	settleGen      uint64
	heartbeatTimer clockwork.Timer
	heartbeatGen   uint64
}

func NewMachine(player Player, sender Sender, clock clockwork.Clock, cfg Config, logger *slog.Logger) *Machine {
	defaults := DefaultConfig()
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = defaults.SettleDelay
	}
	if cfg.DriftTolerance <= 0 {
		cfg.DriftTolerance = defaults.DriftTolerance
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if cfg.MaxLatency <= 0 {
		cfg.MaxLatency = defaults.MaxLatency
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Machine{
		player:    player,
		sender:    sender,
		clock:     clock,
		estimator: latency.NewEstimator(clock, cfg.MaxLatency),
		logger:    logger,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
		role:      domain.RoleFollower,
		phase:     domain.PhaseIdle,
	}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return State{
		Role:                          m.role,
		Phase:                         m.phase,
		VideoID:                       m.videoID,
		EstimatedOneWayLatencySeconds: m.latency.Seconds(),
	}
}

func (m *Machine) MemberID() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.memberID
}

// Close stops every timer. The machine must not be used afterwards.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopSettle()
	m.stopHeartbeat()
	m.cancel()
}

// HandleJoined applies the snapshot the authority sends right after joining.
// Any previous local state is discarded.
func (m *Machine) HandleJoined(ctx context.Context, memberID string, isHost bool, snap domain.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.memberID = memberID
	m.role = domain.RoleFollower
	if isHost {
		m.role = domain.RoleHost
	}
	m.stopSettle()
	m.stopHeartbeat()
	m.pending = nil
	m.phase = domain.PhaseIdle
	m.videoID = ""

	m.logger.InfoContext(ctx, "joined room", "member_id", memberID, "role", m.role, "video_id", snap.State.VideoID)

	if !snap.State.HasVideo() {
		return
	}

	m.latency = m.estimator.Latency(snap.Timestamp)
	m.beginLoad(ctx, snap.State.VideoID, target{
		position: snap.State.PositionSeconds,
		ts:       snap.State.AnchorTimestamp,
		playing:  snap.State.IsPlaying,
		elapsed:  true,
	})
}

// HandleIntent applies an intent relayed by the authority.
func (m *Machine) HandleIntent(ctx context.Context, intent domain.SyncIntent, isPlaying bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase == domain.PhaseDisconnected {
		return
	}

	m.latency = m.estimator.Latency(intent.Timestamp)

	if intent.Kind == domain.IntentLoad {
		// The host accepts loads too: the authority authors them when it
		// advances the queue.
		m.beginLoad(ctx, intent.VideoID, target{
			position: intent.PositionSeconds,
			ts:       intent.Timestamp,
			playing:  isPlaying,
		})
		return
	}

	if m.role == domain.RoleHost {
		m.logger.DebugContext(ctx, "host ignores relayed intent", "kind", intent.Kind)
		return
	}

	switch intent.Kind {
	case domain.IntentPlay, domain.IntentPause:
	default:
		m.logger.DebugContext(ctx, "ignoring intent", "kind", intent.Kind)
		return
	}

	t := target{
		position: intent.PositionSeconds,
		ts:       intent.Timestamp,
		playing:  intent.IsPlaying(),
	}

	switch m.phase {
	case domain.PhaseIdle:
		m.logger.DebugContext(ctx, "no video loaded, dropping intent", "kind", intent.Kind)
	case domain.PhaseLoading:
		m.pending = &t
	default:
		m.applyTarget(ctx, t)
	}
}

// HandleSyncCheck compares the local position with the host's periodic
// re-anchor and re-seeks when the drift exceeds the tolerance.
func (m *Machine) HandleSyncCheck(ctx context.Context, position float64, isPlaying bool, ts time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.role == domain.RoleHost {
		return
	}

	m.latency = m.estimator.Latency(ts)

	switch m.phase {
	case domain.PhaseIdle:
		// The room has a video this client never got; ask for the full state.
		if err := m.sender.Send(ctx, protocol.TypeGetState, nil); err != nil {
			m.logger.WarnContext(ctx, "failed to request state", "error", err)
		}
	case domain.PhaseLoading:
		m.pending = &target{position: position, ts: ts, playing: isPlaying}
	case domain.PhaseSynced, domain.PhaseReconciling:
		m.correctDrift(ctx, target{position: position, ts: ts, playing: isPlaying})
	}
}

// HandleSnapshot applies a full canonical state pushed by the authority, for
// instance after the queue ran out or in reply to GET_STATE.
func (m *Machine) HandleSnapshot(ctx context.Context, snap domain.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase == domain.PhaseDisconnected {
		return
	}

	if !snap.State.HasVideo() {
		m.goIdle(ctx)
		return
	}

	if m.role == domain.RoleHost {
		return
	}

	m.latency = m.estimator.Latency(snap.Timestamp)
	t := target{
		position: snap.State.PositionSeconds,
		ts:       snap.State.AnchorTimestamp,
		playing:  snap.State.IsPlaying,
	}

	switch {
	case snap.State.VideoID != m.videoID || m.phase == domain.PhaseIdle:
		m.beginLoad(ctx, snap.State.VideoID, t)
	case m.phase == domain.PhaseLoading:
		m.pending = &t
	default:
		m.correctDrift(ctx, t)
	}
}

// HandlePromoted flips the role when memberID is this client. The phase is
// left as it is.
func (m *Machine) HandlePromoted(ctx context.Context, memberID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if memberID != m.memberID {
		if m.role == domain.RoleHost {
			m.role = domain.RoleFollower
			m.stopHeartbeat()
		}
		return
	}

	m.role = domain.RoleHost
	m.logger.InfoContext(ctx, "promoted to host", "member_id", memberID, "phase", m.phase)
	m.ensureHeartbeat()
}

// HandleDisconnect drops all sync state. A reconnect must rejoin and apply a
// fresh snapshot.
func (m *Machine) HandleDisconnect(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopSettle()
	m.stopHeartbeat()
	m.pending = nil
	m.phase = domain.PhaseDisconnected
	m.logger.InfoContext(ctx, "disconnected from room")
}

// HandlePlayerEvent processes a state-change notification from the local
// player.
func (m *Machine) HandlePlayerEvent(ev PlayerEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx := m.ctx

	switch ev.Kind {
	case PlayerError:
		m.fail(ctx, ev.Err)
	case PlayerReady:
		m.handleReady(ctx, ev)
	case PlayerPlaying, PlayerPaused, PlayerEnded:
		m.authorIntent(ctx, ev)
	}
}

// LoadVideo loads videoID on the host's player and publishes it to the room.
func (m *Machine) LoadVideo(ctx context.Context, videoID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.role != domain.RoleHost {
		return ErrNotHost
	}

	if err := m.sender.Send(ctx, protocol.TypeLoadVideo, protocol.LoadVideoPayload{
		VideoID:         videoID,
		PositionSeconds: 0,
	}); err != nil {
		return fmt.Errorf("failed to send load intent: %w", err)
	}

	m.beginLoad(ctx, videoID, target{position: 0, ts: m.clock.Now()})
	if m.phase == domain.PhaseIdle {
		return fmt.Errorf("failed to load video %q", videoID)
	}

	return nil
}

func (m *Machine) beginLoad(ctx context.Context, videoID string, t target) {
	m.stopSettle()
	m.videoID = videoID
	m.pending = &t
	m.phase = domain.PhaseLoading

	if err := m.player.Load(videoID); err != nil {
		m.fail(ctx, fmt.Errorf("failed to load video %q: %w", videoID, err))
		return
	}

	m.ensureHeartbeat()
}

func (m *Machine) handleReady(ctx context.Context, ev PlayerEvent) {
	if m.phase != domain.PhaseLoading || m.pending == nil {
		return
	}
	if ev.VideoID != "" && ev.VideoID != m.videoID {
		// readiness of a video that has since been replaced
		return
	}

	t := *m.pending
	m.pending = nil
	m.applyTarget(ctx, t)
}

func (m *Machine) resolve(t target) float64 {
	if t.elapsed && !t.playing {
		return m.estimator.Elapsed(t.position, t.ts)
	}

	return m.estimator.AdjustedPosition(t.position, t.ts, t.playing)
}

// applyTarget seeks to the compensated target position, matches the play
// state and waits for the seek to settle.
func (m *Machine) applyTarget(ctx context.Context, t target) {
	position := m.resolve(t)

	if err := m.player.Seek(position); err != nil {
		m.fail(ctx, fmt.Errorf("failed to seek to %.2f: %w", position, err))
		return
	}

	if err := m.matchPlayState(t.playing); err != nil {
		m.fail(ctx, err)
		return
	}

	m.logger.DebugContext(ctx, "seeked", "position", position, "playing", t.playing)
	m.enterReconciling()
}

func (m *Machine) matchPlayState(playing bool) error {
	if playing {
		if err := m.player.Play(); err != nil {
			return fmt.Errorf("failed to play: %w", err)
		}
		return nil
	}

	if err := m.player.Pause(); err != nil {
		return fmt.Errorf("failed to pause: %w", err)
	}

	return nil
}

func (m *Machine) correctDrift(ctx context.Context, t target) {
	expected := m.estimator.AdjustedPosition(t.position, t.ts, t.playing)

	actual, err := m.player.Position()
	if err != nil {
		m.fail(ctx, fmt.Errorf("failed to read position: %w", err))
		return
	}

	drift := math.Abs(expected - actual)
	if drift <= m.cfg.DriftTolerance {
		return
	}

	m.logger.InfoContext(ctx, "drift detected", "drift_seconds", drift, "expected", expected, "actual", actual)

	if err := m.player.Seek(expected); err != nil {
		m.fail(ctx, fmt.Errorf("failed to seek to %.2f: %w", expected, err))
		return
	}

	playing := m.player.State() == PlayStatePlaying
	if playing != t.playing {
		if err := m.matchPlayState(t.playing); err != nil {
			m.fail(ctx, err)
			return
		}
	}

	m.enterReconciling()
}

func (m *Machine) authorIntent(ctx context.Context, ev PlayerEvent) {
	if m.role != domain.RoleHost {
		return
	}

	// Ends also pass while the last seek settles.
	if ev.Kind == PlayerEnded {
		if m.phase != domain.PhaseSynced && m.phase != domain.PhaseReconciling {
			return
		}
		if err := m.sender.Send(ctx, protocol.TypeVideoEnded, struct{}{}); err != nil {
			m.logger.WarnContext(ctx, "failed to send video ended", "error", err)
		}
		return
	}

	if m.phase != domain.PhaseSynced {
		return
	}

	position, err := m.player.Position()
	if err != nil {
		m.logger.WarnContext(ctx, "failed to read position", "error", err)
		return
	}

	msgType := protocol.TypePlay
	if ev.Kind == PlayerPaused {
		msgType = protocol.TypePause
	}

	if err := m.sender.Send(ctx, msgType, protocol.PositionPayload{PositionSeconds: position}); err != nil {
		m.logger.WarnContext(ctx, "failed to send intent", "type", msgType, "error", err)
	}
}

func (m *Machine) fail(ctx context.Context, err error) {
	m.logger.WarnContext(ctx, "player failure", "error", err)
	if m.cfg.OnNotice != nil {
		m.cfg.OnNotice(fmt.Sprintf("Video unavailable: %v", err))
	}
	m.goIdle(ctx)
}

func (m *Machine) goIdle(ctx context.Context) {
	if m.phase != domain.PhaseIdle {
		m.logger.DebugContext(ctx, "no video loaded")
	}
	m.stopSettle()
	m.stopHeartbeat()
	m.pending = nil
	m.videoID = ""
	m.phase = domain.PhaseIdle
}

func (m *Machine) enterReconciling() {
	m.phase = domain.PhaseReconciling
	m.settleGen++
	gen := m.settleGen

	m.stopSettle()
	m.settleTimer = m.clock.AfterFunc(m.cfg.SettleDelay, func() {
		m.settled(gen)
	})
}

func (m *Machine) settled(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// superseded by a newer correction
	if gen != m.settleGen || m.phase != domain.PhaseReconciling {
		return
	}

	m.phase = domain.PhaseSynced
	m.ensureHeartbeat()
}

func (m *Machine) stopSettle() {
	if m.settleTimer != nil {
		m.settleTimer.Stop()
		m.settleTimer = nil
	}
}

// ensureHeartbeat arms the heartbeat timer when this client is a host with a
// video and no heartbeat is scheduled yet.
func (m *Machine) ensureHeartbeat() {
	if m.role != domain.RoleHost || m.videoID == "" || m.heartbeatTimer != nil {
		return
	}

	m.scheduleHeartbeat()
}

func (m *Machine) scheduleHeartbeat() {
	m.heartbeatGen++
	gen := m.heartbeatGen

	m.heartbeatTimer = m.clock.AfterFunc(m.cfg.HeartbeatInterval, func() {
		m.heartbeat(gen)
	})
}

func (m *Machine) heartbeat(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.heartbeatGen || m.role != domain.RoleHost || m.videoID == "" {
		return
	}

	if m.phase == domain.PhaseSynced || m.phase == domain.PhaseReconciling {
		position, err := m.player.Position()
		if err != nil {
			m.logger.WarnContext(m.ctx, "failed to read position for heartbeat", "error", err)
		} else if err := m.sender.Send(m.ctx, protocol.TypeHeartbeat, protocol.PositionPayload{PositionSeconds: position}); err != nil {
			m.logger.WarnContext(m.ctx, "failed to send heartbeat", "error", err)
		}
	}

	m.scheduleHeartbeat()
}

func (m *Machine) stopHeartbeat() {
	m.heartbeatGen++
	if m.heartbeatTimer != nil {
		m.heartbeatTimer.Stop()
		m.heartbeatTimer = nil
	}
}
