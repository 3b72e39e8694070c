package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/sharetube/syncstream/internal/domain"
	"github.com/sharetube/syncstream/internal/repository/connection"
	"github.com/sharetube/syncstream/internal/repository/room"
)

type HostIntentParams struct {
	Kind            domain.IntentKind
	VideoID         string
	PositionSeconds float64
	SenderID        string
	RoomID          string
}

type HostIntentResponse struct {
	// Intent carries the authority timestamp it was applied at.
	Intent    domain.SyncIntent
	IsPlaying bool
	// Conns of every member except the sender.
	Conns []*connection.Conn
}

// HostIntent applies a load, play or pause from the host to the canonical
// state. Video end goes through VideoEnded.
func (s service) HostIntent(ctx context.Context, params *HostIntentParams) (HostIntentResponse, error) {
	unlock := s.locks.lock(params.RoomID)
	defer unlock()

	if err := s.checkIfMemberHost(ctx, params.RoomID, params.SenderID); err != nil {
		return HostIntentResponse{}, err
	}

	if err := params.Validate(); err != nil {
		return HostIntentResponse{}, fmt.Errorf("%w: %w", ErrInvalidIntent, err)
	}

	state, err := s.getPlaybackState(ctx, params.RoomID)
	if err != nil {
		return HostIntentResponse{}, err
	}

	if params.Kind != domain.IntentLoad && !state.HasVideo() {
		return HostIntentResponse{}, ErrNoVideoLoaded
	}

	now := s.now()
	intent := domain.SyncIntent{
		Kind:            params.Kind,
		VideoID:         params.VideoID,
		PositionSeconds: params.PositionSeconds,
		Timestamp:       now,
	}
	next := intent.Apply(state, now)
	if params.Kind != domain.IntentLoad {
		intent.VideoID = next.VideoID
	}

	if err := s.setPlaybackState(ctx, params.RoomID, next); err != nil {
		return HostIntentResponse{}, err
	}

	conns, err := s.getConns(ctx, params.RoomID, params.SenderID)
	if err != nil {
		return HostIntentResponse{}, err
	}

	s.logger.DebugContext(ctx, "intent applied", "kind", intent.Kind, "video_id", next.VideoID, "position", next.PositionSeconds)

	return HostIntentResponse{
		Intent:    intent,
		IsPlaying: next.IsPlaying,
		Conns:     conns,
	}, nil
}

type HeartbeatParams struct {
	PositionSeconds float64
	SenderID        string
	RoomID          string
}

type HeartbeatResponse struct {
	Snapshot domain.Snapshot
	// Conns of every member except the sender.
	Conns []*connection.Conn
}

// Heartbeat re-anchors the canonical position to the host's playhead. The
// play state is untouched.
func (s service) Heartbeat(ctx context.Context, params *HeartbeatParams) (HeartbeatResponse, error) {
	unlock := s.locks.lock(params.RoomID)
	defer unlock()

	if err := s.checkIfMemberHost(ctx, params.RoomID, params.SenderID); err != nil {
		return HeartbeatResponse{}, err
	}

	if err := params.Validate(); err != nil {
		return HeartbeatResponse{}, fmt.Errorf("%w: %w", ErrInvalidIntent, err)
	}

	state, err := s.getPlaybackState(ctx, params.RoomID)
	if err != nil {
		return HeartbeatResponse{}, err
	}

	if !state.HasVideo() {
		return HeartbeatResponse{}, ErrNoVideoLoaded
	}

	now := s.now()
	state.PositionSeconds = params.PositionSeconds
	state.AnchorTimestamp = now
	if err := s.setPlaybackState(ctx, params.RoomID, state); err != nil {
		return HeartbeatResponse{}, err
	}

	conns, err := s.getConns(ctx, params.RoomID, params.SenderID)
	if err != nil {
		return HeartbeatResponse{}, err
	}

	return HeartbeatResponse{
		Snapshot: domain.Snapshot{State: state, Timestamp: now},
		Conns:    conns,
	}, nil
}

type VideoEndedParams struct {
	SenderID string
	RoomID   string
}

type VideoEndedResponse struct {
	// Intent is the load of the next queued video, nil when the queue was
	// empty and the state got cleared.
	Intent   *domain.SyncIntent
	Snapshot domain.Snapshot
	Queue    []string
	// Conns of every member, the host included.
	Conns []*connection.Conn
}

// VideoEnded advances the room to the next queued video, which starts
// playing right away. With an empty queue the room goes back to "no video".
func (s service) VideoEnded(ctx context.Context, params *VideoEndedParams) (VideoEndedResponse, error) {
	unlock := s.locks.lock(params.RoomID)
	defer unlock()

	if err := s.checkIfMemberHost(ctx, params.RoomID, params.SenderID); err != nil {
		return VideoEndedResponse{}, err
	}

	state, err := s.getPlaybackState(ctx, params.RoomID)
	if err != nil {
		return VideoEndedResponse{}, err
	}

	now := s.now()
	var intent *domain.SyncIntent

	nextVideoID, err := s.roomRepo.PopVideo(ctx, params.RoomID)
	switch {
	case err == nil:
		intent = &domain.SyncIntent{
			Kind:      domain.IntentLoad,
			VideoID:   nextVideoID,
			Timestamp: now,
		}
		state = intent.Apply(state, now)
		state.IsPlaying = true
	case errors.Is(err, room.ErrQueueEmpty):
		state = state.Cleared(now)
	default:
		return VideoEndedResponse{}, fmt.Errorf("failed to pop video: %w", err)
	}

	if err := s.setPlaybackState(ctx, params.RoomID, state); err != nil {
		return VideoEndedResponse{}, err
	}

	queue, err := s.roomRepo.GetQueue(ctx, params.RoomID)
	if err != nil {
		return VideoEndedResponse{}, fmt.Errorf("failed to get queue: %w", err)
	}

	conns, err := s.getConns(ctx, params.RoomID, "")
	if err != nil {
		return VideoEndedResponse{}, err
	}

	s.logger.InfoContext(ctx, "video ended", "room_id", params.RoomID, "next_video_id", state.VideoID)

	return VideoEndedResponse{
		Intent:   intent,
		Snapshot: domain.Snapshot{State: state, Timestamp: now},
		Queue:    queue,
		Conns:    conns,
	}, nil
}

type UpdateBackgroundPlayParams struct {
	Enabled  bool
	SenderID string
	RoomID   string
}

type UpdateBackgroundPlayResponse struct {
	Enabled bool
	Conns   []*connection.Conn
}

func (s service) UpdateBackgroundPlay(ctx context.Context, params *UpdateBackgroundPlayParams) (UpdateBackgroundPlayResponse, error) {
	unlock := s.locks.lock(params.RoomID)
	defer unlock()

	if err := s.checkIfMemberHost(ctx, params.RoomID, params.SenderID); err != nil {
		return UpdateBackgroundPlayResponse{}, err
	}

	state, err := s.getPlaybackState(ctx, params.RoomID)
	if err != nil {
		return UpdateBackgroundPlayResponse{}, err
	}

	state.BackgroundPlayEnabled = params.Enabled
	if err := s.setPlaybackState(ctx, params.RoomID, state); err != nil {
		return UpdateBackgroundPlayResponse{}, err
	}

	conns, err := s.getConns(ctx, params.RoomID, "")
	if err != nil {
		return UpdateBackgroundPlayResponse{}, err
	}

	return UpdateBackgroundPlayResponse{
		Enabled: params.Enabled,
		Conns:   conns,
	}, nil
}
