package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sharetube/syncstream/internal/domain"
	"github.com/sharetube/syncstream/internal/repository/connection"
	"github.com/sharetube/syncstream/internal/repository/room"
)

// getConns returns the connections of the room's members, skipping except
// and members that are not connected yet.
func (s service) getConns(ctx context.Context, roomID string, except string) ([]*connection.Conn, error) {
	memberIDs, err := s.roomRepo.GetMemberIDs(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to get member ids: %w", err)
	}

	conns := make([]*connection.Conn, 0, len(memberIDs))
	for _, memberID := range memberIDs {
		if memberID == except {
			continue
		}

		conn, err := s.connRepo.GetConn(memberID)
		if err != nil {
			if errors.Is(err, connection.ErrNotFound) {
				s.logger.DebugContext(ctx, "member has no connection", "member_id", memberID)
				continue
			}
			return nil, fmt.Errorf("failed to get conn: %w", err)
		}

		conns = append(conns, conn)
	}

	return conns, nil
}

func (s service) checkIfRoomExists(ctx context.Context, roomID string) error {
	exists, err := s.roomRepo.IsRoomExists(ctx, roomID)
	if err != nil {
		return err
	}

	if !exists {
		return ErrRoomNotFound
	}

	return nil
}

func (s service) checkIfMemberHost(ctx context.Context, roomID, memberID string) error {
	hostID, err := s.roomRepo.GetHostID(ctx, roomID)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			return ErrRoomNotFound
		}
		return fmt.Errorf("failed to get host id: %w", err)
	}

	if hostID != memberID {
		return ErrNotHost
	}

	return nil
}

func (s service) getPlaybackState(ctx context.Context, roomID string) (domain.PlaybackState, error) {
	pb, err := s.roomRepo.GetPlayback(ctx, roomID)
	if err != nil {
		if errors.Is(err, room.ErrPlaybackNotFound) {
			return domain.PlaybackState{}, ErrRoomNotFound
		}
		return domain.PlaybackState{}, fmt.Errorf("failed to get playback: %w", err)
	}

	return fromStored(pb), nil
}

func (s service) setPlaybackState(ctx context.Context, roomID string, state domain.PlaybackState) error {
	if err := s.roomRepo.SetPlayback(ctx, &room.SetPlaybackParams{
		Playback: toStored(state),
		RoomID:   roomID,
	}); err != nil {
		return fmt.Errorf("failed to set playback: %w", err)
	}

	return nil
}

// now is the authority time, truncated to the millisecond precision it is
// stored and sent with.
func (s service) now() time.Time {
	return s.clock.Now().Truncate(time.Millisecond)
}

func toStored(state domain.PlaybackState) room.Playback {
	var anchor int64
	if !state.AnchorTimestamp.IsZero() {
		anchor = state.AnchorTimestamp.UnixMilli()
	}

	return room.Playback{
		VideoID:         state.VideoID,
		PositionSeconds: state.PositionSeconds,
		AnchorMillis:    anchor,
		IsPlaying:       state.IsPlaying,
		BackgroundPlay:  state.BackgroundPlayEnabled,
	}
}

func fromStored(pb room.Playback) domain.PlaybackState {
	var anchor time.Time
	if pb.AnchorMillis != 0 {
		anchor = time.UnixMilli(pb.AnchorMillis)
	}

	return domain.PlaybackState{
		VideoID:               pb.VideoID,
		PositionSeconds:       pb.PositionSeconds,
		AnchorTimestamp:       anchor,
		IsPlaying:             pb.IsPlaying,
		BackgroundPlayEnabled: pb.BackgroundPlay,
	}
}
