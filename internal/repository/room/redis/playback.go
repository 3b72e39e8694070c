package redis

import (
	"context"
	"fmt"

	"github.com/sharetube/syncstream/internal/repository/room"
)

func (r repo) getPlaybackKey(roomID string) string {
	return "room:" + roomID + ":playback"
}

func (r repo) SetPlayback(ctx context.Context, params *room.SetPlaybackParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	pipe := r.rc.TxPipeline()

	playbackKey := r.getPlaybackKey(params.RoomID)
	pipe.HSet(ctx, playbackKey, params.Playback)
	pipe.Expire(ctx, playbackKey, r.expireDuration)
	// playback is written on every heartbeat, which keeps an active room alive
	pipe.Expire(ctx, r.getRoomKey(params.RoomID), r.expireDuration)
	pipe.Expire(ctx, r.getMemberListKey(params.RoomID), r.expireDuration)
	pipe.Expire(ctx, r.getQueueKey(params.RoomID), r.expireDuration)

	if err := r.executePipe(ctx, pipe); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return fmt.Errorf("failed to set playback: %w", err)
	}

	return nil
}

func (r repo) GetPlayback(ctx context.Context, roomID string) (room.Playback, error) {
	var playback room.Playback
	cmd := r.rc.HGetAll(ctx, r.getPlaybackKey(roomID))
	if err := cmd.Err(); err != nil {
		return room.Playback{}, fmt.Errorf("failed to get playback: %w", err)
	}

	if len(cmd.Val()) == 0 {
		return room.Playback{}, room.ErrPlaybackNotFound
	}

	if err := cmd.Scan(&playback); err != nil {
		return room.Playback{}, fmt.Errorf("failed to scan playback: %w", err)
	}

	return playback, nil
}
