package redis

import (
	"context"
	"fmt"

	"github.com/sharetube/syncstream/internal/repository/room"
)

func (r repo) getRoomKey(roomID string) string {
	return "room:" + roomID
}

func (r repo) SetRoom(ctx context.Context, params *room.SetRoomParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	pipe := r.rc.TxPipeline()

	roomKey := r.getRoomKey(params.RoomID)
	pipe.HSet(ctx, roomKey, room.Room{
		HostID:    params.HostID,
		CreatedAt: params.CreatedAt,
	})
	pipe.Expire(ctx, roomKey, r.expireDuration)

	if err := r.executePipe(ctx, pipe); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return fmt.Errorf("failed to set room: %w", err)
	}

	return nil
}

func (r repo) IsRoomExists(ctx context.Context, roomID string) (bool, error) {
	exists, err := r.exists(ctx, r.getRoomKey(roomID))
	if err != nil {
		return false, fmt.Errorf("failed to check if room exists: %w", err)
	}

	return exists, nil
}

func (r repo) GetRoom(ctx context.Context, roomID string) (room.Room, error) {
	var res room.Room
	cmd := r.rc.HGetAll(ctx, r.getRoomKey(roomID))
	if err := cmd.Err(); err != nil {
		return room.Room{}, fmt.Errorf("failed to get room: %w", err)
	}

	if len(cmd.Val()) == 0 {
		return room.Room{}, room.ErrRoomNotFound
	}

	if err := cmd.Scan(&res); err != nil {
		return room.Room{}, fmt.Errorf("failed to scan room: %w", err)
	}

	return res, nil
}

func (r repo) GetHostID(ctx context.Context, roomID string) (string, error) {
	rm, err := r.GetRoom(ctx, roomID)
	if err != nil {
		return "", err
	}

	return rm.HostID, nil
}

func (r repo) SetHostID(ctx context.Context, roomID, memberID string) error {
	r.logger.DebugContext(ctx, "called", "room_id", roomID, "member_id", memberID)
	roomKey := r.getRoomKey(roomID)
	exists, err := r.exists(ctx, roomKey)
	if err != nil {
		return fmt.Errorf("failed to check if room exists: %w", err)
	}

	if !exists {
		return room.ErrRoomNotFound
	}

	pipe := r.rc.TxPipeline()
	pipe.HSet(ctx, roomKey, "host_id", memberID)
	pipe.Expire(ctx, roomKey, r.expireDuration)

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to set host id: %w", err)
	}

	return nil
}

// RemoveRoom deletes the room together with its member list, playback state
// and queue. Member hashes are removed with their members.
func (r repo) RemoveRoom(ctx context.Context, roomID string) error {
	r.logger.DebugContext(ctx, "called", "room_id", roomID)
	res, err := r.rc.Del(ctx,
		r.getRoomKey(roomID),
		r.getMemberListKey(roomID),
		r.getPlaybackKey(roomID),
		r.getQueueKey(roomID),
	).Result()
	if err != nil {
		return fmt.Errorf("failed to remove room: %w", err)
	}

	if res == 0 {
		return room.ErrRoomNotFound
	}

	return nil
}
