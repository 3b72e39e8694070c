package redis

import (
	"context"
	"fmt"

	"github.com/sharetube/syncstream/internal/repository/room"
)

func (r repo) getQueueKey(roomID string) string {
	return "room:" + roomID + ":queue"
}

func (r repo) PushVideo(ctx context.Context, params *room.PushVideoParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	pipe := r.rc.TxPipeline()

	queueKey := r.getQueueKey(params.RoomID)
	pipe.RPush(ctx, queueKey, params.VideoID)
	pipe.Expire(ctx, queueKey, r.expireDuration)

	if err := r.executePipe(ctx, pipe); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return fmt.Errorf("failed to push video: %w", err)
	}

	return nil
}

// PopVideo removes and returns the head of the queue.
func (r repo) PopVideo(ctx context.Context, roomID string) (string, error) {
	videoID, err := r.rc.LPop(ctx, r.getQueueKey(roomID)).Result()
	if err != nil {
		if isNil(err) {
			return "", room.ErrQueueEmpty
		}
		return "", fmt.Errorf("failed to pop video: %w", err)
	}

	return videoID, nil
}

func (r repo) GetQueue(ctx context.Context, roomID string) ([]string, error) {
	videoIDs, err := r.rc.LRange(ctx, r.getQueueKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get queue: %w", err)
	}

	return videoIDs, nil
}

func (r repo) GetQueueLength(ctx context.Context, roomID string) (int, error) {
	length, err := r.rc.LLen(ctx, r.getQueueKey(roomID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue length: %w", err)
	}

	return int(length), nil
}
