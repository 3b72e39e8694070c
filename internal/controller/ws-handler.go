package controller

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/sharetube/syncstream/internal/domain"
	"github.com/sharetube/syncstream/internal/protocol"
	"github.com/sharetube/syncstream/internal/service/room"
)

type EmptyStruct struct{}

func (c controller) handleAlive(ctx context.Context, _ *websocket.Conn, _ EmptyStruct) error {
	return nil
}

func (c controller) handleGetState(ctx context.Context, _ *websocket.Conn, _ EmptyStruct) error {
	snapshot, err := c.roomService.GetSnapshot(ctx, &room.GetSnapshotParams{
		MemberID: c.getMemberIDFromCtx(ctx),
		RoomID:   c.getRoomIDFromCtx(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to get snapshot: %w", err)
	}

	return c.writeToConn(ctx, c.getConnFromCtx(ctx), &protocol.Output{
		Type:    protocol.TypeSnapshot,
		Payload: protocol.NewSnapshotEvent(snapshot),
	})
}

func (c controller) handleLoadVideo(ctx context.Context, _ *websocket.Conn, input protocol.LoadVideoPayload) error {
	if err := c.validateIntent(input); err != nil {
		return err
	}

	return c.hostIntent(ctx, &room.HostIntentParams{
		Kind:            domain.IntentLoad,
		VideoID:         input.VideoID,
		PositionSeconds: input.PositionSeconds,
	})
}

func (c controller) handlePlay(ctx context.Context, _ *websocket.Conn, input protocol.PositionPayload) error {
	if err := c.validateIntent(input); err != nil {
		return err
	}

	return c.hostIntent(ctx, &room.HostIntentParams{
		Kind:            domain.IntentPlay,
		PositionSeconds: input.PositionSeconds,
	})
}

func (c controller) handlePause(ctx context.Context, _ *websocket.Conn, input protocol.PositionPayload) error {
	if err := c.validateIntent(input); err != nil {
		return err
	}

	return c.hostIntent(ctx, &room.HostIntentParams{
		Kind:            domain.IntentPause,
		PositionSeconds: input.PositionSeconds,
	})
}

func (c controller) hostIntent(ctx context.Context, params *room.HostIntentParams) error {
	params.SenderID = c.getMemberIDFromCtx(ctx)
	params.RoomID = c.getRoomIDFromCtx(ctx)

	hostIntentResp, err := c.roomService.HostIntent(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to apply %s intent: %w", params.Kind, err)
	}

	if err := c.broadcast(ctx, hostIntentResp.Conns, &protocol.Output{
		Type:    protocol.IntentType(hostIntentResp.Intent.Kind),
		Payload: protocol.NewIntentEvent(hostIntentResp.Intent, hostIntentResp.IsPlaying),
	}); err != nil {
		c.logger.InfoContext(ctx, "failed to relay intent", "error", err)
	}

	return nil
}

func (c controller) handleHeartbeat(ctx context.Context, _ *websocket.Conn, input protocol.PositionPayload) error {
	if err := c.validateIntent(input); err != nil {
		return err
	}

	heartbeatResp, err := c.roomService.Heartbeat(ctx, &room.HeartbeatParams{
		PositionSeconds: input.PositionSeconds,
		SenderID:        c.getMemberIDFromCtx(ctx),
		RoomID:          c.getRoomIDFromCtx(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to apply heartbeat: %w", err)
	}

	state := heartbeatResp.Snapshot.State
	if err := c.broadcast(ctx, heartbeatResp.Conns, &protocol.Output{
		Type: protocol.TypeSyncCheck,
		Payload: protocol.SyncCheckEvent{
			PositionSeconds: state.PositionSeconds,
			IsPlaying:       state.IsPlaying,
			Timestamp:       protocol.Millis(heartbeatResp.Snapshot.Timestamp),
		},
	}); err != nil {
		c.logger.InfoContext(ctx, "failed to relay sync check", "error", err)
	}

	return nil
}

func (c controller) handleVideoEnded(ctx context.Context, _ *websocket.Conn, _ EmptyStruct) error {
	videoEndedResp, err := c.roomService.VideoEnded(ctx, &room.VideoEndedParams{
		SenderID: c.getMemberIDFromCtx(ctx),
		RoomID:   c.getRoomIDFromCtx(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to end video: %w", err)
	}

	// With no next video the state is cleared, which followers learn from a
	// snapshot.
	output := &protocol.Output{
		Type:    protocol.TypeSnapshot,
		Payload: protocol.NewSnapshotEvent(videoEndedResp.Snapshot),
	}
	if videoEndedResp.Intent != nil {
		output = &protocol.Output{
			Type:    protocol.TypeLoad,
			Payload: protocol.NewIntentEvent(*videoEndedResp.Intent, videoEndedResp.Snapshot.State.IsPlaying),
		}
	}

	if err := c.broadcast(ctx, videoEndedResp.Conns, output); err != nil {
		c.logger.InfoContext(ctx, "failed to relay next video", "error", err)
	}

	if err := c.broadcast(ctx, videoEndedResp.Conns, &protocol.Output{
		Type:    protocol.TypeQueueUpdated,
		Payload: protocol.QueueEvent{Queue: videoEndedResp.Queue},
	}); err != nil {
		c.logger.InfoContext(ctx, "failed to broadcast queue", "error", err)
	}

	return nil
}

func (c controller) handleAddToQueue(ctx context.Context, _ *websocket.Conn, input protocol.AddToQueuePayload) error {
	if err := c.validatePayload(input); err != nil {
		return err
	}

	addToQueueResp, err := c.roomService.AddToQueue(ctx, &room.AddToQueueParams{
		VideoID:  input.VideoID,
		SenderID: c.getMemberIDFromCtx(ctx),
		RoomID:   c.getRoomIDFromCtx(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to add to queue: %w", err)
	}

	if err := c.broadcast(ctx, addToQueueResp.Conns, &protocol.Output{
		Type:    protocol.TypeQueueUpdated,
		Payload: protocol.QueueEvent{Queue: addToQueueResp.Queue},
	}); err != nil {
		c.logger.InfoContext(ctx, "failed to broadcast queue", "error", err)
	}

	return nil
}

func (c controller) handleUpdateBackgroundPlay(ctx context.Context, _ *websocket.Conn, input protocol.BackgroundPlayPayload) error {
	updateResp, err := c.roomService.UpdateBackgroundPlay(ctx, &room.UpdateBackgroundPlayParams{
		Enabled:  input.Enabled,
		SenderID: c.getMemberIDFromCtx(ctx),
		RoomID:   c.getRoomIDFromCtx(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to update background play: %w", err)
	}

	if err := c.broadcast(ctx, updateResp.Conns, &protocol.Output{
		Type:    protocol.TypeBackgroundPlayUpdated,
		Payload: protocol.BackgroundPlayEvent{Enabled: updateResp.Enabled},
	}); err != nil {
		c.logger.InfoContext(ctx, "failed to broadcast background play", "error", err)
	}

	return nil
}
