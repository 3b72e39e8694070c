package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/sharetube/syncstream/internal/protocol"
	"github.com/sharetube/syncstream/internal/repository/connection"
	"github.com/sharetube/syncstream/internal/service/room"
	"github.com/sharetube/syncstream/pkg/validator"
	"github.com/sharetube/syncstream/pkg/wsrouter"
)

type validationError struct {
	errs []validator.ValidationError
}

func (e validationError) Error() string {
	return fmt.Sprintf("validation failed: %d field(s)", len(e.errs))
}

func (c controller) validatePayload(payload any) error {
	if errs, ok := c.validate.Validate(payload); !ok {
		return validationError{errs: errs}
	}

	return nil
}

// validateIntent rejects a malformed playback intent the way the room
// service does, so it is dropped without a reply.
func (c controller) validateIntent(payload any) error {
	if err := c.validatePayload(payload); err != nil {
		return fmt.Errorf("%w: %w", room.ErrInvalidIntent, err)
	}

	return nil
}

// handleWSError decides which handler errors get reported back to the
// sender. Dropped intents are not an error for the sender's peers.
func (c controller) handleWSError(ctx context.Context, _ *websocket.Conn, err error) {
	conn := c.getConnFromCtx(ctx)

	var verr validationError
	switch {
	case errors.Is(err, room.ErrNotHost):
		c.logger.WarnContext(ctx, "control message from non-host dropped", "member_id", c.getMemberIDFromCtx(ctx))
	case errors.Is(err, room.ErrInvalidIntent), errors.Is(err, room.ErrNoVideoLoaded):
		c.logger.DebugContext(ctx, "intent dropped", "error", err)
	case errors.As(err, &verr):
		c.logger.DebugContext(ctx, "invalid payload", "error", err)
		c.replyError(ctx, conn, &protocol.ErrorEvent{Message: "validation failed", Errors: verr.errs})
	case errors.Is(err, room.ErrQueueLimitReached):
		c.replyError(ctx, conn, &protocol.ErrorEvent{Message: room.ErrQueueLimitReached.Error()})
	case errors.Is(err, wsrouter.ErrUnknownMessageType), errors.Is(err, wsrouter.ErrInvalidPayload):
		c.logger.DebugContext(ctx, "bad message", "error", err)
		c.replyError(ctx, conn, &protocol.ErrorEvent{Message: err.Error()})
	default:
		c.logger.ErrorContext(ctx, "failed to handle message", "error", err)
		c.replyError(ctx, conn, &protocol.ErrorEvent{Message: "internal error"})
	}
}

func (c controller) replyError(ctx context.Context, conn *connection.Conn, payload *protocol.ErrorEvent) {
	if conn == nil {
		return
	}

	c.writeToConn(ctx, conn, &protocol.Output{
		Type:    protocol.TypeError,
		Payload: payload,
	})
}
