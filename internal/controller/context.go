package controller

import (
	"context"

	"github.com/sharetube/syncstream/internal/repository/connection"
)

type contextKey int

const (
	roomIDCtxKey contextKey = iota
	memberIDCtxKey
	connCtxKey
)

func (c controller) getRoomIDFromCtx(ctx context.Context) string {
	roomID, ok := ctx.Value(roomIDCtxKey).(string)
	if !ok {
		return ""
	}

	return roomID
}

func (c controller) getMemberIDFromCtx(ctx context.Context) string {
	memberID, ok := ctx.Value(memberIDCtxKey).(string)
	if !ok {
		return ""
	}

	return memberID
}

// getConnFromCtx returns the sender's connection. Writes to it must go
// through this wrapper, never through the raw websocket.
func (c controller) getConnFromCtx(ctx context.Context) *connection.Conn {
	conn, ok := ctx.Value(connCtxKey).(*connection.Conn)
	if !ok {
		return nil
	}

	return conn
}
