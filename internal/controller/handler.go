package controller

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sharetube/syncstream/internal/protocol"
	"github.com/sharetube/syncstream/internal/repository/connection"
	"github.com/sharetube/syncstream/internal/service/room"
	"github.com/sharetube/syncstream/pkg/ctxlogger"
)

func (c controller) createRoom(w http.ResponseWriter, r *http.Request) {
	createRoomResponse, err := c.roomService.CreateRoom(r.Context(), &room.CreateRoomParams{
		Username: r.URL.Query().Get("username"),
	})
	if err != nil {
		c.logger.DebugContext(r.Context(), "failed to create room", "error", err)
		c.writeHTTPError(w, err)
		return
	}
	defer c.disconnect(r.Context(), createRoomResponse.MemberID, createRoomResponse.RoomID)

	c.serveMember(w, r, createRoomResponse.RoomID, createRoomResponse.MemberID, &protocol.RoomJoinedEvent{
		RoomID:   createRoomResponse.RoomID,
		MemberID: createRoomResponse.MemberID,
		IsHost:   true,
		Members:  []string{createRoomResponse.MemberID},
		Snapshot: protocol.NewSnapshotEvent(createRoomResponse.Snapshot),
	}, nil)
}

func (c controller) joinRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "room-id")

	joinRoomResponse, err := c.roomService.JoinRoom(r.Context(), &room.JoinRoomParams{
		Username: r.URL.Query().Get("username"),
		RoomID:   roomID,
	})
	if err != nil {
		c.logger.DebugContext(r.Context(), "failed to join room", "error", err)
		c.writeHTTPError(w, err)
		return
	}
	defer c.disconnect(r.Context(), joinRoomResponse.MemberID, roomID)

	c.serveMember(w, r, roomID, joinRoomResponse.MemberID, &protocol.RoomJoinedEvent{
		RoomID:   roomID,
		MemberID: joinRoomResponse.MemberID,
		IsHost:   joinRoomResponse.HostID == joinRoomResponse.MemberID,
		Members:  joinRoomResponse.Members,
		Snapshot: protocol.NewSnapshotEvent(joinRoomResponse.Snapshot),
	}, func(ctx context.Context) {
		if err := c.broadcast(ctx, joinRoomResponse.Conns, &protocol.Output{
			Type: protocol.TypeMemberJoined,
			Payload: protocol.MemberEvent{
				MemberID: joinRoomResponse.MemberID,
				Username: joinRoomResponse.Username,
				HostID:   joinRoomResponse.HostID,
				Members:  joinRoomResponse.Members,
			},
		}); err != nil {
			c.logger.InfoContext(ctx, "failed to broadcast member joined", "error", err)
		}
	})
}

// serveMember upgrades the request, registers the connection and reads the
// member's messages until the socket closes. onJoined runs once the
// ROOM_JOINED message was written.
func (c controller) serveMember(w http.ResponseWriter, r *http.Request, roomID, memberID string, joined *protocol.RoomJoinedEvent, onJoined func(context.Context)) {
	ctx := ctxlogger.AppendCtx(r.Context(), slog.String("room_id", roomID))
	ctx = ctxlogger.AppendCtx(ctx, slog.String("member_id", memberID))

	ws, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to upgrade to websocket", "error", err)
		return
	}
	// Relays reaching the conn before ROOM_JOINED is written are queued
	// behind it.
	conn := connection.NewHeldConn(ws)
	defer conn.Close()

	if err := c.roomService.ConnectMember(ctx, &room.ConnectMemberParams{
		Conn:     conn,
		MemberID: memberID,
	}); err != nil {
		c.logger.WarnContext(ctx, "failed to connect member", "error", err)
		return
	}

	// Intents applied before the conn was registered were not relayed to it,
	// so the snapshot is taken again now that it is.
	snapshot, err := c.roomService.GetSnapshot(ctx, &room.GetSnapshotParams{
		MemberID: memberID,
		RoomID:   roomID,
	})
	if err != nil {
		c.logger.WarnContext(ctx, "failed to get snapshot", "error", err)
		return
	}
	joined.Snapshot = protocol.NewSnapshotEvent(snapshot)

	if err := conn.Release(&protocol.Output{
		Type:    protocol.TypeRoomJoined,
		Payload: joined,
	}); err != nil {
		c.logger.InfoContext(ctx, "failed to write room joined", "error", err)
		return
	}

	if onJoined != nil {
		onJoined(ctx)
	}

	ctx = context.WithValue(ctx, roomIDCtxKey, roomID)
	ctx = context.WithValue(ctx, memberIDCtxKey, memberID)
	ctx = context.WithValue(ctx, connCtxKey, conn)

	if err := c.wsmux.ServeConn(ctx, ws); err != nil {
		c.logger.InfoContext(ctx, "connection closed", "error", err)
	}
}

func (c controller) disconnect(ctx context.Context, memberID, roomID string) {
	disconnectResp, err := c.roomService.DisconnectMember(ctx, &room.DisconnectMemberParams{
		MemberID: memberID,
		RoomID:   roomID,
	})
	if err != nil {
		c.logger.WarnContext(ctx, "failed to disconnect member", "member_id", memberID, "error", err)
		return
	}

	if disconnectResp.IsRoomDeleted {
		return
	}

	if disconnectResp.PromotedMemberID != "" {
		if err := c.broadcast(ctx, disconnectResp.Conns, &protocol.Output{
			Type:    protocol.TypePromoted,
			Payload: protocol.PromotedEvent{MemberID: disconnectResp.PromotedMemberID},
		}); err != nil {
			c.logger.InfoContext(ctx, "failed to broadcast promotion", "error", err)
		}
	}

	if err := c.broadcast(ctx, disconnectResp.Conns, &protocol.Output{
		Type: protocol.TypeMemberLeft,
		Payload: protocol.MemberEvent{
			MemberID: memberID,
			Username: disconnectResp.Username,
			HostID:   disconnectResp.HostID,
			Members:  disconnectResp.Members,
		},
	}); err != nil {
		c.logger.InfoContext(ctx, "failed to broadcast member left", "error", err)
	}
}

func (c controller) writeHTTPError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, room.ErrMembersLimitReached):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, room.ErrInvalidIntent):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
