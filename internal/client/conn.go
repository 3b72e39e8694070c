package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sharetube/syncstream/internal/protocol"
)

var ErrRoomNotFound = errors.New("room not found")

// Conn is the websocket link between a Machine and the room authority.
type Conn struct {
	ws     *websocket.Conn
	logger *slog.Logger
	writeM sync.Mutex

	// set by Run from ROOM_JOINED
	roomID string
}

func Dial(ctx context.Context, url string, logger *slog.Logger) (*Conn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, http.Header{})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}

	return NewConn(ws, logger), nil
}

func NewConn(ws *websocket.Conn, logger *slog.Logger) *Conn {
	return &Conn{
		ws:     ws,
		logger: logger,
	}
}

func (c *Conn) Send(_ context.Context, msgType string, payload any) error {
	c.writeM.Lock()
	defer c.writeM.Unlock()

	return c.ws.WriteJSON(protocol.Output{
		Type:    msgType,
		Payload: payload,
	})
}

// RoomID is the room the authority put this connection in. It is only
// meaningful once Run returned.
func (c *Conn) RoomID() string {
	return c.roomID
}

func (c *Conn) Close() error {
	return c.ws.Close()
}

// Run feeds every message from the authority into m until the connection
// fails or ctx is done. The machine is told about the disconnect before Run
// returns.
func (c *Conn) Run(ctx context.Context, m *Machine) error {
	defer m.HandleDisconnect(ctx)

	stop := context.AfterFunc(ctx, func() {
		c.ws.Close()
	})
	defer stop()

	for {
		var input protocol.Input
		if err := c.ws.ReadJSON(&input); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to read message: %w", err)
		}

		if err := c.dispatch(ctx, m, input); err != nil {
			c.logger.WarnContext(ctx, "failed to handle message", "type", input.Type, "error", err)
		}
	}
}

func (c *Conn) dispatch(ctx context.Context, m *Machine, input protocol.Input) error {
	switch input.Type {
	case protocol.TypeRoomJoined:
		var ev protocol.RoomJoinedEvent
		if err := json.Unmarshal(input.Payload, &ev); err != nil {
			return err
		}
		c.roomID = ev.RoomID
		m.HandleJoined(ctx, ev.MemberID, ev.IsHost, ev.Snapshot.Snapshot())
	case protocol.TypeLoad, protocol.TypePlayed, protocol.TypePaused:
		var ev protocol.IntentEvent
		if err := json.Unmarshal(input.Payload, &ev); err != nil {
			return err
		}
		intent, err := ev.Intent()
		if err != nil {
			return err
		}
		m.HandleIntent(ctx, intent, ev.IsPlaying)
	case protocol.TypeSyncCheck:
		var ev protocol.SyncCheckEvent
		if err := json.Unmarshal(input.Payload, &ev); err != nil {
			return err
		}
		m.HandleSyncCheck(ctx, ev.PositionSeconds, ev.IsPlaying, protocol.FromMillis(ev.Timestamp))
	case protocol.TypeSnapshot:
		var ev protocol.SnapshotEvent
		if err := json.Unmarshal(input.Payload, &ev); err != nil {
			return err
		}
		m.HandleSnapshot(ctx, ev.Snapshot())
	case protocol.TypePromoted:
		var ev protocol.PromotedEvent
		if err := json.Unmarshal(input.Payload, &ev); err != nil {
			return err
		}
		m.HandlePromoted(ctx, ev.MemberID)
	case protocol.TypeError:
		var ev protocol.ErrorEvent
		if err := json.Unmarshal(input.Payload, &ev); err != nil {
			return err
		}
		c.logger.WarnContext(ctx, "authority rejected message", "message", ev.Message, "errors", ev.Errors)
	default:
		c.logger.DebugContext(ctx, "ignoring message", "type", input.Type)
	}

	return nil
}
