package controller

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sharetube/syncstream/internal/domain"
	"github.com/sharetube/syncstream/internal/service/room"
	"github.com/sharetube/syncstream/pkg/validator"
	"github.com/sharetube/syncstream/pkg/wsrouter"
)

type iRoomService interface {
	CreateRoom(context.Context, *room.CreateRoomParams) (room.CreateRoomResponse, error)
	JoinRoom(context.Context, *room.JoinRoomParams) (room.JoinRoomResponse, error)
	ConnectMember(context.Context, *room.ConnectMemberParams) error
	DisconnectMember(context.Context, *room.DisconnectMemberParams) (room.DisconnectMemberResponse, error)
	GetSnapshot(context.Context, *room.GetSnapshotParams) (domain.Snapshot, error)
	HostIntent(context.Context, *room.HostIntentParams) (room.HostIntentResponse, error)
	Heartbeat(context.Context, *room.HeartbeatParams) (room.HeartbeatResponse, error)
	VideoEnded(context.Context, *room.VideoEndedParams) (room.VideoEndedResponse, error)
	AddToQueue(context.Context, *room.AddToQueueParams) (room.AddToQueueResponse, error)
	UpdateBackgroundPlay(context.Context, *room.UpdateBackgroundPlayParams) (room.UpdateBackgroundPlayResponse, error)
}

type controller struct {
	roomService iRoomService
	upgrader    websocket.Upgrader
	validate    *validator.Validator
	wsmux       *wsrouter.WSRouter
	logger      *slog.Logger
}

func NewController(roomService iRoomService, logger *slog.Logger) *controller {
	c := &controller{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		roomService: roomService,
		validate:    validator.NewValidator(),
		logger:      logger,
	}
	c.wsmux = c.getWSRouter()

	return c
}
