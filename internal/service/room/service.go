package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/sharetube/syncstream/internal/repository/connection"
	"github.com/sharetube/syncstream/internal/repository/room"
)

var (
	ErrNotHost             = errors.New("only the host can do this")
	ErrInvalidIntent       = errors.New("invalid intent")
	ErrNoVideoLoaded       = errors.New("no video loaded")
	ErrRoomNotFound        = errors.New("room not found")
	ErrMemberNotFound      = errors.New("member not found")
	ErrMembersLimitReached = errors.New("members limit reached")
	ErrQueueLimitReached   = errors.New("queue limit reached")
)

type iRoomRepo interface {
	// room
	SetRoom(context.Context, *room.SetRoomParams) error
	IsRoomExists(context.Context, string) (bool, error)
	GetHostID(context.Context, string) (string, error)
	SetHostID(ctx context.Context, roomID, memberID string) error
	RemoveRoom(context.Context, string) error
	// member
	SetMember(context.Context, *room.SetMemberParams) error
	RemoveMember(context.Context, *room.RemoveMemberParams) error
	GetMember(context.Context, string) (room.Member, error)
	GetMemberIDs(context.Context, string) ([]string, error)
	IsMemberInRoom(ctx context.Context, roomID, memberID string) (bool, error)
	GetMembersCount(context.Context, string) (int, error)
	// playback
	SetPlayback(context.Context, *room.SetPlaybackParams) error
	GetPlayback(context.Context, string) (room.Playback, error)
	// queue
	PushVideo(context.Context, *room.PushVideoParams) error
	PopVideo(context.Context, string) (string, error)
	GetQueue(context.Context, string) ([]string, error)
	GetQueueLength(context.Context, string) (int, error)
}

type iConnRepo interface {
	Add(*connection.Conn, string) error
	RemoveByMemberID(string) (*connection.Conn, error)
	GetConn(string) (*connection.Conn, error)
}

type Config struct {
	MembersLimit    int
	QueueLimit      int
	SuccessorPolicy SuccessorPolicy
}

// service is the single writer of every room's canonical playback state.
// Mutations of one room run under that room's lock, in arrival order.
type service struct {
	roomRepo        iRoomRepo
	connRepo        iConnRepo
	clock           clockwork.Clock
	logger          *slog.Logger
	locks           *roomLocks
	membersLimit    int
	queueLimit      int
	successorPolicy SuccessorPolicy
}

func NewService(roomRepo iRoomRepo, connRepo iConnRepo, clock clockwork.Clock, logger *slog.Logger, cfg *Config) (*service, error) {
	if cfg.SuccessorPolicy == "" {
		cfg.SuccessorPolicy = SuccessorLongestConnected
	}
	if _, err := ParseSuccessorPolicy(string(cfg.SuccessorPolicy)); err != nil {
		return nil, err
	}

	if cfg.MembersLimit <= 0 || cfg.QueueLimit <= 0 {
		return nil, fmt.Errorf("members limit and queue limit must be positive, got %d and %d", cfg.MembersLimit, cfg.QueueLimit)
	}

	return &service{
		roomRepo:        roomRepo,
		connRepo:        connRepo,
		clock:           clock,
		logger:          logger,
		locks:           newRoomLocks(),
		membersLimit:    cfg.MembersLimit,
		queueLimit:      cfg.QueueLimit,
		successorPolicy: cfg.SuccessorPolicy,
	}, nil
}
