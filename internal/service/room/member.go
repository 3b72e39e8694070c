package room

import (
	"context"
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/sharetube/syncstream/internal/domain"
	"github.com/sharetube/syncstream/internal/repository/connection"
	"github.com/sharetube/syncstream/internal/repository/room"
)

type CreateRoomParams struct {
	Username string
}

type CreateRoomResponse struct {
	RoomID   string
	MemberID string
	Snapshot domain.Snapshot
}

// CreateRoom opens a room with no video loaded. The creator is its host.
func (s service) CreateRoom(ctx context.Context, params *CreateRoomParams) (CreateRoomResponse, error) {
	if err := validation.Validate(params.Username, UsernameRule...); err != nil {
		return CreateRoomResponse{}, fmt.Errorf("%w: username: %w", ErrInvalidIntent, err)
	}

	roomID := uuid.NewString()
	memberID := uuid.NewString()
	now := s.now()

	unlock := s.locks.lock(roomID)
	defer unlock()

	if err := s.roomRepo.SetRoom(ctx, &room.SetRoomParams{
		RoomID:    roomID,
		HostID:    memberID,
		CreatedAt: now.UnixMilli(),
	}); err != nil {
		return CreateRoomResponse{}, fmt.Errorf("failed to set room: %w", err)
	}

	if err := s.roomRepo.SetMember(ctx, &room.SetMemberParams{
		MemberID: memberID,
		Username: params.Username,
		JoinedAt: now.UnixMilli(),
		RoomID:   roomID,
	}); err != nil {
		return CreateRoomResponse{}, fmt.Errorf("failed to set member: %w", err)
	}

	state := domain.PlaybackState{AnchorTimestamp: now}
	if err := s.setPlaybackState(ctx, roomID, state); err != nil {
		return CreateRoomResponse{}, err
	}

	s.logger.InfoContext(ctx, "room created", "room_id", roomID, "host_id", memberID)

	return CreateRoomResponse{
		RoomID:   roomID,
		MemberID: memberID,
		Snapshot: domain.Snapshot{State: state, Timestamp: now},
	}, nil
}

type JoinRoomParams struct {
	Username string
	RoomID   string
}

type JoinRoomResponse struct {
	MemberID string
	Username string
	HostID   string
	Members  []string
	Snapshot domain.Snapshot
	// Conns of the members that were already in the room.
	Conns []*connection.Conn
}

// JoinRoom adds a follower and returns the canonical state stamped with the
// current authority time.
func (s service) JoinRoom(ctx context.Context, params *JoinRoomParams) (JoinRoomResponse, error) {
	if err := validation.Validate(params.Username, UsernameRule...); err != nil {
		return JoinRoomResponse{}, fmt.Errorf("%w: username: %w", ErrInvalidIntent, err)
	}

	unlock := s.locks.lock(params.RoomID)
	defer unlock()

	if err := s.checkIfRoomExists(ctx, params.RoomID); err != nil {
		return JoinRoomResponse{}, err
	}

	count, err := s.roomRepo.GetMembersCount(ctx, params.RoomID)
	if err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to count members: %w", err)
	}

	if count >= s.membersLimit {
		return JoinRoomResponse{}, ErrMembersLimitReached
	}

	conns, err := s.getConns(ctx, params.RoomID, "")
	if err != nil {
		return JoinRoomResponse{}, err
	}

	memberID := uuid.NewString()
	now := s.now()
	if err := s.roomRepo.SetMember(ctx, &room.SetMemberParams{
		MemberID: memberID,
		Username: params.Username,
		JoinedAt: now.UnixMilli(),
		RoomID:   params.RoomID,
	}); err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to set member: %w", err)
	}

	state, err := s.getPlaybackState(ctx, params.RoomID)
	if err != nil {
		return JoinRoomResponse{}, err
	}

	hostID, err := s.roomRepo.GetHostID(ctx, params.RoomID)
	if err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to get host id: %w", err)
	}

	memberIDs, err := s.roomRepo.GetMemberIDs(ctx, params.RoomID)
	if err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to get member ids: %w", err)
	}

	s.logger.InfoContext(ctx, "member joined", "room_id", params.RoomID, "member_id", memberID)

	return JoinRoomResponse{
		MemberID: memberID,
		Username: params.Username,
		HostID:   hostID,
		Members:  memberIDs,
		Snapshot: domain.Snapshot{State: state, Timestamp: now},
		Conns:    conns,
	}, nil
}

type ConnectMemberParams struct {
	Conn     *connection.Conn
	MemberID string
}

func (s service) ConnectMember(ctx context.Context, params *ConnectMemberParams) error {
	if err := s.connRepo.Add(params.Conn, params.MemberID); err != nil {
		s.logger.InfoContext(ctx, "failed to connect member", "error", err)
		return err
	}

	return nil
}

type GetSnapshotParams struct {
	MemberID string
	RoomID   string
}

func (s service) GetSnapshot(ctx context.Context, params *GetSnapshotParams) (domain.Snapshot, error) {
	unlock := s.locks.lock(params.RoomID)
	defer unlock()

	in, err := s.roomRepo.IsMemberInRoom(ctx, params.RoomID, params.MemberID)
	if err != nil {
		return domain.Snapshot{}, err
	}

	if !in {
		return domain.Snapshot{}, ErrMemberNotFound
	}

	state, err := s.getPlaybackState(ctx, params.RoomID)
	if err != nil {
		return domain.Snapshot{}, err
	}

	return domain.Snapshot{State: state, Timestamp: s.now()}, nil
}

type DisconnectMemberParams struct {
	MemberID string
	RoomID   string
}

type DisconnectMemberResponse struct {
	// PromotedMemberID is set when the host left and a successor took over.
	PromotedMemberID string
	// Username of the member who left, empty when their record expired.
	Username string
	HostID   string
	Members          []string
	Conns            []*connection.Conn
	IsRoomDeleted    bool
}

// DisconnectMember removes the member. When the host leaves, a successor is
// picked by the configured policy. The canonical playback state is left as
// it is.
func (s service) DisconnectMember(ctx context.Context, params *DisconnectMemberParams) (DisconnectMemberResponse, error) {
	unlock := s.locks.lock(params.RoomID)
	defer unlock()

	if _, err := s.connRepo.RemoveByMemberID(params.MemberID); err != nil {
		s.logger.InfoContext(ctx, "failed to remove conn", "error", err)
	}

	var username string
	member, err := s.roomRepo.GetMember(ctx, params.MemberID)
	switch {
	case err == nil:
		username = member.Username
	case errors.Is(err, room.ErrMemberNotFound):
		s.logger.DebugContext(ctx, "member record missing", "member_id", params.MemberID)
	default:
		return DisconnectMemberResponse{}, fmt.Errorf("failed to get member: %w", err)
	}

	if err := s.roomRepo.RemoveMember(ctx, &room.RemoveMemberParams{
		MemberID: params.MemberID,
		RoomID:   params.RoomID,
	}); err != nil {
		if errors.Is(err, room.ErrMemberNotFound) {
			return DisconnectMemberResponse{}, ErrMemberNotFound
		}
		return DisconnectMemberResponse{}, fmt.Errorf("failed to remove member: %w", err)
	}

	memberIDs, err := s.roomRepo.GetMemberIDs(ctx, params.RoomID)
	if err != nil {
		return DisconnectMemberResponse{}, fmt.Errorf("failed to get member ids: %w", err)
	}

	if len(memberIDs) == 0 {
		if err := s.roomRepo.RemoveRoom(ctx, params.RoomID); err != nil {
			return DisconnectMemberResponse{}, fmt.Errorf("failed to remove room: %w", err)
		}

		s.logger.InfoContext(ctx, "room deleted", "room_id", params.RoomID)
		return DisconnectMemberResponse{IsRoomDeleted: true}, nil
	}

	hostID, err := s.roomRepo.GetHostID(ctx, params.RoomID)
	if err != nil {
		return DisconnectMemberResponse{}, fmt.Errorf("failed to get host id: %w", err)
	}

	var promotedID string
	if hostID == params.MemberID {
		promotedID = s.successorPolicy.pick(memberIDs)
		if err := s.roomRepo.SetHostID(ctx, params.RoomID, promotedID); err != nil {
			return DisconnectMemberResponse{}, fmt.Errorf("failed to set host id: %w", err)
		}

		hostID = promotedID
		s.logger.InfoContext(ctx, "host promoted", "room_id", params.RoomID, "host_id", promotedID, "policy", s.successorPolicy)
	}

	conns, err := s.getConns(ctx, params.RoomID, "")
	if err != nil {
		return DisconnectMemberResponse{}, err
	}

	return DisconnectMemberResponse{
		PromotedMemberID: promotedID,
		Username:         username,
		HostID:           hostID,
		Members:          memberIDs,
		Conns:            conns,
	}, nil
}
