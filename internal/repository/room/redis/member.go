package redis

import (
	"context"
	"fmt"

	"github.com/sharetube/syncstream/internal/repository/room"
)

func (r repo) getMemberKey(memberID string) string {
	return "member:" + memberID
}

func (r repo) getMemberListKey(roomID string) string {
	return "room:" + roomID + ":memberlist"
}

// SetMember stores the member and appends them to the room's member list.
// The list is ordered by join sequence.
func (r repo) SetMember(ctx context.Context, params *room.SetMemberParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	pipe := r.rc.TxPipeline()

	memberKey := r.getMemberKey(params.MemberID)
	pipe.HSet(ctx, memberKey, room.Member{
		Username: params.Username,
		JoinedAt: params.JoinedAt,
	})
	pipe.Expire(ctx, memberKey, r.expireDuration)

	if err := r.executePipe(ctx, pipe); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return fmt.Errorf("failed to set member: %w", err)
	}

	memberListKey := r.getMemberListKey(params.RoomID)
	if err := r.addWithIncrement(ctx, memberListKey, params.MemberID); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return fmt.Errorf("failed to add member to list: %w", err)
	}

	if err := r.rc.Expire(ctx, memberListKey, r.expireDuration).Err(); err != nil {
		return fmt.Errorf("failed to expire member list: %w", err)
	}

	return nil
}

func (r repo) RemoveMember(ctx context.Context, params *room.RemoveMemberParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	pipe := r.rc.TxPipeline()
	zrem := pipe.ZRem(ctx, r.getMemberListKey(params.RoomID), params.MemberID)
	pipe.Del(ctx, r.getMemberKey(params.MemberID))

	if err := r.executePipe(ctx, pipe); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return fmt.Errorf("failed to remove member: %w", err)
	}

	if zrem.Val() == 0 {
		return room.ErrMemberNotFound
	}

	return nil
}

func (r repo) GetMember(ctx context.Context, memberID string) (room.Member, error) {
	var member room.Member
	cmd := r.rc.HGetAll(ctx, r.getMemberKey(memberID))
	if err := cmd.Err(); err != nil {
		return room.Member{}, fmt.Errorf("failed to get member: %w", err)
	}

	if len(cmd.Val()) == 0 {
		return room.Member{}, room.ErrMemberNotFound
	}

	if err := cmd.Scan(&member); err != nil {
		return room.Member{}, fmt.Errorf("failed to scan member: %w", err)
	}

	return member, nil
}

// GetMemberIDs returns the room's members, longest connected first.
func (r repo) GetMemberIDs(ctx context.Context, roomID string) ([]string, error) {
	memberIDs, err := r.rc.ZRange(ctx, r.getMemberListKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get member ids: %w", err)
	}

	return memberIDs, nil
}

func (r repo) IsMemberInRoom(ctx context.Context, roomID, memberID string) (bool, error) {
	_, err := r.rc.ZScore(ctx, r.getMemberListKey(roomID), memberID).Result()
	if err != nil {
		if isNil(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check member: %w", err)
	}

	return true, nil
}

func (r repo) GetMembersCount(ctx context.Context, roomID string) (int, error) {
	count, err := r.rc.ZCard(ctx, r.getMemberListKey(roomID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count members: %w", err)
	}

	return int(count), nil
}
