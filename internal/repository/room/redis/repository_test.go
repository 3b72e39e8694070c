package redis

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sharetube/syncstream/internal/repository/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) (*repo, *miniredis.Miniredis) {
	t.Helper()

	s := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})
	t.Cleanup(func() { rc.Close() })

	return NewRepo(rc, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Hour), s
}

func TestRoomAndHost(t *testing.T) {
	r, s := newTestRepo(t)
	ctx := context.Background()

	_, err := r.GetRoom(ctx, "r1")
	require.ErrorIs(t, err, room.ErrRoomNotFound)

	require.NoError(t, r.SetRoom(ctx, &room.SetRoomParams{RoomID: "r1", HostID: "m1", CreatedAt: 42}))

	exists, err := r.IsRoomExists(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, exists)

	hostID, err := r.GetHostID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "m1", hostID)

	require.NoError(t, r.SetHostID(ctx, "r1", "m2"))
	hostID, err = r.GetHostID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "m2", hostID)

	assert.ErrorIs(t, r.SetHostID(ctx, "missing", "m1"), room.ErrRoomNotFound)
	assert.Equal(t, time.Hour, s.TTL("room:r1"))
}

func TestMembersAreOrderedByJoin(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, r.SetMember(ctx, &room.SetMemberParams{MemberID: id, Username: "user-" + id, RoomID: "r1"}))
	}

	ids, err := r.GetMemberIDs(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, ids)

	count, err := r.GetMembersCount(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	member, err := r.GetMember(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "user-a", member.Username)

	require.NoError(t, r.RemoveMember(ctx, &room.RemoveMemberParams{MemberID: "c", RoomID: "r1"}))
	assert.ErrorIs(t, r.RemoveMember(ctx, &room.RemoveMemberParams{MemberID: "c", RoomID: "r1"}), room.ErrMemberNotFound)

	_, err = r.GetMember(ctx, "c")
	assert.ErrorIs(t, err, room.ErrMemberNotFound)

	in, err := r.IsMemberInRoom(ctx, "r1", "c")
	require.NoError(t, err)
	assert.False(t, in)

	// A rejoin goes to the back of the list.
	require.NoError(t, r.SetMember(ctx, &room.SetMemberParams{MemberID: "c", Username: "user-c", RoomID: "r1"}))
	ids, err = r.GetMemberIDs(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestPlaybackRoundTrip(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	_, err := r.GetPlayback(ctx, "r1")
	require.ErrorIs(t, err, room.ErrPlaybackNotFound)

	pb := room.Playback{
		VideoID:         "abc123",
		PositionSeconds: 12.75,
		AnchorMillis:    1_700_000_000_123,
		IsPlaying:       true,
		BackgroundPlay:  true,
	}
	require.NoError(t, r.SetPlayback(ctx, &room.SetPlaybackParams{Playback: pb, RoomID: "r1"}))

	got, err := r.GetPlayback(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, pb, got)

	pb.VideoID = ""
	pb.IsPlaying = false
	require.NoError(t, r.SetPlayback(ctx, &room.SetPlaybackParams{Playback: pb, RoomID: "r1"}))
	got, err = r.GetPlayback(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, pb, got)
}

func TestQueue(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	_, err := r.PopVideo(ctx, "r1")
	require.ErrorIs(t, err, room.ErrQueueEmpty)

	require.NoError(t, r.PushVideo(ctx, &room.PushVideoParams{VideoID: "v1", RoomID: "r1"}))
	require.NoError(t, r.PushVideo(ctx, &room.PushVideoParams{VideoID: "v2", RoomID: "r1"}))

	length, err := r.GetQueueLength(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 2, length)

	next, err := r.PopVideo(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "v1", next)

	queue, err := r.GetQueue(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, queue)
}

func TestRemoveRoom(t *testing.T) {
	r, s := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.SetRoom(ctx, &room.SetRoomParams{RoomID: "r1", HostID: "m1"}))
	require.NoError(t, r.SetMember(ctx, &room.SetMemberParams{MemberID: "m1", RoomID: "r1"}))
	require.NoError(t, r.SetPlayback(ctx, &room.SetPlaybackParams{RoomID: "r1"}))
	require.NoError(t, r.PushVideo(ctx, &room.PushVideoParams{VideoID: "v1", RoomID: "r1"}))

	require.NoError(t, r.RemoveRoom(ctx, "r1"))
	assert.False(t, s.Exists("room:r1"))
	assert.False(t, s.Exists("room:r1:memberlist"))
	assert.False(t, s.Exists("room:r1:playback"))
	assert.False(t, s.Exists("room:r1:queue"))

	assert.ErrorIs(t, r.RemoveRoom(ctx, "r1"), room.ErrRoomNotFound)
}

func TestPlaybackWriteKeepsRoomAlive(t *testing.T) {
	r, s := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.SetRoom(ctx, &room.SetRoomParams{RoomID: "r1", HostID: "m1"}))
	require.NoError(t, r.SetMember(ctx, &room.SetMemberParams{MemberID: "m1", RoomID: "r1"}))
	require.NoError(t, r.PushVideo(ctx, &room.PushVideoParams{VideoID: "v1", RoomID: "r1"}))

	s.FastForward(50 * time.Minute)
	require.NoError(t, r.SetPlayback(ctx, &room.SetPlaybackParams{RoomID: "r1"}))
	s.FastForward(50 * time.Minute)

	hostID, err := r.GetHostID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "m1", hostID)

	ids, err := r.GetMemberIDs(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, ids)

	queue, err := r.GetQueue(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, queue)
}
