package room

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/sharetube/syncstream/internal/domain"
	"github.com/sharetube/syncstream/internal/repository/connection"
	"github.com/sharetube/syncstream/internal/repository/connection/inmemory"
	roomRedis "github.com/sharetube/syncstream/internal/repository/room/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type testRoom struct {
	service *service
	clock   *clockwork.FakeClock
	redis   *miniredis.Miniredis
	roomID  string
	hostID  string
	conns   map[string]*connection.Conn
}

func newTestService(t *testing.T, cfg *Config) (*service, *clockwork.FakeClock, *miniredis.Miniredis) {
	t.Helper()

	s := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})
	t.Cleanup(func() { rc.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := clockwork.NewFakeClockAt(t0)
	if cfg == nil {
		cfg = &Config{MembersLimit: 9, QueueLimit: 25}
	}

	svc, err := NewService(roomRedis.NewRepo(rc, logger, time.Hour), inmemory.NewRepo(logger), clock, logger, cfg)
	require.NoError(t, err)

	return svc, clock, s
}

// newTestRoom creates a room and joins followers, all connected.
func newTestRoom(t *testing.T, followers int, cfg *Config) *testRoom {
	t.Helper()

	svc, clock, s := newTestService(t, cfg)
	ctx := context.Background()

	created, err := svc.CreateRoom(ctx, &CreateRoomParams{Username: "host"})
	require.NoError(t, err)

	tr := &testRoom{
		service: svc,
		clock:   clock,
		redis:   s,
		roomID:  created.RoomID,
		hostID:  created.MemberID,
		conns:   make(map[string]*connection.Conn),
	}
	tr.connect(t, created.MemberID)

	for i := 0; i < followers; i++ {
		tr.join(t)
	}

	return tr
}

func (tr *testRoom) connect(t *testing.T, memberID string) {
	t.Helper()

	conn := &connection.Conn{}
	require.NoError(t, tr.service.ConnectMember(context.Background(), &ConnectMemberParams{
		Conn:     conn,
		MemberID: memberID,
	}))
	tr.conns[memberID] = conn
}

func (tr *testRoom) join(t *testing.T) JoinRoomResponse {
	t.Helper()

	resp, err := tr.service.JoinRoom(context.Background(), &JoinRoomParams{Username: "follower", RoomID: tr.roomID})
	require.NoError(t, err)
	tr.connect(t, resp.MemberID)

	return resp
}

func (tr *testRoom) intent(kind domain.IntentKind, videoID string, position float64, senderID string) (HostIntentResponse, error) {
	return tr.service.HostIntent(context.Background(), &HostIntentParams{
		Kind:            kind,
		VideoID:         videoID,
		PositionSeconds: position,
		SenderID:        senderID,
		RoomID:          tr.roomID,
	})
}

func (tr *testRoom) state(t *testing.T) domain.PlaybackState {
	t.Helper()

	state, err := tr.service.getPlaybackState(context.Background(), tr.roomID)
	require.NoError(t, err)

	return state
}

func TestCreateRoom(t *testing.T) {
	tr := newTestRoom(t, 0, nil)

	assert.NotEmpty(t, tr.roomID)
	assert.NotEmpty(t, tr.hostID)
	assert.False(t, tr.state(t).HasVideo())
}

func TestJoinReturnsStampedSnapshot(t *testing.T) {
	tr := newTestRoom(t, 0, nil)

	_, err := tr.intent(domain.IntentLoad, "abc123", 0, tr.hostID)
	require.NoError(t, err)

	tr.clock.Advance(1200 * time.Millisecond)
	joined := tr.join(t)

	snap := joined.Snapshot
	assert.Equal(t, "abc123", snap.State.VideoID)
	assert.Equal(t, 0.0, snap.State.PositionSeconds)
	assert.False(t, snap.State.IsPlaying)
	assert.True(t, snap.State.AnchorTimestamp.Equal(t0))
	assert.True(t, snap.Timestamp.Equal(t0.Add(1200*time.Millisecond)))

	assert.Equal(t, tr.hostID, joined.HostID)
	assert.Equal(t, []string{tr.hostID, joined.MemberID}, joined.Members)
	assert.Len(t, joined.Conns, 1)
}

func TestJoinMissingRoom(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	_, err := svc.JoinRoom(context.Background(), &JoinRoomParams{Username: "x", RoomID: "missing"})
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestMembersLimit(t *testing.T) {
	tr := newTestRoom(t, 1, &Config{MembersLimit: 2, QueueLimit: 1})

	_, err := tr.service.JoinRoom(context.Background(), &JoinRoomParams{Username: "x", RoomID: tr.roomID})
	assert.ErrorIs(t, err, ErrMembersLimitReached)
}

func TestOnlyHostMutatesState(t *testing.T) {
	tr := newTestRoom(t, 1, nil)
	follower := tr.join(t).MemberID

	_, err := tr.intent(domain.IntentLoad, "abc123", 0, tr.hostID)
	require.NoError(t, err)
	before := tr.state(t)

	for _, kind := range []domain.IntentKind{domain.IntentLoad, domain.IntentPlay, domain.IntentPause} {
		_, err := tr.intent(kind, "zzz", 99, follower)
		assert.ErrorIs(t, err, ErrNotHost)
	}

	_, err = tr.service.Heartbeat(context.Background(), &HeartbeatParams{PositionSeconds: 50, SenderID: follower, RoomID: tr.roomID})
	assert.ErrorIs(t, err, ErrNotHost)
	_, err = tr.service.VideoEnded(context.Background(), &VideoEndedParams{SenderID: follower, RoomID: tr.roomID})
	assert.ErrorIs(t, err, ErrNotHost)
	_, err = tr.service.UpdateBackgroundPlay(context.Background(), &UpdateBackgroundPlayParams{Enabled: true, SenderID: follower, RoomID: tr.roomID})
	assert.ErrorIs(t, err, ErrNotHost)
	_, err = tr.service.AddToQueue(context.Background(), &AddToQueueParams{VideoID: "v", SenderID: follower, RoomID: tr.roomID})
	assert.ErrorIs(t, err, ErrNotHost)

	assert.Equal(t, before, tr.state(t))
}

func TestHostIntentIsStampedAndRelayedToOthers(t *testing.T) {
	tr := newTestRoom(t, 2, nil)

	_, err := tr.intent(domain.IntentLoad, "abc123", 0, tr.hostID)
	require.NoError(t, err)

	tr.clock.Advance(10 * time.Second)
	resp, err := tr.intent(domain.IntentPlay, "", 30, tr.hostID)
	require.NoError(t, err)

	assert.Equal(t, domain.IntentPlay, resp.Intent.Kind)
	assert.Equal(t, "abc123", resp.Intent.VideoID)
	assert.Equal(t, 30.0, resp.Intent.PositionSeconds)
	assert.True(t, resp.Intent.Timestamp.Equal(t0.Add(10*time.Second)))
	assert.True(t, resp.IsPlaying)
	assert.Len(t, resp.Conns, 2)
	for _, conn := range resp.Conns {
		assert.NotSame(t, tr.conns[tr.hostID], conn)
	}

	state := tr.state(t)
	assert.True(t, state.IsPlaying)
	assert.Equal(t, 30.0, state.PositionSeconds)
	assert.True(t, state.AnchorTimestamp.Equal(resp.Intent.Timestamp))

	resp, err = tr.intent(domain.IntentPause, "", 31.5, tr.hostID)
	require.NoError(t, err)
	assert.False(t, resp.IsPlaying)
	assert.False(t, tr.state(t).IsPlaying)
}

func TestLoadResetsPlayState(t *testing.T) {
	tr := newTestRoom(t, 0, nil)

	_, err := tr.intent(domain.IntentLoad, "abc123", 0, tr.hostID)
	require.NoError(t, err)
	_, err = tr.intent(domain.IntentPlay, "", 5, tr.hostID)
	require.NoError(t, err)

	resp, err := tr.intent(domain.IntentLoad, "next_video", 0, tr.hostID)
	require.NoError(t, err)
	assert.False(t, resp.IsPlaying)

	state := tr.state(t)
	assert.Equal(t, "next_video", state.VideoID)
	assert.False(t, state.IsPlaying)
}

func TestInvalidIntentsAreRejected(t *testing.T) {
	tr := newTestRoom(t, 0, nil)
	_, err := tr.intent(domain.IntentLoad, "abc123", 0, tr.hostID)
	require.NoError(t, err)
	before := tr.state(t)

	cases := []struct {
		name     string
		kind     domain.IntentKind
		videoID  string
		position float64
	}{
		{"negative position", domain.IntentPlay, "", -1},
		{"nan position", domain.IntentPause, "", math.NaN()},
		{"infinite position", domain.IntentPlay, "", math.Inf(1)},
		{"empty video id", domain.IntentLoad, "", 0},
		{"bad video id", domain.IntentLoad, "a b/c", 0},
		{"long video id", domain.IntentLoad, string(make([]byte, 65)), 0},
		{"ended", domain.IntentEnded, "", 0},
		{"unknown kind", domain.IntentKind("rewind"), "", 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tr.intent(tc.kind, tc.videoID, tc.position, tr.hostID)
			assert.ErrorIs(t, err, ErrInvalidIntent)
		})
	}

	assert.Equal(t, before, tr.state(t))
}

func TestPlayWithoutVideo(t *testing.T) {
	tr := newTestRoom(t, 0, nil)

	_, err := tr.intent(domain.IntentPlay, "", 0, tr.hostID)
	assert.ErrorIs(t, err, ErrNoVideoLoaded)

	_, err = tr.service.Heartbeat(context.Background(), &HeartbeatParams{PositionSeconds: 1, SenderID: tr.hostID, RoomID: tr.roomID})
	assert.ErrorIs(t, err, ErrNoVideoLoaded)
}

func TestReplayedIntentIsIdempotent(t *testing.T) {
	tr := newTestRoom(t, 0, nil)
	_, err := tr.intent(domain.IntentLoad, "abc123", 0, tr.hostID)
	require.NoError(t, err)

	_, err = tr.intent(domain.IntentPlay, "", 12, tr.hostID)
	require.NoError(t, err)
	once := tr.state(t)

	_, err = tr.intent(domain.IntentPlay, "", 12, tr.hostID)
	require.NoError(t, err)
	assert.Equal(t, once, tr.state(t))
}

func TestHeartbeatReanchorsPosition(t *testing.T) {
	tr := newTestRoom(t, 1, nil)
	_, err := tr.intent(domain.IntentLoad, "abc123", 0, tr.hostID)
	require.NoError(t, err)
	_, err = tr.intent(domain.IntentPlay, "", 0, tr.hostID)
	require.NoError(t, err)

	tr.clock.Advance(5 * time.Second)
	resp, err := tr.service.Heartbeat(context.Background(), &HeartbeatParams{PositionSeconds: 5.1, SenderID: tr.hostID, RoomID: tr.roomID})
	require.NoError(t, err)

	assert.Equal(t, 5.1, resp.Snapshot.State.PositionSeconds)
	assert.True(t, resp.Snapshot.State.IsPlaying)
	assert.True(t, resp.Snapshot.Timestamp.Equal(t0.Add(5*time.Second)))
	assert.Len(t, resp.Conns, 1)

	state := tr.state(t)
	assert.Equal(t, 5.1, state.PositionSeconds)
	assert.True(t, state.IsPlaying)
}

func TestFailoverKeepsPlayback(t *testing.T) {
	tr := newTestRoom(t, 0, nil)
	first := tr.join(t).MemberID
	second := tr.join(t).MemberID

	_, err := tr.intent(domain.IntentLoad, "abc123", 0, tr.hostID)
	require.NoError(t, err)
	_, err = tr.intent(domain.IntentPlay, "", 42, tr.hostID)
	require.NoError(t, err)
	before := tr.state(t)

	resp, err := tr.service.DisconnectMember(context.Background(), &DisconnectMemberParams{MemberID: tr.hostID, RoomID: tr.roomID})
	require.NoError(t, err)

	assert.Equal(t, first, resp.PromotedMemberID)
	assert.Equal(t, first, resp.HostID)
	assert.Equal(t, []string{first, second}, resp.Members)
	assert.Len(t, resp.Conns, 2)
	assert.False(t, resp.IsRoomDeleted)

	assert.Equal(t, before, tr.state(t))

	_, err = tr.intent(domain.IntentPause, "", 43, tr.hostID)
	assert.ErrorIs(t, err, ErrNotHost)

	_, err = tr.intent(domain.IntentPause, "", 43, first)
	require.NoError(t, err)
	assert.False(t, tr.state(t).IsPlaying)
}

func TestFollowerLeavingKeepsHost(t *testing.T) {
	tr := newTestRoom(t, 0, nil)
	follower := tr.join(t).MemberID

	resp, err := tr.service.DisconnectMember(context.Background(), &DisconnectMemberParams{MemberID: follower, RoomID: tr.roomID})
	require.NoError(t, err)

	assert.Empty(t, resp.PromotedMemberID)
	assert.Equal(t, "follower", resp.Username)
	assert.Equal(t, tr.hostID, resp.HostID)
	assert.Equal(t, []string{tr.hostID}, resp.Members)
}

func TestMostRecentSuccessorPolicy(t *testing.T) {
	tr := newTestRoom(t, 0, &Config{MembersLimit: 9, QueueLimit: 25, SuccessorPolicy: SuccessorMostRecent})
	tr.join(t)
	last := tr.join(t).MemberID

	resp, err := tr.service.DisconnectMember(context.Background(), &DisconnectMemberParams{MemberID: tr.hostID, RoomID: tr.roomID})
	require.NoError(t, err)
	assert.Equal(t, last, resp.PromotedMemberID)
}

func TestUnknownSuccessorPolicy(t *testing.T) {
	_, err := NewService(nil, nil, clockwork.NewFakeClock(), slog.Default(), &Config{MembersLimit: 1, QueueLimit: 1, SuccessorPolicy: "random"})
	assert.Error(t, err)
}

func TestRoomDeletedWhenEmpty(t *testing.T) {
	tr := newTestRoom(t, 0, nil)

	resp, err := tr.service.DisconnectMember(context.Background(), &DisconnectMemberParams{MemberID: tr.hostID, RoomID: tr.roomID})
	require.NoError(t, err)
	assert.True(t, resp.IsRoomDeleted)

	assert.False(t, tr.redis.Exists("room:"+tr.roomID))
	assert.False(t, tr.redis.Exists("room:"+tr.roomID+":playback"))

	_, err = tr.service.JoinRoom(context.Background(), &JoinRoomParams{Username: "late", RoomID: tr.roomID})
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestVideoEndedPlaysNextFromQueue(t *testing.T) {
	tr := newTestRoom(t, 1, nil)
	ctx := context.Background()

	_, err := tr.intent(domain.IntentLoad, "first", 0, tr.hostID)
	require.NoError(t, err)

	for _, id := range []string{"second", "third"} {
		resp, err := tr.service.AddToQueue(ctx, &AddToQueueParams{VideoID: id, SenderID: tr.hostID, RoomID: tr.roomID})
		require.NoError(t, err)
		assert.Len(t, resp.Conns, 2)
	}

	tr.clock.Advance(time.Minute)
	resp, err := tr.service.VideoEnded(ctx, &VideoEndedParams{SenderID: tr.hostID, RoomID: tr.roomID})
	require.NoError(t, err)

	require.NotNil(t, resp.Intent)
	assert.Equal(t, domain.IntentLoad, resp.Intent.Kind)
	assert.Equal(t, "second", resp.Intent.VideoID)
	assert.True(t, resp.Snapshot.State.IsPlaying)
	assert.Equal(t, 0.0, resp.Snapshot.State.PositionSeconds)
	assert.Equal(t, []string{"third"}, resp.Queue)
	// The host is told too.
	assert.Len(t, resp.Conns, 2)

	state := tr.state(t)
	assert.Equal(t, "second", state.VideoID)
	assert.True(t, state.IsPlaying)
}

func TestVideoEndedWithEmptyQueueClearsState(t *testing.T) {
	tr := newTestRoom(t, 1, nil)
	ctx := context.Background()

	_, err := tr.intent(domain.IntentLoad, "first", 0, tr.hostID)
	require.NoError(t, err)
	_, err = tr.service.UpdateBackgroundPlay(ctx, &UpdateBackgroundPlayParams{Enabled: true, SenderID: tr.hostID, RoomID: tr.roomID})
	require.NoError(t, err)

	resp, err := tr.service.VideoEnded(ctx, &VideoEndedParams{SenderID: tr.hostID, RoomID: tr.roomID})
	require.NoError(t, err)

	assert.Nil(t, resp.Intent)
	assert.False(t, resp.Snapshot.State.HasVideo())
	assert.True(t, resp.Snapshot.State.BackgroundPlayEnabled)
	assert.Empty(t, resp.Queue)
	assert.False(t, tr.state(t).HasVideo())
}

func TestQueueLimit(t *testing.T) {
	tr := newTestRoom(t, 0, &Config{MembersLimit: 9, QueueLimit: 1})
	ctx := context.Background()

	_, err := tr.service.AddToQueue(ctx, &AddToQueueParams{VideoID: "v1", SenderID: tr.hostID, RoomID: tr.roomID})
	require.NoError(t, err)

	_, err = tr.service.AddToQueue(ctx, &AddToQueueParams{VideoID: "v2", SenderID: tr.hostID, RoomID: tr.roomID})
	assert.ErrorIs(t, err, ErrQueueLimitReached)

	_, err = tr.service.AddToQueue(ctx, &AddToQueueParams{VideoID: "bad id", SenderID: tr.hostID, RoomID: tr.roomID})
	assert.ErrorIs(t, err, ErrInvalidIntent)
}

func TestBackgroundPlayIsCarriedInSnapshots(t *testing.T) {
	tr := newTestRoom(t, 1, nil)
	ctx := context.Background()

	resp, err := tr.service.UpdateBackgroundPlay(ctx, &UpdateBackgroundPlayParams{Enabled: true, SenderID: tr.hostID, RoomID: tr.roomID})
	require.NoError(t, err)
	assert.True(t, resp.Enabled)
	assert.Len(t, resp.Conns, 2)

	_, err = tr.intent(domain.IntentLoad, "abc123", 0, tr.hostID)
	require.NoError(t, err)

	snap, err := tr.service.GetSnapshot(ctx, &GetSnapshotParams{MemberID: tr.hostID, RoomID: tr.roomID})
	require.NoError(t, err)
	assert.True(t, snap.State.BackgroundPlayEnabled)
	assert.Equal(t, "abc123", snap.State.VideoID)
}

func TestGetSnapshotRequiresMembership(t *testing.T) {
	tr := newTestRoom(t, 0, nil)

	_, err := tr.service.GetSnapshot(context.Background(), &GetSnapshotParams{MemberID: "stranger", RoomID: tr.roomID})
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestConcurrentIntentsAreSerialized(t *testing.T) {
	tr := newTestRoom(t, 0, nil)
	_, err := tr.intent(domain.IntentLoad, "abc123", 0, tr.hostID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(pos float64) {
			defer wg.Done()
			kind := domain.IntentPlay
			if int(pos)%2 == 0 {
				kind = domain.IntentPause
			}
			_, err := tr.intent(kind, "", pos, tr.hostID)
			assert.NoError(t, err)
		}(float64(i))
	}
	wg.Wait()

	state := tr.state(t)
	// Whatever won, position and play state come from the same intent.
	assert.Equal(t, int(state.PositionSeconds)%2 != 0, state.IsPlaying)
}
