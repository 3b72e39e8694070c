package room

type Member struct {
	Username string `redis:"username"`
	JoinedAt int64  `redis:"joined_at"`
}

type SetMemberParams struct {
	MemberID string
	Username string
	JoinedAt int64
	RoomID   string
}

type RemoveMemberParams struct {
	MemberID string
	RoomID   string
}
