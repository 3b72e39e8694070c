package room

type Room struct {
	HostID    string `redis:"host_id"`
	CreatedAt int64  `redis:"created_at"`
}

type SetRoomParams struct {
	RoomID    string
	HostID    string
	CreatedAt int64
}
