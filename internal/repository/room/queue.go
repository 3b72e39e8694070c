package room

type PushVideoParams struct {
	VideoID string
	RoomID  string
}
