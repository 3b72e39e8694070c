package room

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const lockStripes = 64

// roomLocks serializes work per room. Rooms hash onto a fixed set of mutexes,
// so two rooms may share a stripe but one room always maps to the same one.
type roomLocks struct {
	stripes [lockStripes]sync.Mutex
}

func newRoomLocks() *roomLocks {
	return &roomLocks{}
}

func (l *roomLocks) lock(roomID string) func() {
	mu := &l.stripes[xxhash.Sum64String(roomID)%lockStripes]
	mu.Lock()

	return mu.Unlock
}
