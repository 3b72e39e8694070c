package inmemory

import (
	"log/slog"
	"sync"

	"github.com/sharetube/syncstream/internal/repository/connection"
)

type repo struct {
	connList map[*connection.Conn]string
	idList   map[string]*connection.Conn
	mu       sync.RWMutex
	logger   *slog.Logger
}

func NewRepo(logger *slog.Logger) *repo {
	return &repo{
		connList: make(map[*connection.Conn]string),
		idList:   make(map[string]*connection.Conn),
		logger:   logger,
	}
}

func (r *repo) Add(conn *connection.Conn, memberID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Debug("add connection", "member_id", memberID)
	if _, ok := r.connList[conn]; ok {
		return connection.ErrAlreadyExists
	}
	if _, ok := r.idList[memberID]; ok {
		return connection.ErrAlreadyExists
	}

	r.connList[conn] = memberID
	r.idList[memberID] = conn

	return nil
}

// RemoveByMemberID forgets the member's connection and returns it. The
// connection is not closed.
func (r *repo) RemoveByMemberID(memberID string) (*connection.Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Debug("remove connection", "member_id", memberID)
	conn, ok := r.idList[memberID]
	if !ok {
		return nil, connection.ErrNotFound
	}

	delete(r.connList, conn)
	delete(r.idList, memberID)

	return conn, nil
}

func (r *repo) GetConn(memberID string) (*connection.Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.idList[memberID]
	if !ok {
		return nil, connection.ErrNotFound
	}

	return conn, nil
}
