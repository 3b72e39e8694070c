package room

import (
	"context"
	"fmt"

	"github.com/sharetube/syncstream/internal/repository/connection"
	"github.com/sharetube/syncstream/internal/repository/room"
)

type AddToQueueParams struct {
	VideoID  string
	SenderID string
	RoomID   string
}

type AddToQueueResponse struct {
	Queue []string
	Conns []*connection.Conn
}

func (s service) AddToQueue(ctx context.Context, params *AddToQueueParams) (AddToQueueResponse, error) {
	unlock := s.locks.lock(params.RoomID)
	defer unlock()

	if err := s.checkIfMemberHost(ctx, params.RoomID, params.SenderID); err != nil {
		return AddToQueueResponse{}, err
	}

	if err := params.Validate(); err != nil {
		return AddToQueueResponse{}, fmt.Errorf("%w: %w", ErrInvalidIntent, err)
	}

	length, err := s.roomRepo.GetQueueLength(ctx, params.RoomID)
	if err != nil {
		return AddToQueueResponse{}, fmt.Errorf("failed to get queue length: %w", err)
	}

	if length >= s.queueLimit {
		return AddToQueueResponse{}, ErrQueueLimitReached
	}

	if err := s.roomRepo.PushVideo(ctx, &room.PushVideoParams{
		VideoID: params.VideoID,
		RoomID:  params.RoomID,
	}); err != nil {
		return AddToQueueResponse{}, fmt.Errorf("failed to push video: %w", err)
	}

	queue, err := s.roomRepo.GetQueue(ctx, params.RoomID)
	if err != nil {
		return AddToQueueResponse{}, fmt.Errorf("failed to get queue: %w", err)
	}

	conns, err := s.getConns(ctx, params.RoomID, "")
	if err != nil {
		return AddToQueueResponse{}, err
	}

	return AddToQueueResponse{
		Queue: queue,
		Conns: conns,
	}, nil
}
