package controller

import (
	"context"
	"errors"

	"github.com/sharetube/syncstream/internal/protocol"
	"github.com/sharetube/syncstream/internal/repository/connection"
)

func (c controller) writeToConn(ctx context.Context, conn *connection.Conn, output *protocol.Output) error {
	if err := conn.WriteJSON(output); err != nil {
		c.logger.InfoContext(ctx, "failed to write to conn", "type", output.Type, "error", err)
		return err
	}

	return nil
}

// broadcast writes output to every conn. A failing conn does not stop the
// others; its reader will notice the broken socket and disconnect it.
func (c controller) broadcast(ctx context.Context, conns []*connection.Conn, output *protocol.Output) error {
	var errs []error
	for _, conn := range conns {
		if err := c.writeToConn(ctx, conn, output); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
