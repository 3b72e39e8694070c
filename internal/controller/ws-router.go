package controller

import (
	"github.com/sharetube/syncstream/internal/protocol"
	"github.com/sharetube/syncstream/pkg/wsrouter"
)

func (c controller) getWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New()
	mux.Use(c.wsRequestIdWSMw(), c.loggerWSMw())
	mux.SetErrorHandler(c.handleWSError)

	wsrouter.Handle(mux, protocol.TypeAlive, c.handleAlive)
	wsrouter.Handle(mux, protocol.TypeGetState, c.handleGetState)

	// playback
	wsrouter.Handle(mux, protocol.TypeLoadVideo, c.handleLoadVideo)
	wsrouter.Handle(mux, protocol.TypePlay, c.handlePlay)
	wsrouter.Handle(mux, protocol.TypePause, c.handlePause)
	wsrouter.Handle(mux, protocol.TypeHeartbeat, c.handleHeartbeat)
	wsrouter.Handle(mux, protocol.TypeVideoEnded, c.handleVideoEnded)
	wsrouter.Handle(mux, protocol.TypeUpdateBackgroundPlay, c.handleUpdateBackgroundPlay)

	// queue
	wsrouter.Handle(mux, protocol.TypeAddToQueue, c.handleAddToQueue)

	return mux
}
