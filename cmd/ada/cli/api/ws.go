package api

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/adaharness/ada/cmd/ada/cli/logging"
)

// pingInterval keeps intermediaries from closing idle connections.
const pingInterval = 30 * time.Second

// writeTimeout bounds each frame write; a client that cannot keep up is
// dropped rather than allowed to stall the writer.
const writeTimeout = 5 * time.Second

// handleWS upgrades to WebSocket and streams bus events as JSON envelopes.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		logging.Warn(r.Context(), "websocket accept failed", "error", err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "server error") //nolint:errcheck

	sub := s.opts.Bus.Subscribe()
	if sub == nil {
		_ = c.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	defer sub.Cancel()

	ctx := r.Context()
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				_ = c.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c, ev)
			cancel()
			if err != nil {
				return
			}
		case <-ping.C:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Ping(wctx)
			cancel()
			if err != nil {
				return
			}
		case <-ctx.Done():
			_ = c.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}
