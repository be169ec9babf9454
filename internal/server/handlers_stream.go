package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/ScooterAI2025/scooter-whatsapp/internal/domain"
	"github.com/ScooterAI2025/scooter-whatsapp/internal/logging"
	"github.com/ScooterAI2025/scooter-whatsapp/internal/stream"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboard may be served from a different origin
	},
}

// handleStream serves the SSE live-update subscription. The response stays
// open until the client disconnects or the broadcaster evicts the connection.
func (s *Server) handleStream(c echo.Context) error {
	clientID := stream.NewClientID()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache, no-transform")
	res.Header().Set("Connection", "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)

	transport, err := stream.NewSSETransport(res, s.clock)
	if err != nil {
		slog.Error("SSE not supported by response writer", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming unsupported")
	}

	// First frame announces the connection before it joins the registry.
	connected, err := json.Marshal(domain.ConnectedEvent(clientID))
	if err != nil {
		return err
	}
	if err := transport.WriteEvent(connected); err != nil {
		return nil
	}

	stopped, err := s.broadcaster.Register(clientID, transport)
	if err != nil {
		logging.WithClient(clientID).Warn("Failed to register stream client", "error", err)
		_ = transport.Close()
		return nil
	}

	// Park until the peer goes away or the broadcaster closes the transport.
	select {
	case <-c.Request().Context().Done():
	case <-transport.Done():
	}

	s.broadcaster.Unregister(clientID)

	// The response writer is recycled the moment this handler returns, so
	// wait for the connection's writer goroutine to fully stop first.
	<-stopped
	return nil
}

// handleWebSocket serves the WebSocket flavour of the live-update
// subscription. Same event frames as SSE; heartbeats are ping frames.
func (s *Server) handleWebSocket(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Warn("Failed to upgrade WebSocket", "error", err)
		return nil
	}

	clientID := stream.NewClientID()
	transport := stream.NewWSTransport(conn, s.clock)

	connected, err := json.Marshal(domain.ConnectedEvent(clientID))
	if err != nil {
		_ = transport.Close()
		return err
	}
	if err := transport.WriteEvent(connected); err != nil {
		_ = transport.Close()
		return nil
	}

	stopped, err := s.broadcaster.Register(clientID, transport)
	if err != nil {
		logging.WithClient(clientID).Warn("Failed to register stream client", "error", err)
		_ = transport.Close()
		return nil
	}

	// Read pump: blocks until the peer closes or the read deadline expires.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.broadcaster.Unregister(clientID)
	<-stopped
	return nil
}
