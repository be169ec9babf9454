package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/version", s.handleVersion)

	// Root banner
	s.echo.GET("/", s.handleRoot)

	// Live-update subscriptions
	s.echo.GET("/api/messages/stream", s.handleStream)
	s.echo.GET("/ws/messages", s.handleWebSocket)

	// Carrier webhook (inbound messages from Twilio)
	s.echo.POST("/whatsapp/webhook", s.handleWebhook)

	// Outbound send, rate limited per client IP
	s.echo.POST("/api/send-message", s.handleSendMessage, newRateLimiter(5, 10))

	// Message history
	s.echo.GET("/api/messages", s.handleListMessages)
	s.echo.GET("/api/conversations", s.handleListConversations)
	s.echo.GET("/api/conversations/:phone/messages", s.handleConversationMessages)
}
