package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ScooterAI2025/scooter-whatsapp/internal/domain"
	"github.com/ScooterAI2025/scooter-whatsapp/internal/logging"
)

func (s *Server) handleRoot(c echo.Context) error {
	return c.String(http.StatusOK, "Twilio WhatsApp webhook is running")
}

// handleWebhook receives inbound message deliveries from Twilio
// (x-www-form-urlencoded). The webhook is always acknowledged with 200;
// persistence failures never propagate back to the carrier.
func (s *Server) handleWebhook(c echo.Context) error {
	in := domain.InboundMessage{
		From:       c.FormValue("From"),
		To:         c.FormValue("To"),
		Body:       c.FormValue("Body"),
		MessageSid: c.FormValue("MessageSid"),
	}

	if in.From == "" || in.To == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Missing From or To"})
	}

	s.app.HandleInbound(c.Request().Context(), in)

	return c.JSON(http.StatusOK, map[string]string{"message": "Message received successfully"})
}

type sendMessageRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

func (s *Server) handleSendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if strings.TrimSpace(req.To) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "to is required"})
	}
	if strings.TrimSpace(req.Body) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "body is required"})
	}

	sid, err := s.app.SendMessage(c.Request().Context(), req.To, req.Body)
	if err != nil {
		slog.Error("Failed to send outbound message", "to", req.To, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to send"})
	}

	return c.JSON(http.StatusOK, map[string]any{"success": true, "sid": sid})
}

func (s *Server) handleListMessages(c echo.Context) error {
	messages, err := s.app.ListMessages(c.Request().Context())
	if err != nil {
		slog.Error("Failed to list messages", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB error"})
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return c.JSON(http.StatusOK, messages)
}

func (s *Server) handleConversationMessages(c echo.Context) error {
	phone := c.Param("phone")
	if unescaped, err := url.PathUnescape(phone); err == nil {
		phone = unescaped
	}

	messages, err := s.app.ListConversationMessages(c.Request().Context(), phone)
	if err != nil {
		logging.WithPhone(phone).Error("Failed to list conversation messages", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB error"})
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return c.JSON(http.StatusOK, messages)
}

func (s *Server) handleListConversations(c echo.Context) error {
	conversations, err := s.app.ListConversations(c.Request().Context())
	if err != nil {
		slog.Error("Failed to list conversations", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "DB error"})
	}
	if conversations == nil {
		conversations = []domain.Conversation{}
	}
	return c.JSON(http.StatusOK, conversations)
}
