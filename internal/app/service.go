package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ScooterAI2025/scooter-whatsapp/internal/domain"
	"github.com/ScooterAI2025/scooter-whatsapp/internal/metrics"
)

const autoReplyTimeout = 15 * time.Second

// EventBroadcaster pushes one event to all live connections.
type EventBroadcaster interface {
	Broadcast(event domain.StreamEvent)
}

// Service is the message ingestion pipeline: it turns carrier events into
// persisted rows and, only after a successful persist, broadcast events.
type Service struct {
	messages    domain.MessageRepository
	delivery    domain.DeliveryService
	broadcaster EventBroadcaster
	fromNumber  string
	autoReply   string
}

// NewService wires the pipeline. fromNumber is the system's own WhatsApp
// number; the "whatsapp:" channel prefix is added if missing.
func NewService(messages domain.MessageRepository, delivery domain.DeliveryService, broadcaster EventBroadcaster, fromNumber, autoReply string) *Service {
	if !strings.HasPrefix(fromNumber, "whatsapp:") {
		fromNumber = "whatsapp:" + fromNumber
	}
	return &Service{
		messages:    messages,
		delivery:    delivery,
		broadcaster: broadcaster,
		fromNumber:  fromNumber,
		autoReply:   autoReply,
	}
}

// HandleInbound processes one carrier webhook delivery: persist, broadcast,
// then trigger the auto-reply. A persist failure is logged and swallowed:
// the carrier webhook is acknowledged regardless, and the auto-reply is
// still attempted.
func (s *Service) HandleInbound(ctx context.Context, in domain.InboundMessage) {
	var sid *string
	if in.MessageSid != "" {
		sid = &in.MessageSid
	}

	msg, err := s.messages.Insert(ctx, in.From, in.To, in.Body, domain.DirectionInbound, sid)
	if err != nil {
		metrics.MessagePersistFailures.WithLabelValues(domain.DirectionInbound).Inc()
		slog.Error("Failed to persist inbound message", "from", in.From, "error", err)
	} else {
		metrics.MessagesStoredTotal.WithLabelValues(domain.DirectionInbound).Inc()
		s.broadcaster.Broadcast(domain.NewMessageEvent(msg))
	}

	// Auto-reply runs in its own failure domain: never awaited by the
	// webhook response, never retried, result only logged.
	go s.sendAutoReply(in.To, in.From)
}

func (s *Service) sendAutoReply(from, to string) {
	ctx, cancel := context.WithTimeout(context.Background(), autoReplyTimeout)
	defer cancel()

	sid, err := s.delivery.Send(ctx, from, to, s.autoReply)
	if err != nil {
		metrics.DeliveryDispatchTotal.WithLabelValues("auto_reply", "error").Inc()
		slog.Error("Auto-reply dispatch failed", "to", to, "error", err)
		return
	}
	metrics.DeliveryDispatchTotal.WithLabelValues("auto_reply", "ok").Inc()
	slog.Info("Auto-reply sent", "to", to, "sid", sid)
}

// SendMessage dispatches an outbound message through the carrier, then
// persists and broadcasts it. Dispatch failure is surfaced to the caller and
// nothing is persisted or broadcast. Once dispatch succeeds the send is
// reported successful even if the subsequent persist fails: the message has
// already left the system.
func (s *Service) SendMessage(ctx context.Context, to, body string) (string, error) {
	sid, err := s.delivery.Send(ctx, s.fromNumber, to, body)
	if err != nil {
		metrics.DeliveryDispatchTotal.WithLabelValues("send", "error").Inc()
		return "", fmt.Errorf("%w: %v", domain.ErrDispatchFailed, err)
	}
	metrics.DeliveryDispatchTotal.WithLabelValues("send", "ok").Inc()

	msg, err := s.messages.Insert(ctx, s.fromNumber, to, body, domain.DirectionOutbound, &sid)
	if err != nil {
		metrics.MessagePersistFailures.WithLabelValues(domain.DirectionOutbound).Inc()
		slog.Error("Failed to persist outbound message after dispatch", "to", to, "sid", sid, "error", err)
		return sid, nil
	}
	metrics.MessagesStoredTotal.WithLabelValues(domain.DirectionOutbound).Inc()

	s.broadcaster.Broadcast(domain.NewMessageEvent(msg))
	return sid, nil
}

func (s *Service) ListMessages(ctx context.Context) ([]domain.Message, error) {
	return s.messages.ListAll(ctx)
}

func (s *Service) ListConversationMessages(ctx context.Context, phone string) ([]domain.Message, error) {
	return s.messages.ListByPhone(ctx, phone)
}

func (s *Service) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	return s.messages.ListConversations(ctx)
}
