package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ScooterAI2025/scooter-whatsapp/internal/domain"
)

// messageColumns must match the scan order in scanMessage.
const messageColumns = `id, from_number, to_number, body, direction, message_sid, created_at`

// MessageRepo implements domain.MessageRepository backed by PostgreSQL.
type MessageRepo struct {
	pool *pgxpool.Pool
}

// NewMessageRepo creates a MessageRepo from the shared connection pool.
func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var msg domain.Message
	err := row.Scan(
		&msg.ID, &msg.FromNumber, &msg.ToNumber, &msg.Body,
		&msg.Direction, &msg.MessageSid, &msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *MessageRepo) Insert(ctx context.Context, fromNumber, toNumber, body, direction string, messageSid *string) (*domain.Message, error) {
	msg, err := scanMessage(r.pool.QueryRow(ctx, `
		INSERT INTO messages (from_number, to_number, body, direction, message_sid)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+messageColumns,
		fromNumber, toNumber, body, direction, messageSid,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}
	return msg, nil
}

func (r *MessageRepo) ListAll(ctx context.Context) ([]domain.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

func (r *MessageRepo) ListByPhone(ctx context.Context, phone string) ([]domain.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE from_number = $1 OR to_number = $1
		ORDER BY created_at ASC`,
		phone,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages for phone: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// ListConversations returns one row per counterparty phone with that
// conversation's most recent message, ordered by descending recency.
func (r *MessageRepo) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT phone, last_body, last_direction, last_created_at
		FROM (
			SELECT DISTINCT ON (phone)
				CASE
					WHEN direction = 'inbound' THEN from_number
					ELSE to_number
				END AS phone,
				body        AS last_body,
				direction   AS last_direction,
				created_at  AS last_created_at
			FROM messages
			ORDER BY phone, created_at DESC
		) sub
		ORDER BY last_created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []domain.Conversation
	for rows.Next() {
		var conv domain.Conversation
		if err := rows.Scan(&conv.Phone, &conv.LastBody, &conv.LastDirection, &conv.LastCreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read conversations: %w", err)
	}
	return conversations, nil
}

func collectMessages(rows pgx.Rows) ([]domain.Message, error) {
	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		err := rows.Scan(
			&msg.ID, &msg.FromNumber, &msg.ToNumber, &msg.Body,
			&msg.Direction, &msg.MessageSid, &msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return messages, nil
}
