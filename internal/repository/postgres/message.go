package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/dmstream/internal/models"
)

type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

func (s *MessageStore) Create(ctx context.Context, sender, receiver *models.User, body models.Body) (*models.Message, error) {
	// Messages use bigserial; created_at comes from the database clock so
	// every node agrees on ordering.
	query := `
		INSERT INTO messages (sender_id, receiver_id, kind, content, media_ref, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), now())
		RETURNING id, created_at`

	msg := models.Message{
		SenderID:         sender.ID,
		ReceiverID:       receiver.ID,
		SenderIdentity:   sender.Identity,
		ReceiverIdentity: receiver.Identity,
		Body:             body,
	}
	err := s.pool.QueryRow(ctx, query,
		sender.ID,
		receiver.ID,
		string(body.Kind()),
		body.Content(),
		body.MediaRef(),
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &msg, nil
}

// listBetweenQuery filters on the unordered pair so it can use
// idx_messages_pair_created.
const listBetweenQuery = `
		SELECT m.id, m.sender_id, m.receiver_id, su.identity, ru.identity,
		       m.kind, COALESCE(m.content, ''), COALESCE(m.media_ref, ''), m.created_at
		FROM messages m
		JOIN users su ON su.id = m.sender_id
		JOIN users ru ON ru.id = m.receiver_id
		WHERE LEAST(m.sender_id, m.receiver_id) = LEAST($1::uuid, $2::uuid)
		  AND GREATEST(m.sender_id, m.receiver_id) = GREATEST($1::uuid, $2::uuid)
		ORDER BY m.created_at ASC, m.id ASC`

func (s *MessageStore) ListBetween(ctx context.Context, a, b uuid.UUID) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, listBetweenQuery, a, b)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var (
			msg                     models.Message
			kind, content, mediaRef string
		)
		if err := rows.Scan(
			&msg.ID,
			&msg.SenderID,
			&msg.ReceiverID,
			&msg.SenderIdentity,
			&msg.ReceiverIdentity,
			&kind,
			&content,
			&mediaRef,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		// Rows were validated on the way in; a failure here means the
		// table was written by something else.
		msg.Body, err = models.ParseBody(kind, content, mediaRef)
		if err != nil {
			return nil, fmt.Errorf("decode message %d: %w", msg.ID, err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}
