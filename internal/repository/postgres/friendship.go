package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/dmstream/internal/models"
)

type FriendshipStore struct {
	pool *pgxpool.Pool
}

func NewFriendshipStore(pool *pgxpool.Pool) *FriendshipStore {
	return &FriendshipStore{pool: pool}
}

func (s *FriendshipStore) Create(ctx context.Context, requesterID, recipientID uuid.UUID, status models.FriendStatus) (*models.Friendship, error) {
	// uq_friendships_pair on (LEAST, GREATEST) rejects a second edge for the
	// same pair even when two requests race past the manager's check.
	query := `
		INSERT INTO friendships (requester_id, recipient_id, status, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING id, requester_id, recipient_id, status, created_at`

	var f models.Friendship
	err := s.pool.QueryRow(ctx, query, requesterID, recipientID, string(status)).Scan(
		&f.ID,
		&f.RequesterID,
		&f.RecipientID,
		&f.Status,
		&f.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errDuplicate("insert friendship", err)
		}
		return nil, fmt.Errorf("insert friendship: %w", err)
	}
	return &f, nil
}

func (s *FriendshipStore) FindBetween(ctx context.Context, a, b uuid.UUID) (*models.Friendship, error) {
	query := `
		SELECT id, requester_id, recipient_id, status, created_at
		FROM friendships
		WHERE (requester_id = $1 AND recipient_id = $2)
		   OR (requester_id = $2 AND recipient_id = $1)
		LIMIT 1`

	var f models.Friendship
	err := s.pool.QueryRow(ctx, query, a, b).Scan(
		&f.ID,
		&f.RequesterID,
		&f.RecipientID,
		&f.Status,
		&f.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find friendship: %w", err)
	}
	return &f, nil
}

func (s *FriendshipStore) ListAccepted(ctx context.Context, userID uuid.UUID) ([]models.Friendship, error) {
	query := `
		SELECT f.id, f.requester_id, f.recipient_id, f.status, f.created_at,
		       rq.identity, rq.username, rq.full_name,
		       rc.identity, rc.username, rc.full_name
		FROM friendships f
		JOIN users rq ON rq.id = f.requester_id
		JOIN users rc ON rc.id = f.recipient_id
		WHERE f.status = 'accepted'
		  AND (f.requester_id = $1 OR f.recipient_id = $1)
		ORDER BY f.created_at ASC`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list friendships: %w", err)
	}
	defer rows.Close()

	edges := make([]models.Friendship, 0)
	for rows.Next() {
		var f models.Friendship
		if err := rows.Scan(
			&f.ID,
			&f.RequesterID,
			&f.RecipientID,
			&f.Status,
			&f.CreatedAt,
			&f.Requester.Identity,
			&f.Requester.Username,
			&f.Requester.FullName,
			&f.Recipient.Identity,
			&f.Recipient.Username,
			&f.Recipient.FullName,
		); err != nil {
			return nil, fmt.Errorf("scan friendship: %w", err)
		}
		edges = append(edges, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate friendships: %w", err)
	}

	return edges, nil
}
