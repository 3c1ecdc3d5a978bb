package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/lalith-99/dmstream/internal/models"
)

// Every method takes ctx first: the services bound each call with the
// configured storage timeout.
//
// Lookups return nil, nil when the row does not exist. Any non-nil error is
// a storage failure.

// ErrDuplicate is returned when an insert hits a unique constraint.
var ErrDuplicate = errors.New("duplicate record")

// UserRepository handles user data.
type UserRepository interface {
	// Create inserts a user. Returns ErrDuplicate when the identity,
	// username or email is already taken.
	Create(ctx context.Context, u models.NewUser) (*models.User, error)

	// GetByIdentity resolves a public identity.
	GetByIdentity(ctx context.Context, identity string) (*models.User, error)

	// GetByUsername is used for login.
	GetByUsername(ctx context.Context, username string) (*models.User, error)

	// GetByEmailOrUsername is the signup duplicate check.
	GetByEmailOrUsername(ctx context.Context, email, username string) (*models.User, error)
}

// MessageRepository handles direct message persistence.
type MessageRepository interface {
	// Create persists a message and returns it with ID, identities and
	// CreatedAt populated.
	Create(ctx context.Context, sender, receiver *models.User, body models.Body) (*models.Message, error)

	// ListBetween returns every message exchanged between a and b in either
	// direction, oldest first. Ties on CreatedAt are broken by ID.
	ListBetween(ctx context.Context, a, b uuid.UUID) ([]models.Message, error)
}

// FriendshipRepository handles the friendship graph.
type FriendshipRepository interface {
	// Create inserts an edge requester -> recipient. Returns ErrDuplicate
	// when any edge already exists for the unordered pair.
	Create(ctx context.Context, requesterID, recipientID uuid.UUID, status models.FriendStatus) (*models.Friendship, error)

	// FindBetween returns the edge between a and b in either direction.
	FindBetween(ctx context.Context, a, b uuid.UUID) (*models.Friendship, error)

	// ListAccepted returns accepted edges touching userID, with both
	// Requester and Recipient summaries populated.
	ListAccepted(ctx context.Context, userID uuid.UUID) ([]models.Friendship, error)
}
