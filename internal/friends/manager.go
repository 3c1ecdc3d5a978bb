// Package friends manages the friendship graph.
package friends

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lalith-99/dmstream/internal/apperr"
	"github.com/lalith-99/dmstream/internal/models"
	"github.com/lalith-99/dmstream/internal/presence"
	"github.com/lalith-99/dmstream/internal/repository"
	"go.uber.org/zap"
)

// EventFriendRequest is the push type sent to an online recipient.
const EventFriendRequest = "friend_request"

// RequestNotice is the payload of EventFriendRequest.
type RequestNotice struct {
	RequesterIdentity    string `json:"requesterIdentity"`
	RequesterDisplayName string `json:"requesterDisplayName"`
	Message              string `json:"message"`
}

type Manager struct {
	users          repository.UserRepository
	friendships    repository.FriendshipRepository
	registry       *presence.Registry
	storageTimeout time.Duration
	logger         *zap.Logger
}

func NewManager(
	users repository.UserRepository,
	friendships repository.FriendshipRepository,
	registry *presence.Registry,
	storageTimeout time.Duration,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		users:          users,
		friendships:    friendships,
		registry:       registry,
		storageTimeout: storageTimeout,
		logger:         logger,
	}
}

// RequestFriend creates a pending edge requester -> recipient. Existing
// edges are checked in both directions, so B requesting A after A requested
// B is reported as pending. The recipient is notified before this returns
// when they are online.
func (m *Manager) RequestFriend(ctx context.Context, requesterIdentity, recipientIdentity string) error {
	requester, err := m.resolve(ctx, requesterIdentity)
	if err != nil {
		return fmt.Errorf("requester: %w", err)
	}
	recipient, err := m.resolve(ctx, recipientIdentity)
	if err != nil {
		return fmt.Errorf("recipient: %w", err)
	}
	if requester.ID == recipient.ID {
		return apperr.ErrSelfRequest
	}

	sctx, cancel := context.WithTimeout(ctx, m.storageTimeout)
	existing, err := m.friendships.FindBetween(sctx, requester.ID, recipient.ID)
	cancel()
	if err != nil {
		return apperr.Storage("find friendship", err)
	}
	if err := statusError(existing); err != nil {
		return err
	}

	sctx, cancel = context.WithTimeout(ctx, m.storageTimeout)
	_, err = m.friendships.Create(sctx, requester.ID, recipient.ID, models.FriendPending)
	cancel()
	if err != nil {
		// Lost a race with a concurrent request for the same pair.
		if errors.Is(err, repository.ErrDuplicate) {
			return apperr.ErrRequestPending
		}
		return apperr.Storage("create friendship", err)
	}

	m.logger.Info("friend request created",
		zap.String("requester", requester.Identity),
		zap.String("recipient", recipient.Identity))

	if conn, ok := m.registry.Lookup(recipient.Identity); ok {
		notice := RequestNotice{
			RequesterIdentity:    requester.Identity,
			RequesterDisplayName: requester.Username,
			Message:              fmt.Sprintf("%s sent you a friend request.", requester.Username),
		}
		if err := conn.Deliver(presence.Event{Type: EventFriendRequest, Payload: notice}); err != nil {
			m.logger.Warn("best-effort delivery failed",
				zap.String("conn_id", conn.ID()),
				zap.String("recipient", recipient.Identity),
				zap.Error(err))
		}
	}
	return nil
}

// ListFriends returns the counterpart of every accepted edge touching
// identity.
func (m *Manager) ListFriends(ctx context.Context, identity string) ([]models.UserSummary, error) {
	user, err := m.resolve(ctx, identity)
	if err != nil {
		return nil, err
	}

	sctx, cancel := context.WithTimeout(ctx, m.storageTimeout)
	defer cancel()
	edges, err := m.friendships.ListAccepted(sctx, user.ID)
	if err != nil {
		return nil, apperr.Storage("list friendships", err)
	}

	friends := make([]models.UserSummary, 0, len(edges))
	for i := range edges {
		friends = append(friends, edges[i].Counterpart(user.ID))
	}
	return friends, nil
}

func statusError(f *models.Friendship) error {
	if f == nil {
		return nil
	}
	switch f.Status {
	case models.FriendAccepted:
		return apperr.ErrAlreadyFriends
	case models.FriendPending:
		return apperr.ErrRequestPending
	case models.FriendBlocked:
		return apperr.ErrBlocked
	}
	return fmt.Errorf("unexpected friendship status %q", f.Status)
}

func (m *Manager) resolve(ctx context.Context, identity string) (*models.User, error) {
	if identity == "" {
		return nil, apperr.ErrUnknownUser
	}
	sctx, cancel := context.WithTimeout(ctx, m.storageTimeout)
	defer cancel()
	u, err := m.users.GetByIdentity(sctx, identity)
	if err != nil {
		return nil, apperr.Storage("find user", err)
	}
	if u == nil {
		return nil, fmt.Errorf("%w: %s", apperr.ErrUnknownUser, identity)
	}
	return u, nil
}
