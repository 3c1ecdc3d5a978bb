// Package memory is an in-process implementation of the repository
// interfaces. It backs STORAGE_DRIVER=memory and the service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/dmstream/internal/models"
	"github.com/lalith-99/dmstream/internal/repository"
)

// Store keeps users, messages and friendships behind one mutex. The three
// repository views below share it so cross-table reads stay consistent.
type Store struct {
	mu          sync.RWMutex
	users       map[uuid.UUID]*models.User
	byIdentity  map[string]uuid.UUID
	messages    []models.Message
	friendships []models.Friendship
	nextMsgID   int64
	nextEdgeID  int64
	now         func() time.Time
}

func New() *Store {
	return &Store{
		users:      make(map[uuid.UUID]*models.User),
		byIdentity: make(map[string]uuid.UUID),
		now:        time.Now,
	}
}

// WithClock replaces the timestamp source. Tests use it to force equal or
// out-of-order creation times.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Users() *UserStore             { return &UserStore{s} }
func (s *Store) Messages() *MessageStore       { return &MessageStore{s} }
func (s *Store) Friendships() *FriendshipStore { return &FriendshipStore{s} }

var (
	_ repository.UserRepository       = (*UserStore)(nil)
	_ repository.MessageRepository    = (*MessageStore)(nil)
	_ repository.FriendshipRepository = (*FriendshipStore)(nil)
)

type UserStore struct{ s *Store }

func (r *UserStore) Create(ctx context.Context, nu models.NewUser) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Identity == nu.Identity || u.Username == nu.Username || u.Email == nu.Email {
			return nil, fmt.Errorf("insert user: %w", repository.ErrDuplicate)
		}
	}
	u := &models.User{
		ID:           uuid.New(),
		Identity:     nu.Identity,
		Username:     nu.Username,
		Email:        nu.Email,
		FullName:     nu.FullName,
		PhoneNumber:  nu.PhoneNumber,
		Country:      nu.Country,
		PasswordHash: nu.PasswordHash,
		CreatedAt:    s.now(),
	}
	s.users[u.ID] = u
	s.byIdentity[u.Identity] = u.ID
	cp := *u
	return &cp, nil
}

func (r *UserStore) GetByIdentity(ctx context.Context, identity string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byIdentity[identity]
	if !ok {
		return nil, nil
	}
	cp := *s.users[id]
	return &cp, nil
}

func (r *UserStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.find(ctx, func(u *models.User) bool { return u.Username == username })
}

func (r *UserStore) GetByEmailOrUsername(ctx context.Context, email, username string) (*models.User, error) {
	return r.find(ctx, func(u *models.User) bool { return u.Email == email || u.Username == username })
}

func (r *UserStore) find(ctx context.Context, match func(*models.User) bool) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

type MessageStore struct{ s *Store }

func (r *MessageStore) Create(ctx context.Context, sender, receiver *models.User, body models.Body) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextMsgID++
	msg := models.Message{
		ID:               s.nextMsgID,
		SenderID:         sender.ID,
		ReceiverID:       receiver.ID,
		SenderIdentity:   sender.Identity,
		ReceiverIdentity: receiver.Identity,
		Body:             body,
		CreatedAt:        s.now(),
	}
	s.messages = append(s.messages, msg)
	return &msg, nil
}

func (r *MessageStore) ListBetween(ctx context.Context, a, b uuid.UUID) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Message, 0)
	for _, m := range s.messages {
		if (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

type FriendshipStore struct{ s *Store }

func (r *FriendshipStore) Create(ctx context.Context, requesterID, recipientID uuid.UUID, status models.FriendStatus) (*models.Friendship, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findLocked(requesterID, recipientID) != nil {
		return nil, fmt.Errorf("insert friendship: %w", repository.ErrDuplicate)
	}
	s.nextEdgeID++
	f := models.Friendship{
		ID:          s.nextEdgeID,
		RequesterID: requesterID,
		RecipientID: recipientID,
		Status:      status,
		CreatedAt:   s.now(),
	}
	s.friendships = append(s.friendships, f)
	return &f, nil
}

func (r *FriendshipStore) FindBetween(ctx context.Context, a, b uuid.UUID) (*models.Friendship, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	if f := s.findLocked(a, b); f != nil {
		cp := *f
		return &cp, nil
	}
	return nil, nil
}

func (r *FriendshipStore) ListAccepted(ctx context.Context, userID uuid.UUID) ([]models.Friendship, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Friendship, 0)
	for _, f := range s.friendships {
		if f.Status != models.FriendAccepted {
			continue
		}
		if f.RequesterID != userID && f.RecipientID != userID {
			continue
		}
		f.Requester = s.users[f.RequesterID].Summary()
		f.Recipient = s.users[f.RecipientID].Summary()
		out = append(out, f)
	}
	return out, nil
}

// SetStatus changes the status of the edge between a and b. The service has
// no transition operations yet; tests and seed tooling use this to build
// accepted or blocked graphs.
func (r *FriendshipStore) SetStatus(a, b uuid.UUID, status models.FriendStatus) bool {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.findLocked(a, b)
	if f == nil {
		return false
	}
	f.Status = status
	return true
}

func (s *Store) findLocked(a, b uuid.UUID) *models.Friendship {
	for i := range s.friendships {
		f := &s.friendships[i]
		if (f.RequesterID == a && f.RecipientID == b) || (f.RequesterID == b && f.RecipientID == a) {
			return f
		}
	}
	return nil
}
