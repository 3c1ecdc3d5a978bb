package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a registered account.
//
// ID is the storage key and never leaves the server. Identity is the short
// public handle clients search, route and befriend by.
type User struct {
	ID           uuid.UUID `json:"-"`
	Identity     string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	PhoneNumber  string    `json:"phoneNumber,omitempty"`
	Country      string    `json:"country,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Summary returns the public projection of u.
func (u *User) Summary() UserSummary {
	return UserSummary{
		Identity: u.Identity,
		Username: u.Username,
		FullName: u.FullName,
	}
}

// UserSummary is what other users get to see.
type UserSummary struct {
	Identity string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
}

// NewUser carries the fields needed to insert a user row.
type NewUser struct {
	Identity     string
	Username     string
	Email        string
	FullName     string
	PhoneNumber  string
	Country      string
	PasswordHash string
}

// Message is a persisted direct message. Never updated after insert.
//
// Sender/receiver are stored by storage ID; the identities are filled in by
// the repository so callers never have to join.
type Message struct {
	ID               int64
	SenderID         uuid.UUID
	ReceiverID       uuid.UUID
	SenderIdentity   string
	ReceiverIdentity string
	Body             Body
	CreatedAt        time.Time
}

// FriendStatus is the state of a friendship edge.
type FriendStatus string

const (
	FriendPending  FriendStatus = "pending"
	FriendAccepted FriendStatus = "accepted"
	FriendBlocked  FriendStatus = "blocked"
)

// Friendship is a directed edge between two users. At most one edge exists
// per unordered pair.
type Friendship struct {
	ID          int64
	RequesterID uuid.UUID
	RecipientID uuid.UUID
	Status      FriendStatus
	CreatedAt   time.Time

	// Populated by list queries.
	Requester UserSummary
	Recipient UserSummary
}

// Counterpart returns the summary of whichever side of f is not userID.
func (f *Friendship) Counterpart(userID uuid.UUID) UserSummary {
	if f.RequesterID == userID {
		return f.Recipient
	}
	return f.Requester
}
