// Package apperr holds the error kinds the messaging core reports to callers.
//
// Validation kinds are returned to the initiating request as a structured
// failure. ErrStorageUnavailable wraps any persistence failure; callers match
// it with errors.Is and the original cause stays in the chain.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownUser        = errors.New("user not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrAlreadyFriends     = errors.New("already friends")
	ErrRequestPending     = errors.New("friend request already sent or received")
	ErrBlocked            = errors.New("friendship is blocked")
	ErrSelfRequest        = errors.New("cannot befriend yourself")
	ErrInvalidMessage     = errors.New("invalid message")
	ErrIdentityMismatch   = errors.New("identity does not match authenticated user")
	ErrConnectionClosed   = errors.New("connection closed")
)

// Storage wraps a gateway failure so it matches ErrStorageUnavailable.
func Storage(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

// IsValidation reports whether err is a caller mistake rather than a server
// fault.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrUnknownUser,
		ErrAlreadyFriends,
		ErrRequestPending,
		ErrBlocked,
		ErrSelfRequest,
		ErrInvalidMessage,
		ErrIdentityMismatch,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
