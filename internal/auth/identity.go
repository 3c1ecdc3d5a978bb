package auth

import (
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// IdentityLength is the length of a public user identity.
const IdentityLength = 8

// NewIdentity returns a random public identity: IdentityLength uppercase
// base-36 characters, drawn from a fresh v4 UUID. Uniqueness is enforced by
// the users table; callers retry on ErrDuplicate.
func NewIdentity() string {
	id := uuid.New()
	s := strings.ToUpper(new(big.Int).SetBytes(id[:]).Text(36))
	if len(s) < IdentityLength {
		s = strings.Repeat("0", IdentityLength-len(s)) + s
	}
	return s[len(s)-IdentityLength:]
}
