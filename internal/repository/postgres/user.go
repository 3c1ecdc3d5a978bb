package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/dmstream/internal/models"
)

const userColumns = `id, identity, username, email, full_name, phone_number, country, password_hash, created_at`

type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// Create inserts a new user row. Postgres generates the UUID and timestamp.
func (s *UserStore) Create(ctx context.Context, nu models.NewUser) (*models.User, error) {
	query := `
		INSERT INTO users (identity, username, email, full_name, phone_number, country, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING ` + userColumns

	u, err := scanUser(s.pool.QueryRow(ctx, query,
		nu.Identity,
		nu.Username,
		nu.Email,
		nu.FullName,
		nu.PhoneNumber,
		nu.Country,
		nu.PasswordHash,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errDuplicate("insert user", err)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByIdentity(ctx context.Context, identity string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE identity = $1`
	return s.getOne(ctx, "get user by identity", query, identity)
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return s.getOne(ctx, "get user by username", query, username)
}

// GetByEmailOrUsername returns the first user matching either field.
func (s *UserStore) GetByEmailOrUsername(ctx context.Context, email, username string) (*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = $1 OR username = $2
		LIMIT 1`
	return s.getOne(ctx, "get user by email or username", query, email, username)
}

func (s *UserStore) getOne(ctx context.Context, op, query string, args ...any) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID,
		&u.Identity,
		&u.Username,
		&u.Email,
		&u.FullName,
		&u.PhoneNumber,
		&u.Country,
		&u.PasswordHash,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
