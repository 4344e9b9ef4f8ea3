package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ems-calendar/backend/internal/models"
	"github.com/ems-calendar/backend/pkg/database"
)

const userColumns = `id, username, email, password_hash, is_active, created_at, last_login`

// Users handles user persistence.
type Users struct {
	db database.DBTX
}

func (r *Users) one(ctx context.Context, q string, arg any) (*models.User, error) {
	var u models.User
	err := r.db.QueryRow(ctx, q, arg).Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.IsActive, &u.CreatedAt, &u.LastLogin)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByID returns a user by ID.
func (r *Users) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.one(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByLogin returns the user whose username or email equals login.
func (r *Users) GetByLogin(ctx context.Context, login string) (*models.User, error) {
	return r.one(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1 OR email = $1`, login)
}

// Create inserts a new user. A taken username or email yields store.ErrDuplicate.
func (r *Users) Create(ctx context.Context, username, email, passwordHash string) (*models.User, error) {
	const q = `INSERT INTO users (id, username, email, password_hash) VALUES ($1, $2, $3, $4)
		RETURNING ` + userColumns
	var u models.User
	err := r.db.QueryRow(ctx, q, uuid.New(), username, email, passwordHash).
		Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.IsActive, &u.CreatedAt, &u.LastLogin)
	if err != nil {
		return nil, writeErr("create user", err)
	}
	return &u, nil
}

// TouchLastLogin records a successful login.
func (r *Users) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, at, id)
	return err
}
