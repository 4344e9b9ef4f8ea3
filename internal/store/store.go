// Package store declares the persistence interfaces the domain core runs against. Lookups of absent rows
// return (nil, nil).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ems-calendar/backend/internal/models"
)

// ErrDuplicate is returned when a write violates a uniqueness constraint, e.g. two concurrent writers
// assigning the same version number.
var ErrDuplicate = errors.New("duplicate key")

// EventStore persists events.
type EventStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	// GetByIDForUpdate locks the row for the rest of the enclosing transaction.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Event, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, offset, limit int) ([]models.Event, error)
	// ListInRange returns events fully contained in [start, end], optionally for one owner.
	ListInRange(ctx context.Context, start, end time.Time, ownerID *uuid.UUID) ([]models.Event, error)
	// ListOwnedExcept returns every event of ownerID except exclude (when non-nil).
	ListOwnedExcept(ctx context.Context, ownerID uuid.UUID, exclude *uuid.UUID) ([]models.Event, error)
	Insert(ctx context.Context, e *models.Event) error
	Update(ctx context.Context, e *models.Event) error
	// Delete removes the event and, by cascade, its grants, versions and changelog entries.
	Delete(ctx context.Context, id uuid.UUID) error
}

// VersionStore persists immutable event versions.
type VersionStore interface {
	GetByNumber(ctx context.Context, eventID uuid.UUID, n int) (*models.EventVersion, error)
	GetLatest(ctx context.Context, eventID uuid.UUID) (*models.EventVersion, error)
	// ListByEvent returns versions newest first.
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.EventVersion, error)
	Insert(ctx context.Context, v *models.EventVersion) error
}

// ChangelogStore persists the append-only audit log.
type ChangelogStore interface {
	Insert(ctx context.Context, entry *models.ChangelogEntry) error
	// ListByEvent returns entries newest first.
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.ChangelogEntry, error)
}

// GrantStore persists per-event role grants.
type GrantStore interface {
	Get(ctx context.Context, eventID, userID uuid.UUID) (*models.Permission, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Permission, error)
	// Upsert creates the grant or updates the role of the existing (event, user) grant.
	Upsert(ctx context.Context, p *models.Permission) error
	Delete(ctx context.Context, eventID, userID uuid.UUID) error
}

// UserStore resolves display identity.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Stores bundles the stores bound to one connection or transaction.
type Stores struct {
	Events    EventStore
	Versions  VersionStore
	Changelog ChangelogStore
	Grants    GrantStore
	Users     UserStore
}

// Transactor runs work against the store, atomically when asked.
type Transactor interface {
	// Stores returns stores outside any transaction, for reads.
	Stores() Stores
	// WithinTx runs fn against stores bound to one transaction, committing only when fn returns nil.
	WithinTx(ctx context.Context, fn func(s Stores) error) error
}
