// Package permissions resolves what an actor may do with an event and manages sharing grants.
package permissions

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ems-calendar/backend/internal/apperr"
	"github.com/ems-calendar/backend/internal/models"
	"github.com/ems-calendar/backend/internal/store"
)

// Set is a set of capabilities.
type Set uint8

const (
	canView Set = 1 << iota
	canEdit
	canDelete
	canShare

	// Full is the owner's capability set.
	Full = canView | canEdit | canDelete | canShare
)

var bits = map[models.Capability]Set{
	models.CapView:   canView,
	models.CapEdit:   canEdit,
	models.CapDelete: canDelete,
	models.CapShare:  canShare,
}

// ForRole returns the fixed capability set implied by a role.
func ForRole(r models.Role) Set {
	switch r {
	case models.RoleOwner:
		return Full
	case models.RoleEditor:
		return canView | canEdit
	case models.RoleViewer:
		return canView
	}
	return 0
}

// Has reports whether c is in the set.
func (s Set) Has(c models.Capability) bool {
	b, ok := bits[c]
	return ok && s&b != 0
}

// Resolve computes the actor's capabilities from ownership and the actor's grant (nil when absent).
// Ownership always wins over any stored grant.
func Resolve(event *models.Event, actorID uuid.UUID, grant *models.Permission) Set {
	if event.OwnerID == actorID {
		return Full
	}
	if grant == nil {
		return 0
	}
	return ForRole(grant.Role)
}

// Resolver looks up grants to resolve capabilities.
type Resolver struct {
	grants store.GrantStore
}

// NewResolver creates a resolver over a grant store.
func NewResolver(grants store.GrantStore) *Resolver {
	return &Resolver{grants: grants}
}

// Resolve returns the capability set of actorID on event.
func (r *Resolver) Resolve(ctx context.Context, event *models.Event, actorID uuid.UUID) (Set, error) {
	if event.OwnerID == actorID {
		return Full, nil
	}
	grant, err := r.grants.Get(ctx, event.ID, actorID)
	if err != nil {
		return 0, fmt.Errorf("get grant: %w", err)
	}
	return Resolve(event, actorID, grant), nil
}

// Authorize fails with a Forbidden error unless actorID holds c on event.
func (r *Resolver) Authorize(ctx context.Context, event *models.Event, actorID uuid.UUID, c models.Capability) error {
	set, err := r.Resolve(ctx, event, actorID)
	if err != nil {
		return err
	}
	if !set.Has(c) {
		return apperr.Forbidden("not enough permissions to %s this event", c)
	}
	return nil
}

// Guard loads the event and authorizes c, checking existence before permission. With lock set the event
// row is locked for the enclosing transaction.
func Guard(ctx context.Context, s store.Stores, eventID, actorID uuid.UUID, c models.Capability, lock bool) (*models.Event, error) {
	var (
		event *models.Event
		err   error
	)
	if lock {
		event, err = s.Events.GetByIDForUpdate(ctx, eventID)
	} else {
		event, err = s.Events.GetByID(ctx, eventID)
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	if event == nil {
		return nil, apperr.NotFound("event not found")
	}
	if err := NewResolver(s.Grants).Authorize(ctx, event, actorID, c); err != nil {
		return nil, err
	}
	return event, nil
}

// View enriches a grant with its capabilities and the grantee's username.
func View(p models.Permission, username string) models.PermissionView {
	set := ForRole(p.Role)
	return models.PermissionView{
		Permission: p,
		CanView:    set.Has(models.CapView),
		CanEdit:    set.Has(models.CapEdit),
		CanDelete:  set.Has(models.CapDelete),
		CanShare:   set.Has(models.CapShare),
		Username:   username,
	}
}
