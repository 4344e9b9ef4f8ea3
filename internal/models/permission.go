package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is a sharing role granted on one event.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleEditor, RoleViewer:
		return true
	}
	return false
}

// Capability is the atomic unit of authorization on an event.
type Capability string

const (
	CapView   Capability = "view"
	CapEdit   Capability = "edit"
	CapDelete Capability = "delete"
	CapShare  Capability = "share"
)

// Permission is a stored grant of a role on an event to a user other than its owner.
type Permission struct {
	ID          uuid.UUID  `json:"id"`
	EventID     uuid.UUID  `json:"event_id"`
	UserID      uuid.UUID  `json:"user_id"`
	Role        Role       `json:"role"`
	GrantedByID *uuid.UUID `json:"granted_by_id,omitempty"`
	GrantedAt   time.Time  `json:"granted_at"`
}

// PermissionView is a grant enriched with its capabilities and the grantee's display name.
type PermissionView struct {
	Permission
	CanView   bool   `json:"can_view"`
	CanEdit   bool   `json:"can_edit"`
	CanDelete bool   `json:"can_delete"`
	CanShare  bool   `json:"can_share"`
	Username  string `json:"username"`
}

// RoleAssignment is one (grantee, role) pair of a share request.
type RoleAssignment struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
	Role   Role      `json:"role" binding:"required"`
}
