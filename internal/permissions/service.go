package permissions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ems-calendar/backend/internal/apperr"
	"github.com/ems-calendar/backend/internal/models"
	"github.com/ems-calendar/backend/internal/store"
)

const unknownUser = "Unknown"

// Service shares events and manages their grants. Every operation requires the share capability except
// List, which requires view.
type Service struct {
	tx     store.Transactor
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a permission service.
func NewService(tx store.Transactor, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{tx: tx, logger: logger, now: time.Now}
}

// Share grants each (user, role) pair on the event, updating the role of existing grants in place.
func (s *Service) Share(ctx context.Context, eventID, actorID uuid.UUID, assignments []models.RoleAssignment) ([]models.PermissionView, error) {
	if len(assignments) == 0 {
		return nil, apperr.Validation("at least one user is required")
	}
	for _, a := range assignments {
		if !a.Role.Valid() {
			return nil, apperr.Validation("role must be one of owner, editor, viewer")
		}
	}

	var out []models.PermissionView
	err := s.tx.WithinTx(ctx, func(st store.Stores) error {
		event, err := Guard(ctx, st, eventID, actorID, models.CapShare, false)
		if err != nil {
			return err
		}
		out = make([]models.PermissionView, 0, len(assignments))
		for _, a := range assignments {
			if a.UserID == event.OwnerID {
				return apperr.InvalidOperation("cannot change owner's permissions")
			}
			user, err := st.Users.GetByID(ctx, a.UserID)
			if err != nil {
				return fmt.Errorf("get user: %w", err)
			}
			if user == nil {
				return apperr.NotFound("user %s not found", a.UserID)
			}
			grantedBy := actorID
			p := &models.Permission{
				ID:          uuid.New(),
				EventID:     event.ID,
				UserID:      a.UserID,
				Role:        a.Role,
				GrantedByID: &grantedBy,
				GrantedAt:   models.StorageTime(s.now()),
			}
			if err := st.Grants.Upsert(ctx, p); err != nil {
				return fmt.Errorf("upsert grant: %w", err)
			}
			out = append(out, View(*p, user.Username))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("event shared", zap.String("event_id", eventID.String()), zap.String("actor_id", actorID.String()), zap.Int("grants", len(out)))
	return out, nil
}

// List returns the event's grants with grantee usernames.
func (s *Service) List(ctx context.Context, eventID, actorID uuid.UUID) ([]models.PermissionView, error) {
	st := s.tx.Stores()
	if _, err := Guard(ctx, st, eventID, actorID, models.CapView, false); err != nil {
		return nil, err
	}
	grants, err := st.Grants.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	out := make([]models.PermissionView, 0, len(grants))
	for _, g := range grants {
		out = append(out, View(g, usernameOf(ctx, st.Users, g.UserID)))
	}
	return out, nil
}

// UpdateRole changes the role of an existing grant.
func (s *Service) UpdateRole(ctx context.Context, eventID, actorID, userID uuid.UUID, role models.Role) (*models.PermissionView, error) {
	if !role.Valid() {
		return nil, apperr.Validation("role must be one of owner, editor, viewer")
	}
	var out models.PermissionView
	err := s.tx.WithinTx(ctx, func(st store.Stores) error {
		event, err := Guard(ctx, st, eventID, actorID, models.CapShare, false)
		if err != nil {
			return err
		}
		if userID == event.OwnerID {
			return apperr.InvalidOperation("cannot change owner's permissions")
		}
		user, err := st.Users.GetByID(ctx, userID)
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		if user == nil {
			return apperr.NotFound("user not found")
		}
		grant, err := st.Grants.Get(ctx, eventID, userID)
		if err != nil {
			return fmt.Errorf("get grant: %w", err)
		}
		if grant == nil {
			return apperr.NotFound("permission not found")
		}
		grant.Role = role
		if err := st.Grants.Upsert(ctx, grant); err != nil {
			return fmt.Errorf("update grant: %w", err)
		}
		out = View(*grant, user.Username)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Revoke removes a user's grant on the event.
func (s *Service) Revoke(ctx context.Context, eventID, actorID, userID uuid.UUID) error {
	return s.tx.WithinTx(ctx, func(st store.Stores) error {
		event, err := Guard(ctx, st, eventID, actorID, models.CapShare, false)
		if err != nil {
			return err
		}
		if userID == event.OwnerID {
			return apperr.InvalidOperation("cannot remove owner's access")
		}
		grant, err := st.Grants.Get(ctx, eventID, userID)
		if err != nil {
			return fmt.Errorf("get grant: %w", err)
		}
		if grant == nil {
			return apperr.NotFound("permission not found")
		}
		if err := st.Grants.Delete(ctx, eventID, userID); err != nil {
			return fmt.Errorf("delete grant: %w", err)
		}
		s.logger.Info("permission revoked", zap.String("event_id", eventID.String()), zap.String("user_id", userID.String()))
		return nil
	})
}

func usernameOf(ctx context.Context, users store.UserStore, id uuid.UUID) string {
	u, err := users.GetByID(ctx, id)
	if err != nil || u == nil {
		return unknownUser
	}
	return u.Username
}

// Username resolves a display name, "Unknown" when the user no longer exists.
func Username(ctx context.Context, users store.UserStore, id uuid.UUID) string {
	return usernameOf(ctx, users, id)
}
