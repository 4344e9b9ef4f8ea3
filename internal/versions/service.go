package versions

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ems-calendar/backend/internal/apperr"
	"github.com/ems-calendar/backend/internal/models"
	"github.com/ems-calendar/backend/internal/permissions"
	"github.com/ems-calendar/backend/internal/store"
)

// Service serves version history reads. Every read requires view on the event.
type Service struct {
	tx store.Transactor
}

// NewService creates a history service.
func NewService(tx store.Transactor) *Service {
	return &Service{tx: tx}
}

// List returns every version of the event, newest first.
func (s *Service) List(ctx context.Context, eventID, actorID uuid.UUID) ([]models.EventVersion, error) {
	st := s.tx.Stores()
	if _, err := permissions.Guard(ctx, st, eventID, actorID, models.CapView, false); err != nil {
		return nil, err
	}
	list, err := st.Versions.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return list, nil
}

// Get returns one version of the event.
func (s *Service) Get(ctx context.Context, eventID, actorID uuid.UUID, n int) (*models.EventVersion, error) {
	st := s.tx.Stores()
	if _, err := permissions.Guard(ctx, st, eventID, actorID, models.CapView, false); err != nil {
		return nil, err
	}
	return getVersion(ctx, st, eventID, n)
}

// Changelog returns the event's audit entries newest first, each with its actor's username.
func (s *Service) Changelog(ctx context.Context, eventID, actorID uuid.UUID) ([]models.ChangelogView, error) {
	st := s.tx.Stores()
	if _, err := permissions.Guard(ctx, st, eventID, actorID, models.CapView, false); err != nil {
		return nil, err
	}
	entries, err := st.Changelog.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list changelog: %w", err)
	}
	names := make(map[uuid.UUID]string)
	out := make([]models.ChangelogView, 0, len(entries))
	for _, e := range entries {
		name, ok := names[e.UserID]
		if !ok {
			name = permissions.Username(ctx, st.Users, e.UserID)
			names[e.UserID] = name
		}
		out = append(out, models.ChangelogView{ChangelogEntry: e, Username: name})
	}
	return out, nil
}

// DiffVersions compares two stored versions of the event.
func (s *Service) DiffVersions(ctx context.Context, eventID, actorID uuid.UUID, v1, v2 int) (*models.DiffResult, error) {
	st := s.tx.Stores()
	if _, err := permissions.Guard(ctx, st, eventID, actorID, models.CapView, false); err != nil {
		return nil, err
	}
	a, err := getVersion(ctx, st, eventID, v1)
	if err != nil {
		return nil, err
	}
	b, err := getVersion(ctx, st, eventID, v2)
	if err != nil {
		return nil, err
	}
	return &models.DiffResult{EventID: eventID, Version1: v1, Version2: v2, Diff: Diff(a.Data, b.Data)}, nil
}

func getVersion(ctx context.Context, st store.Stores, eventID uuid.UUID, n int) (*models.EventVersion, error) {
	v, err := st.Versions.GetByNumber(ctx, eventID, n)
	if err != nil {
		return nil, fmt.Errorf("get version: %w", err)
	}
	if v == nil {
		return nil, apperr.NotFound("version %d not found", n)
	}
	return v, nil
}
