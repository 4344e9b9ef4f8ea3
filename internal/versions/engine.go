package versions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ems-calendar/backend/internal/apperr"
	"github.com/ems-calendar/backend/internal/models"
	"github.com/ems-calendar/backend/internal/store"
)

// Change descriptions written with versions.
const (
	DescInitial = "Initial version"
	DescUpdate  = "Update event"
)

// ErrConcurrentModification is reported when another writer took the version number first.
var ErrConcurrentModification = apperr.Conflict("concurrent modification, retry", nil)

// Engine writes versions and changelog entries. It runs against stores bound to the caller's
// transaction, so a failure here rolls back the paired event write.
type Engine struct {
	now func() time.Time
}

// NewEngine creates an engine; nil now uses time.Now. Timestamps are written at storage precision.
func NewEngine(now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{now: func() time.Time { return models.StorageTime(now()) }}
}

// Snapshot writes version latest+1 of ev. ev.CurrentVersion is set to the new number first, and the
// event row is rewritten if it did not already carry it.
func (en *Engine) Snapshot(ctx context.Context, s store.Stores, ev *models.Event, actorID uuid.UUID, description string) (*models.EventVersion, error) {
	latest, err := s.Versions.GetLatest(ctx, ev.ID)
	if err != nil {
		return nil, fmt.Errorf("get latest version: %w", err)
	}
	n := 1
	if latest != nil {
		n = latest.VersionNumber + 1
	}
	if ev.CurrentVersion != n {
		ev.CurrentVersion = n
		if err := s.Events.Update(ctx, ev); err != nil {
			return nil, fmt.Errorf("sync current version: %w", err)
		}
	}
	data, err := SnapshotOf(ev)
	if err != nil {
		return nil, err
	}
	desc := description
	v := &models.EventVersion{
		ID:                uuid.New(),
		EventID:           ev.ID,
		VersionNumber:     n,
		Data:              data,
		CreatedByID:       actorID,
		CreatedAt:         en.now().UTC(),
		ChangeDescription: &desc,
	}
	if err := s.Versions.Insert(ctx, v); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrConcurrentModification
		}
		return nil, fmt.Errorf("insert version: %w", err)
	}
	return v, nil
}

// Changelog appends one audit entry.
func (en *Engine) Changelog(ctx context.Context, s store.Stores, eventID, actorID uuid.UUID, action models.Action, from *int, to int, changes models.Diff) (*models.ChangelogEntry, error) {
	entry := &models.ChangelogEntry{
		ID:          uuid.New(),
		EventID:     eventID,
		UserID:      actorID,
		Timestamp:   en.now().UTC(),
		Action:      action,
		VersionFrom: from,
		VersionTo:   to,
		Changes:     changes,
	}
	if err := s.Changelog.Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("insert changelog: %w", err)
	}
	return entry, nil
}

// Rollback restores ev's mutable fields from version target and records the restore as a new version.
// The caller has loaded, locked and authorized ev.
func (en *Engine) Rollback(ctx context.Context, s store.Stores, ev *models.Event, target int, actorID uuid.UUID) (*models.Event, error) {
	tv, err := s.Versions.GetByNumber(ctx, ev.ID, target)
	if err != nil {
		return nil, fmt.Errorf("get version: %w", err)
	}
	if tv == nil {
		return nil, apperr.NotFound("version not found")
	}
	src, err := Restore(tv.Data)
	if err != nil {
		return nil, err
	}

	before, err := en.CurrentData(ctx, s, ev)
	if err != nil {
		return nil, err
	}
	from := ev.CurrentVersion

	restoreFields(ev, src)
	now := en.now().UTC()
	ev.UpdatedAt = &now
	ev.CurrentVersion = from + 1
	if err := s.Events.Update(ctx, ev); err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	v, err := en.Snapshot(ctx, s, ev, actorID, fmt.Sprintf("Rollback to version %d", target))
	if err != nil {
		return nil, err
	}
	if _, err := en.Changelog(ctx, s, ev.ID, actorID, models.ActionRollback, &from, v.VersionNumber, Diff(before, tv.Data)); err != nil {
		return nil, err
	}
	return ev, nil
}

// CurrentData returns the latest stored snapshot of ev, falling back to serializing ev itself.
func (en *Engine) CurrentData(ctx context.Context, s store.Stores, ev *models.Event) (models.Snapshot, error) {
	latest, err := s.Versions.GetLatest(ctx, ev.ID)
	if err != nil {
		return nil, fmt.Errorf("get latest version: %w", err)
	}
	if latest != nil {
		return latest.Data, nil
	}
	return SnapshotOf(ev)
}
