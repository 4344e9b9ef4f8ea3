// Package events orchestrates event mutations: every accepted change is authorized, validated,
// conflict-checked, written, snapshotted and logged in one transaction.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ems-calendar/backend/internal/apperr"
	"github.com/ems-calendar/backend/internal/conflicts"
	"github.com/ems-calendar/backend/internal/models"
	"github.com/ems-calendar/backend/internal/permissions"
	"github.com/ems-calendar/backend/internal/store"
	"github.com/ems-calendar/backend/internal/versions"
)

const (
	DefaultLimit = 100
	MaxLimit     = 500
	MaxBatch     = 100
)

// ListFilter selects a page of the actor's events, optionally limited to those contained in [Start, End].
type ListFilter struct {
	Skip  int
	Limit int
	Start *time.Time
	End   *time.Time
}

// Service is the event mutation orchestrator.
type Service struct {
	tx     store.Transactor
	engine *versions.Engine
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates an orchestrator.
func NewService(tx store.Transactor, logger *zap.Logger) *Service {
	return newService(tx, logger, time.Now)
}

func newService(tx store.Transactor, logger *zap.Logger, now func() time.Time) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := func() time.Time { return models.StorageTime(now()) }
	return &Service{tx: tx, engine: versions.NewEngine(clock), logger: logger, now: clock}
}

// Create validates and stores a new event owned by ownerID, with version 1 and a create entry.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, in models.EventInput) (*models.Event, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	ev := models.NewEvent(ownerID, in, s.now())
	ev.CurrentVersion = 1

	err := s.tx.WithinTx(ctx, func(st store.Stores) error {
		found, err := conflicts.NewDetector(st.Events).FindConflicts(ctx, ownerID, ev.StartTime, ev.EndTime, nil)
		if err != nil {
			return err
		}
		if len(found) > 0 {
			return s.conflict(ownerID, found)
		}
		return s.insert(ctx, st, ev)
	})
	if err != nil {
		return nil, s.check(err)
	}
	s.logger.Info("event created", zap.String("event_id", ev.ID.String()), zap.String("owner_id", ownerID.String()))
	return ev, nil
}

// CreateBatch stores every input or none of them.
func (s *Service) CreateBatch(ctx context.Context, ownerID uuid.UUID, inputs []models.EventInput) ([]models.Event, error) {
	if len(inputs) == 0 {
		return nil, apperr.Validation("at least one event is required")
	}
	if len(inputs) > MaxBatch {
		return nil, apperr.Validation("a batch holds at most %d events", MaxBatch)
	}
	now := s.now()
	batch := make([]*models.Event, 0, len(inputs))
	for i, in := range inputs {
		if err := in.Validate(); err != nil {
			return nil, apperr.Validation("event %d: %s", i, err.Error())
		}
		ev := models.NewEvent(ownerID, in, now)
		ev.CurrentVersion = 1
		batch = append(batch, ev)
	}
	for i := range batch {
		for j := i + 1; j < len(batch); j++ {
			if conflicts.Overlaps(batch[i].StartTime, batch[i].EndTime, batch[j].StartTime, batch[j].EndTime) {
				return nil, apperr.Validation("events %d and %d in the batch overlap", i, j)
			}
		}
	}

	err := s.tx.WithinTx(ctx, func(st store.Stores) error {
		d := conflicts.NewDetector(st.Events)
		seen := make(map[uuid.UUID]bool)
		var found []models.Event
		for _, ev := range batch {
			list, err := d.FindConflicts(ctx, ownerID, ev.StartTime, ev.EndTime, nil)
			if err != nil {
				return err
			}
			for _, c := range list {
				if !seen[c.ID] {
					seen[c.ID] = true
					found = append(found, c)
				}
			}
		}
		if len(found) > 0 {
			return s.conflict(ownerID, found)
		}
		for _, ev := range batch {
			if err := s.insert(ctx, st, ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.check(err)
	}
	out := make([]models.Event, 0, len(batch))
	for _, ev := range batch {
		out = append(out, *ev)
	}
	s.logger.Info("events created", zap.String("owner_id", ownerID.String()), zap.Int("count", len(out)))
	return out, nil
}

// Get returns an event the actor may view.
func (s *Service) Get(ctx context.Context, eventID, actorID uuid.UUID) (*models.Event, error) {
	return permissions.Guard(ctx, s.tx.Stores(), eventID, actorID, models.CapView, false)
}

// List returns a page of the actor's own events.
func (s *Service) List(ctx context.Context, ownerID uuid.UUID, f ListFilter) ([]models.Event, error) {
	if f.Skip < 0 {
		return nil, apperr.Validation("skip must not be negative")
	}
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultLimit
	case f.Limit > MaxLimit:
		f.Limit = MaxLimit
	}
	st := s.tx.Stores()
	if f.Start == nil || f.End == nil {
		list, err := st.Events.ListByOwner(ctx, ownerID, f.Skip, f.Limit)
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		return list, nil
	}
	if f.End.Before(*f.Start) {
		return nil, apperr.Validation("end_date must not be before start_date")
	}
	list, err := st.Events.ListInRange(ctx, f.Start.UTC(), f.End.UTC(), &ownerID)
	if err != nil {
		return nil, fmt.Errorf("list events in range: %w", err)
	}
	if f.Skip >= len(list) {
		return []models.Event{}, nil
	}
	list = list[f.Skip:]
	if len(list) > f.Limit {
		list = list[:f.Limit]
	}
	return list, nil
}

// Update applies a partial update. The merged event is validated with the create rules, and a moved
// interval is checked against the owner's other events.
func (s *Service) Update(ctx context.Context, eventID, actorID uuid.UUID, patch models.EventPatch) (*models.Event, error) {
	var out *models.Event
	err := s.tx.WithinTx(ctx, func(st store.Stores) error {
		ev, err := permissions.Guard(ctx, st, eventID, actorID, models.CapEdit, true)
		if err != nil {
			return err
		}
		before, err := s.engine.CurrentData(ctx, st, ev)
		if err != nil {
			return err
		}

		merged := ev.Clone()
		merged.Apply(patch)
		if err := merged.Input().Validate(); err != nil {
			return err
		}
		if patch.TouchesInterval() {
			found, err := conflicts.NewDetector(st.Events).FindConflicts(ctx, merged.OwnerID, merged.StartTime, merged.EndTime, &merged.ID)
			if err != nil {
				return err
			}
			if len(found) > 0 {
				return s.conflict(merged.OwnerID, found)
			}
		}

		from := ev.CurrentVersion
		now := s.now().UTC()
		merged.UpdatedAt = &now
		merged.CurrentVersion = from + 1
		if err := st.Events.Update(ctx, merged); err != nil {
			return fmt.Errorf("update event: %w", err)
		}
		v, err := s.engine.Snapshot(ctx, st, merged, actorID, versions.DescUpdate)
		if err != nil {
			return err
		}
		if _, err := s.engine.Changelog(ctx, st, merged.ID, actorID, models.ActionUpdate, &from, v.VersionNumber, versions.Diff(before, v.Data)); err != nil {
			return err
		}
		out = merged
		return nil
	})
	if err != nil {
		return nil, s.check(err)
	}
	return out, nil
}

// Delete removes the event with its grants, versions and changelog.
func (s *Service) Delete(ctx context.Context, eventID, actorID uuid.UUID) error {
	err := s.tx.WithinTx(ctx, func(st store.Stores) error {
		if _, err := permissions.Guard(ctx, st, eventID, actorID, models.CapDelete, true); err != nil {
			return err
		}
		if err := st.Events.Delete(ctx, eventID); err != nil {
			return fmt.Errorf("delete event: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("event deleted", zap.String("event_id", eventID.String()), zap.String("actor_id", actorID.String()))
	return nil
}

// Rollback restores the event to version target as a new version. Requires edit.
func (s *Service) Rollback(ctx context.Context, eventID, actorID uuid.UUID, target int) (*models.Event, error) {
	var out *models.Event
	err := s.tx.WithinTx(ctx, func(st store.Stores) error {
		ev, err := permissions.Guard(ctx, st, eventID, actorID, models.CapEdit, true)
		if err != nil {
			return err
		}
		out, err = s.engine.Rollback(ctx, st, ev, target, actorID)
		return err
	})
	if err != nil {
		return nil, s.check(err)
	}
	s.logger.Info("event rolled back", zap.String("event_id", eventID.String()), zap.Int("target", target), zap.Int("version", out.CurrentVersion))
	return out, nil
}

// Export renders the actor's own events, optionally limited to [start, end], as an iCalendar document.
func (s *Service) Export(ctx context.Context, ownerID uuid.UUID, start, end *time.Time) (string, error) {
	st := s.tx.Stores()
	var (
		list []models.Event
		err  error
	)
	if start != nil && end != nil {
		list, err = st.Events.ListInRange(ctx, start.UTC(), end.UTC(), &ownerID)
	} else {
		list, err = st.Events.ListOwnedExcept(ctx, ownerID, nil)
	}
	if err != nil {
		return "", fmt.Errorf("list events: %w", err)
	}
	return Calendar(list, s.now()), nil
}

// insert writes a new event with its initial version and create entry.
func (s *Service) insert(ctx context.Context, st store.Stores, ev *models.Event) error {
	if err := st.Events.Insert(ctx, ev); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	v, err := s.engine.Snapshot(ctx, st, ev, ev.OwnerID, versions.DescInitial)
	if err != nil {
		return err
	}
	_, err = s.engine.Changelog(ctx, st, ev.ID, ev.OwnerID, models.ActionCreate, nil, v.VersionNumber, nil)
	return err
}

func (s *Service) conflict(ownerID uuid.UUID, found []models.Event) error {
	ids := conflicts.IDs(found)
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, id.String())
	}
	s.logger.Warn("event conflicts with existing events", zap.String("owner_id", ownerID.String()), zap.Strings("conflict_ids", names))
	return apperr.Conflict("event conflicts with existing events", ids)
}

// check logs write races that reached the storage constraints.
func (s *Service) check(err error) error {
	if errors.Is(err, versions.ErrConcurrentModification) || errors.Is(err, store.ErrDuplicate) {
		s.logger.Warn("concurrent modification detected", zap.Error(err))
		return versions.ErrConcurrentModification
	}
	return err
}
