package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ems-calendar/backend/internal/models"
	"github.com/ems-calendar/backend/internal/recurrence"
	"github.com/ems-calendar/backend/pkg/database"
)

const eventColumns = `id, title, description, start_time, end_time, location, is_recurring, recurrence_pattern,
	owner_id, created_at, updated_at, current_version`

// Events is the event repository.
type Events struct {
	db database.DBTX
}

func scanEvent(row scanner) (*models.Event, error) {
	var (
		e       models.Event
		pattern []byte
	)
	if err := row.Scan(&e.ID, &e.Title, &e.Description, &e.StartTime, &e.EndTime, &e.Location, &e.IsRecurring, &pattern,
		&e.OwnerID, &e.CreatedAt, &e.UpdatedAt, &e.CurrentVersion); err != nil {
		return nil, err
	}
	if len(pattern) > 0 && string(pattern) != "null" {
		var p recurrence.Pattern
		if err := json.Unmarshal(pattern, &p); err != nil {
			return nil, fmt.Errorf("decode recurrence pattern: %w", err)
		}
		e.RecurrencePattern = &p
	}
	e.StartTime = e.StartTime.UTC()
	e.EndTime = e.EndTime.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	if e.UpdatedAt != nil {
		u := e.UpdatedAt.UTC()
		e.UpdatedAt = &u
	}
	return &e, nil
}

func (r *Events) get(ctx context.Context, q string, id uuid.UUID) (*models.Event, error) {
	e, err := scanEvent(r.db.QueryRow(ctx, q, id))
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetByID returns an event by ID.
func (r *Events) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	return r.get(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
}

// GetByIDForUpdate returns an event by ID and locks its row.
func (r *Events) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	return r.get(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id)
}

func (r *Events) list(ctx context.Context, q string, args ...any) ([]models.Event, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *e)
	}
	return list, rows.Err()
}

// ListByOwner returns a page of the owner's events by start time.
func (r *Events) ListByOwner(ctx context.Context, ownerID uuid.UUID, offset, limit int) ([]models.Event, error) {
	return r.list(ctx, `SELECT `+eventColumns+` FROM events WHERE owner_id = $1
		ORDER BY start_time, id OFFSET $2 LIMIT $3`, ownerID, offset, limit)
}

// ListInRange returns events contained in [start, end], optionally for one owner.
func (r *Events) ListInRange(ctx context.Context, start, end time.Time, ownerID *uuid.UUID) ([]models.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events WHERE start_time >= $1 AND end_time <= $2`
	args := []any{start.UTC(), end.UTC()}
	if ownerID != nil {
		q += ` AND owner_id = $3`
		args = append(args, *ownerID)
	}
	return r.list(ctx, q+` ORDER BY start_time, id`, args...)
}

// ListOwnedExcept returns all of the owner's events, skipping exclude when set.
func (r *Events) ListOwnedExcept(ctx context.Context, ownerID uuid.UUID, exclude *uuid.UUID) ([]models.Event, error) {
	if exclude == nil {
		return r.list(ctx, `SELECT `+eventColumns+` FROM events WHERE owner_id = $1 ORDER BY start_time, id`, ownerID)
	}
	return r.list(ctx, `SELECT `+eventColumns+` FROM events WHERE owner_id = $1 AND id <> $2 ORDER BY start_time, id`, ownerID, *exclude)
}

// Insert creates an event row.
func (r *Events) Insert(ctx context.Context, e *models.Event) error {
	pattern, err := jsonArg(e.RecurrencePattern)
	if err != nil {
		return fmt.Errorf("encode recurrence pattern: %w", err)
	}
	const q = `INSERT INTO events (id, title, description, start_time, end_time, location, is_recurring, recurrence_pattern,
		owner_id, created_at, updated_at, current_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = r.db.Exec(ctx, q, e.ID, e.Title, e.Description, e.StartTime, e.EndTime, e.Location, e.IsRecurring, pattern,
		e.OwnerID, e.CreatedAt, e.UpdatedAt, e.CurrentVersion)
	if err != nil {
		return writeErr("insert event", err)
	}
	return nil
}

// Update writes every mutable column of e.
func (r *Events) Update(ctx context.Context, e *models.Event) error {
	pattern, err := jsonArg(e.RecurrencePattern)
	if err != nil {
		return fmt.Errorf("encode recurrence pattern: %w", err)
	}
	const q = `UPDATE events SET title = $1, description = $2, start_time = $3, end_time = $4, location = $5,
		is_recurring = $6, recurrence_pattern = $7, updated_at = $8, current_version = $9 WHERE id = $10`
	_, err = r.db.Exec(ctx, q, e.Title, e.Description, e.StartTime, e.EndTime, e.Location,
		e.IsRecurring, pattern, e.UpdatedAt, e.CurrentVersion, e.ID)
	if err != nil {
		return writeErr("update event", err)
	}
	return nil
}

// Delete removes an event; grants, versions and changelog rows go with it by cascade.
func (r *Events) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	return err
}
