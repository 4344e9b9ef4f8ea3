package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ems-calendar/backend/internal/models"
	"github.com/ems-calendar/backend/pkg/database"
)

// Changelog is the append-only audit log repository.
type Changelog struct {
	db database.DBTX
}

// Insert appends an entry.
func (r *Changelog) Insert(ctx context.Context, entry *models.ChangelogEntry) error {
	changes, err := jsonArg(diffPtr(entry.Changes))
	if err != nil {
		return fmt.Errorf("encode changes: %w", err)
	}
	const q = `INSERT INTO event_changelogs (id, event_id, user_id, timestamp, action, version_from, version_to, changes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = r.db.Exec(ctx, q, entry.ID, entry.EventID, entry.UserID, entry.Timestamp, string(entry.Action),
		entry.VersionFrom, entry.VersionTo, changes)
	if err != nil {
		return writeErr("insert changelog", err)
	}
	return nil
}

// ListByEvent returns an event's entries, newest first.
func (r *Changelog) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.ChangelogEntry, error) {
	const q = `SELECT id, event_id, user_id, timestamp, action, version_from, version_to, changes
		FROM event_changelogs WHERE event_id = $1 ORDER BY timestamp DESC, version_to DESC`
	rows, err := r.db.Query(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.ChangelogEntry
	for rows.Next() {
		var (
			e       models.ChangelogEntry
			action  string
			changes []byte
		)
		if err := rows.Scan(&e.ID, &e.EventID, &e.UserID, &e.Timestamp, &action, &e.VersionFrom, &e.VersionTo, &changes); err != nil {
			return nil, err
		}
		e.Action = models.Action(action)
		e.Timestamp = e.Timestamp.UTC()
		if len(changes) > 0 && string(changes) != "null" {
			if err := json.Unmarshal(changes, &e.Changes); err != nil {
				return nil, fmt.Errorf("decode changes: %w", err)
			}
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

func diffPtr(d models.Diff) *models.Diff {
	if d == nil {
		return nil
	}
	return &d
}
