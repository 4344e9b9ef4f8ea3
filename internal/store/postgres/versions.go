package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ems-calendar/backend/internal/models"
	"github.com/ems-calendar/backend/pkg/database"
)

const versionColumns = `id, event_id, version_number, data, created_by_id, created_at, change_description`

// Versions is the event version repository. Rows are only ever inserted.
type Versions struct {
	db database.DBTX
}

func scanVersion(row scanner) (*models.EventVersion, error) {
	var (
		v    models.EventVersion
		data []byte
	)
	if err := row.Scan(&v.ID, &v.EventID, &v.VersionNumber, &data, &v.CreatedByID, &v.CreatedAt, &v.ChangeDescription); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &v.Data); err != nil {
		return nil, fmt.Errorf("decode version data: %w", err)
	}
	v.CreatedAt = v.CreatedAt.UTC()
	return &v, nil
}

func (r *Versions) one(ctx context.Context, q string, args ...any) (*models.EventVersion, error) {
	v, err := scanVersion(r.db.QueryRow(ctx, q, args...))
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// GetByNumber returns one version of an event.
func (r *Versions) GetByNumber(ctx context.Context, eventID uuid.UUID, n int) (*models.EventVersion, error) {
	return r.one(ctx, `SELECT `+versionColumns+` FROM event_versions WHERE event_id = $1 AND version_number = $2`, eventID, n)
}

// GetLatest returns the highest-numbered version of an event.
func (r *Versions) GetLatest(ctx context.Context, eventID uuid.UUID) (*models.EventVersion, error) {
	return r.one(ctx, `SELECT `+versionColumns+` FROM event_versions WHERE event_id = $1
		ORDER BY version_number DESC LIMIT 1`, eventID)
}

// ListByEvent returns all versions of an event, newest first.
func (r *Versions) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.EventVersion, error) {
	rows, err := r.db.Query(ctx, `SELECT `+versionColumns+` FROM event_versions WHERE event_id = $1
		ORDER BY version_number DESC`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.EventVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *v)
	}
	return list, rows.Err()
}

// Insert writes a new version. A taken version number yields store.ErrDuplicate.
func (r *Versions) Insert(ctx context.Context, v *models.EventVersion) error {
	data, err := json.Marshal(v.Data)
	if err != nil {
		return fmt.Errorf("encode version data: %w", err)
	}
	const q = `INSERT INTO event_versions (id, event_id, version_number, data, created_by_id, created_at, change_description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.Exec(ctx, q, v.ID, v.EventID, v.VersionNumber, data, v.CreatedByID, v.CreatedAt, v.ChangeDescription); err != nil {
		return writeErr("insert version", err)
	}
	return nil
}
