package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/ems-calendar/backend/internal/models"
	"github.com/ems-calendar/backend/pkg/database"
)

const grantColumns = `id, event_id, user_id, role, granted_by_id, granted_at`

// Grants is the event permission repository.
type Grants struct {
	db database.DBTX
}

func scanGrant(row scanner) (*models.Permission, error) {
	var (
		p    models.Permission
		role string
	)
	if err := row.Scan(&p.ID, &p.EventID, &p.UserID, &role, &p.GrantedByID, &p.GrantedAt); err != nil {
		return nil, err
	}
	p.Role = models.Role(role)
	p.GrantedAt = p.GrantedAt.UTC()
	return &p, nil
}

// Get returns the grant of userID on eventID.
func (r *Grants) Get(ctx context.Context, eventID, userID uuid.UUID) (*models.Permission, error) {
	p, err := scanGrant(r.db.QueryRow(ctx, `SELECT `+grantColumns+` FROM event_permissions
		WHERE event_id = $1 AND user_id = $2`, eventID, userID))
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListByEvent returns an event's grants in grant order.
func (r *Grants) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Permission, error) {
	rows, err := r.db.Query(ctx, `SELECT `+grantColumns+` FROM event_permissions WHERE event_id = $1
		ORDER BY granted_at, id`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Permission
	for rows.Next() {
		p, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

// Upsert creates a grant or changes the role of the existing one, and reloads p from the stored row.
func (r *Grants) Upsert(ctx context.Context, p *models.Permission) error {
	const q = `INSERT INTO event_permissions (id, event_id, user_id, role, granted_by_id, granted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id, user_id) DO UPDATE SET role = EXCLUDED.role
		RETURNING ` + grantColumns
	stored, err := scanGrant(r.db.QueryRow(ctx, q, p.ID, p.EventID, p.UserID, string(p.Role), p.GrantedByID, p.GrantedAt))
	if err != nil {
		return writeErr("upsert grant", err)
	}
	*p = *stored
	return nil
}

// Delete removes the grant of userID on eventID.
func (r *Grants) Delete(ctx context.Context, eventID, userID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM event_permissions WHERE event_id = $1 AND user_id = $2`, eventID, userID)
	return err
}
