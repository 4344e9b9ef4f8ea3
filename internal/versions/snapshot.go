// Package versions records immutable event snapshots and the changelog that links them, and rolls events
// back to earlier snapshots.
package versions

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/ems-calendar/backend/internal/models"
)

// Fields never reported by Diff.
var immutableFields = map[string]bool{"id": true, "created_at": true}

// SnapshotOf serializes e into plain JSON values with every time in UTC.
func SnapshotOf(e *models.Event) (models.Snapshot, error) {
	c := e.Clone()
	c.StartTime = c.StartTime.UTC()
	c.EndTime = c.EndTime.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	if c.UpdatedAt != nil {
		u := c.UpdatedAt.UTC()
		c.UpdatedAt = &u
	}
	if c.RecurrencePattern != nil {
		c.RecurrencePattern.Normalize()
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	var s models.Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, nil
}

// Restore decodes a snapshot back into an event.
func Restore(s models.Snapshot) (*models.Event, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	var e models.Event
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &e, nil
}

// Diff returns every field, other than id and created_at, whose value differs between before and after.
// A field present on one side only is reported with nil on the other.
func Diff(before, after models.Snapshot) models.Diff {
	d := models.Diff{}
	for k, ov := range before {
		if immutableFields[k] {
			continue
		}
		nv, ok := after[k]
		if !ok || !reflect.DeepEqual(ov, nv) {
			d[k] = models.FieldChange{Old: ov, New: nv}
		}
	}
	for k, nv := range after {
		if immutableFields[k] {
			continue
		}
		if _, ok := before[k]; !ok {
			d[k] = models.FieldChange{Old: nil, New: nv}
		}
	}
	return d
}

// restoreFields copies the fields a rollback may change from src onto dst.
func restoreFields(dst, src *models.Event) {
	dst.Title = src.Title
	dst.Description = src.Description
	dst.StartTime = models.StorageTime(src.StartTime)
	dst.EndTime = models.StorageTime(src.EndTime)
	dst.Location = src.Location
	dst.IsRecurring = src.IsRecurring
	dst.RecurrencePattern = src.RecurrencePattern
}
