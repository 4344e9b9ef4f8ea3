// Package conflicts finds events of one owner whose time intervals overlap a candidate interval.
package conflicts

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ems-calendar/backend/internal/models"
	"github.com/ems-calendar/backend/internal/store"
)

// Overlaps reports whether the half-open intervals [s1,e1) and [s2,e2) share an instant.
// Intervals that merely touch do not overlap.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// Detector checks candidate intervals against stored events.
type Detector struct {
	events store.EventStore
}

// NewDetector creates a detector over an event store.
func NewDetector(events store.EventStore) *Detector {
	return &Detector{events: events}
}

// FindConflicts returns the owner's events overlapping [start, end), ordered by start time then id.
// exclude, when set, is skipped so an event never conflicts with its own stored interval.
func (d *Detector) FindConflicts(ctx context.Context, ownerID uuid.UUID, start, end time.Time, exclude *uuid.UUID) ([]models.Event, error) {
	candidates, err := d.events.ListOwnedExcept(ctx, ownerID, exclude)
	if err != nil {
		return nil, fmt.Errorf("list owner events: %w", err)
	}
	return Filter(candidates, start, end), nil
}

// Filter returns the events of list overlapping [start, end), ordered by start time then id.
func Filter(list []models.Event, start, end time.Time) []models.Event {
	start, end = start.UTC(), end.UTC()
	var out []models.Event
	for _, e := range list {
		if Overlaps(start, end, e.StartTime.UTC(), e.EndTime.UTC()) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// IDs returns the ids of list in order.
func IDs(list []models.Event) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(list))
	for _, e := range list {
		ids = append(ids, e.ID)
	}
	return ids
}
