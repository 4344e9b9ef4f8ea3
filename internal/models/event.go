package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ems-calendar/backend/internal/apperr"
	"github.com/ems-calendar/backend/internal/recurrence"
	"github.com/ems-calendar/backend/pkg/utils"
)

var validate = utils.NewValidator()

// Precision is the resolution stored timestamps keep; Postgres timestamptz stores microseconds.
const Precision = time.Microsecond

// StorageTime returns t in UTC at storage precision.
func StorageTime(t time.Time) time.Time {
	return t.UTC().Truncate(Precision)
}

// Event is a scheduled calendar item.
type Event struct {
	ID                uuid.UUID           `json:"id"`
	Title             string              `json:"title"`
	Description       *string             `json:"description"`
	StartTime         time.Time           `json:"start_time"`
	EndTime           time.Time           `json:"end_time"`
	Location          *string             `json:"location"`
	IsRecurring       bool                `json:"is_recurring"`
	RecurrencePattern *recurrence.Pattern `json:"recurrence_pattern"`
	OwnerID           uuid.UUID           `json:"owner_id"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         *time.Time          `json:"updated_at"`
	CurrentVersion    int                 `json:"current_version"`
}

// EventInput holds the fields supplied when creating an event.
type EventInput struct {
	Title             string              `json:"title" validate:"required,max=255"`
	Description       *string             `json:"description"`
	StartTime         time.Time           `json:"start_time" validate:"required"`
	EndTime           time.Time           `json:"end_time" validate:"required"`
	Location          *string             `json:"location"`
	IsRecurring       bool                `json:"is_recurring"`
	RecurrencePattern *recurrence.Pattern `json:"recurrence_pattern" validate:"-"`
}

// Validate applies the schema rules: end strictly after start, pattern present iff recurring.
func (in EventInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return apperr.Validation("invalid event: %s", utils.DescribeValidation(err))
	}
	if !in.EndTime.After(in.StartTime) {
		return apperr.Validation("end time must be after start time")
	}
	if in.IsRecurring && in.RecurrencePattern == nil {
		return apperr.Validation("recurrence pattern required for recurring events")
	}
	if !in.IsRecurring && in.RecurrencePattern != nil {
		return apperr.Validation("recurrence pattern given for a non-recurring event")
	}
	if in.RecurrencePattern != nil {
		return in.RecurrencePattern.Validate()
	}
	return nil
}

// NewEvent builds an unsaved event owned by ownerID from validated input.
func NewEvent(ownerID uuid.UUID, in EventInput, now time.Time) *Event {
	e := &Event{
		ID:          uuid.New(),
		Title:       in.Title,
		Description: in.Description,
		StartTime:   StorageTime(in.StartTime),
		EndTime:     StorageTime(in.EndTime),
		Location:    in.Location,
		IsRecurring: in.IsRecurring,
		OwnerID:     ownerID,
		CreatedAt:   StorageTime(now),
	}
	if in.RecurrencePattern != nil {
		p := *in.RecurrencePattern
		p.Normalize()
		e.RecurrencePattern = &p
	}
	return e
}

// Input returns the event's mutable fields in input form, for revalidation after a partial update.
func (e *Event) Input() EventInput {
	return EventInput{
		Title:             e.Title,
		Description:       e.Description,
		StartTime:         e.StartTime,
		EndTime:           e.EndTime,
		Location:          e.Location,
		IsRecurring:       e.IsRecurring,
		RecurrencePattern: e.RecurrencePattern,
	}
}

// EventPatch is a partial update; nil fields are left untouched.
type EventPatch struct {
	Title             *string             `json:"title"`
	Description       *string             `json:"description"`
	StartTime         *time.Time          `json:"start_time"`
	EndTime           *time.Time          `json:"end_time"`
	Location          *string             `json:"location"`
	IsRecurring       *bool               `json:"is_recurring"`
	RecurrencePattern *recurrence.Pattern `json:"recurrence_pattern"`
}

// TouchesInterval reports whether the patch moves the event in time.
func (p EventPatch) TouchesInterval() bool {
	return p.StartTime != nil || p.EndTime != nil
}

// Apply copies the supplied fields onto e. Turning recurrence off without a new pattern clears the stored one.
func (e *Event) Apply(p EventPatch) {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Description != nil {
		e.Description = p.Description
	}
	if p.StartTime != nil {
		e.StartTime = StorageTime(*p.StartTime)
	}
	if p.EndTime != nil {
		e.EndTime = StorageTime(*p.EndTime)
	}
	if p.Location != nil {
		e.Location = p.Location
	}
	if p.IsRecurring != nil {
		e.IsRecurring = *p.IsRecurring
		if !e.IsRecurring && p.RecurrencePattern == nil {
			e.RecurrencePattern = nil
		}
	}
	if p.RecurrencePattern != nil {
		rp := *p.RecurrencePattern
		rp.Normalize()
		e.RecurrencePattern = &rp
	}
}

// Clone returns a deep copy of e.
func (e *Event) Clone() *Event {
	c := *e
	if e.Description != nil {
		d := *e.Description
		c.Description = &d
	}
	if e.Location != nil {
		l := *e.Location
		c.Location = &l
	}
	if e.UpdatedAt != nil {
		u := *e.UpdatedAt
		c.UpdatedAt = &u
	}
	if e.RecurrencePattern != nil {
		p := *e.RecurrencePattern
		p.DaysOfWeek = append([]int(nil), e.RecurrencePattern.DaysOfWeek...)
		c.RecurrencePattern = &p
	}
	return &c
}
