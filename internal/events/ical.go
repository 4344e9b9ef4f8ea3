package events

import (
	"strconv"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/ems-calendar/backend/internal/models"
)

const productID = "-//ems-calendar//events//EN"

// Calendar renders events as a VCALENDAR with one VEVENT each. Recurrence is carried as an RRULE and
// occurrences are not expanded.
func Calendar(list []models.Event, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for _, e := range list {
		ve := cal.AddEvent(e.ID.String())
		ve.SetDtStampTime(stamp.UTC())
		ve.SetCreatedTime(e.CreatedAt.UTC())
		if e.UpdatedAt != nil {
			ve.SetModifiedAt(e.UpdatedAt.UTC())
		}
		ve.SetStartAt(e.StartTime.UTC())
		ve.SetEndAt(e.EndTime.UTC())
		ve.SetSummary(e.Title)
		if e.Description != nil {
			ve.SetDescription(*e.Description)
		}
		if e.Location != nil {
			ve.SetLocation(*e.Location)
		}
		ve.SetProperty(ical.ComponentPropertySequence, strconv.Itoa(e.CurrentVersion))
		if e.IsRecurring && e.RecurrencePattern != nil {
			if rule := e.RecurrencePattern.RRule(e.StartTime); rule != "" {
				ve.AddRrule(rule)
			}
		}
	}
	return cal.Serialize()
}
