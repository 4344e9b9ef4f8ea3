// Package recurrence holds the stored shape of a recurrence rule. Patterns are validated and rendered as
// RRULE text; they are never expanded into occurrences.
package recurrence

import (
	"time"

	"github.com/teambition/rrule-go"

	"github.com/ems-calendar/backend/internal/apperr"
	"github.com/ems-calendar/backend/pkg/utils"
)

// Frequency is how often a pattern repeats.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

var validate = utils.NewValidator()

// days_of_week uses 0 = Monday ... 6 = Sunday, which matches rrule-go ordering.
var weekdays = []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}

var frequencies = map[Frequency]rrule.Frequency{
	Daily:   rrule.DAILY,
	Weekly:  rrule.WEEKLY,
	Monthly: rrule.MONTHLY,
	Yearly:  rrule.YEARLY,
}

// Pattern is the recurrence payload stored with a recurring event.
type Pattern struct {
	Frequency   Frequency  `json:"frequency" validate:"required,oneof=daily weekly monthly yearly"`
	Interval    int        `json:"interval" validate:"gte=0"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	Count       *int       `json:"count,omitempty" validate:"omitempty,gte=1"`
	DaysOfWeek  []int      `json:"days_of_week,omitempty" validate:"omitempty,dive,gte=0,lte=6"`
	DayOfMonth  *int       `json:"day_of_month,omitempty" validate:"omitempty,gte=1,lte=31"`
	MonthOfYear *int       `json:"month_of_year,omitempty" validate:"omitempty,gte=1,lte=12"`
}

// Normalize fills defaults and moves EndDate to UTC so stored snapshots compare stably.
func (p *Pattern) Normalize() {
	if p.Interval == 0 {
		p.Interval = 1
	}
	if p.EndDate != nil {
		t := p.EndDate.UTC().Truncate(time.Microsecond)
		p.EndDate = &t
	}
}

// Validate checks field ranges and that the pattern forms a valid RRULE.
func (p Pattern) Validate() error {
	if err := validate.Struct(p); err != nil {
		if _, ok := frequencies[p.Frequency]; !ok {
			return apperr.Validation("frequency must be one of daily, weekly, monthly, yearly")
		}
		return apperr.Validation("invalid recurrence pattern: %s", utils.DescribeValidation(err))
	}
	if _, err := rrule.NewRRule(p.Option(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC))); err != nil {
		return apperr.Validation("invalid recurrence pattern: %v", err)
	}
	return nil
}

// Option converts the pattern into rrule options anchored at dtstart.
func (p Pattern) Option(dtstart time.Time) rrule.ROption {
	opt := rrule.ROption{
		Freq:     frequencies[p.Frequency],
		Interval: p.Interval,
		Dtstart:  dtstart.UTC(),
	}
	if opt.Interval == 0 {
		opt.Interval = 1
	}
	if p.Count != nil {
		opt.Count = *p.Count
	} else if p.EndDate != nil {
		// COUNT and UNTIL are mutually exclusive in RRULE; COUNT wins.
		opt.Until = p.EndDate.UTC()
	}
	for _, d := range p.DaysOfWeek {
		if d >= 0 && d < len(weekdays) {
			opt.Byweekday = append(opt.Byweekday, weekdays[d])
		}
	}
	if p.DayOfMonth != nil {
		opt.Bymonthday = []int{*p.DayOfMonth}
	}
	if p.MonthOfYear != nil {
		opt.Bymonth = []int{*p.MonthOfYear}
	}
	return opt
}

// RRule renders the pattern as an RRULE value (without DTSTART), e.g. "FREQ=WEEKLY;INTERVAL=1;BYDAY=MO".
func (p Pattern) RRule(dtstart time.Time) string {
	opt := p.Option(dtstart)
	return opt.RRuleString()
}
