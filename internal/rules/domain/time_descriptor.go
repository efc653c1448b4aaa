package domain

import (
	"time"

	"github.com/felixgeelhaar/meridian/internal/valuetype"
	"github.com/teambition/rrule-go"
)

// RepeatMode is the repetition mode of a RepeatingOption.
type RepeatMode string

const (
	RepeatNone    RepeatMode = "none"
	RepeatHourly  RepeatMode = "hourly"
	RepeatDaily   RepeatMode = "daily"
	RepeatWeekly  RepeatMode = "weekly"
	RepeatMonthly RepeatMode = "monthly"
	RepeatYearly  RepeatMode = "yearly"
)

// RepeatingOption is a recurrence rule: a mode plus the weekday/monthday
// sets that further qualify weekly/monthly repetition.
type RepeatingOption struct {
	Mode      RepeatMode
	WeekDays  []int // 1..7, Monday=1 .. Sunday=7, ISO-8601 ordering
	MonthDays []int // 1..31
}

// Validate checks the RepeatingOption consistency rule from §3: weekly
// requires non-empty WeekDays, monthly requires non-empty MonthDays,
// every other mode requires both empty.
func (r RepeatingOption) Validate() error {
	switch r.Mode {
	case RepeatWeekly:
		if len(r.WeekDays) == 0 {
			return valuetype.NewError(valuetype.InvalidRepeatingOption, "weekly requires weekDays")
		}
		if len(r.MonthDays) != 0 {
			return valuetype.NewError(valuetype.InvalidRepeatingOption, "weekly must not set monthDays")
		}
	case RepeatMonthly:
		if len(r.MonthDays) == 0 {
			return valuetype.NewError(valuetype.InvalidRepeatingOption, "monthly requires monthDays")
		}
		if len(r.WeekDays) != 0 {
			return valuetype.NewError(valuetype.InvalidRepeatingOption, "monthly must not set weekDays")
		}
	case RepeatNone, RepeatHourly, RepeatDaily, RepeatYearly:
		if len(r.WeekDays) != 0 || len(r.MonthDays) != 0 {
			return valuetype.NewError(valuetype.InvalidRepeatingOption, "mode "+string(r.Mode)+" must not set weekDays or monthDays")
		}
	default:
		return valuetype.NewError(valuetype.InvalidRepeatingOption, "unknown mode "+string(r.Mode))
	}
	for _, d := range r.WeekDays {
		if d < 1 || d > 7 {
			return valuetype.NewError(valuetype.InvalidRepeatingOption, "weekDays out of range")
		}
	}
	for _, d := range r.MonthDays {
		if d < 1 || d > 31 {
			return valuetype.NewError(valuetype.InvalidRepeatingOption, "monthDays out of range")
		}
	}
	return nil
}

var isoWeekdayToRRule = map[int]rrule.Weekday{
	1: rrule.MO, 2: rrule.TU, 3: rrule.WE, 4: rrule.TH,
	5: rrule.FR, 6: rrule.SA, 7: rrule.SU,
}

// toRRule builds the teambition/rrule-go recurrence rule implementing
// this RepeatingOption, anchored at dtstart. Returns nil for RepeatNone
// (a single, non-recurring instance).
func (r RepeatingOption) toRRule(dtstart time.Time) (*rrule.RRule, error) {
	opt := rrule.ROption{Dtstart: dtstart}
	switch r.Mode {
	case RepeatNone:
		return nil, nil
	case RepeatHourly:
		opt.Freq = rrule.HOURLY
	case RepeatDaily:
		opt.Freq = rrule.DAILY
	case RepeatWeekly:
		opt.Freq = rrule.WEEKLY
		for _, d := range r.WeekDays {
			opt.Byweekday = append(opt.Byweekday, isoWeekdayToRRule[d])
		}
	case RepeatMonthly:
		opt.Freq = rrule.MONTHLY
		opt.Bymonthday = append(opt.Bymonthday, r.MonthDays...)
	case RepeatYearly:
		opt.Freq = rrule.YEARLY
	default:
		return nil, valuetype.NewError(valuetype.InvalidRepeatingOption, "unknown mode "+string(r.Mode))
	}
	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, valuetype.NewError(valuetype.InvalidRepeatingOption, err.Error())
	}
	return rule, nil
}

// CalendarItem defines a set of time intervals: either an absolute start
// (DateTime) or a local time-of-day (StartTime, placed on the days its
// RepeatingOption selects; see dtstart), a duration in minutes, and a
// RepeatingOption.
//
// Resolves an Open Question left by the distillation: StartTime with
// RepeatMode none is rejected at Validate — a time-of-day with no
// calendar date and no repetition has no well-defined single instance,
// so it must be paired with a repeating mode (daily/weekly/monthly/...),
// or the item must give an absolute DateTime instead.
type CalendarItem struct {
	DateTime  *time.Time // absolute start, mutually exclusive with StartTime
	StartTime *ClockTime // local time-of-day, mutually exclusive with DateTime
	Duration  int        // minutes, >= 1
	Repeat    RepeatingOption
}

// ClockTime is a local HH:mm time-of-day, stored as separate hour and
// minute fields; wire format is "HH:mm" per §6.
type ClockTime struct {
	Hour   int
	Minute int
}

func (c ClockTime) apply(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour, c.Minute, 0, 0, day.Location())
}

// Validate checks the structural invariants for a CalendarItem.
func (c CalendarItem) Validate() error {
	if c.DateTime == nil && c.StartTime == nil {
		return valuetype.NewError(valuetype.InvalidCalendarItem, "one of dateTime or startTime is required")
	}
	if c.DateTime != nil && c.StartTime != nil {
		return valuetype.NewError(valuetype.InvalidCalendarItem, "dateTime and startTime are mutually exclusive")
	}
	if c.Duration < 1 {
		return valuetype.NewError(valuetype.InvalidCalendarItem, "duration must be >= 1 minute")
	}
	if c.StartTime != nil && c.Repeat.Mode == RepeatNone {
		return valuetype.NewError(valuetype.InvalidCalendarItem, "startTime requires a repeating mode")
	}
	if c.StartTime != nil {
		if c.StartTime.Hour < 0 || c.StartTime.Hour > 23 || c.StartTime.Minute < 0 || c.StartTime.Minute > 59 {
			return valuetype.NewError(valuetype.InvalidCalendarItem, "startTime out of range")
		}
	}
	return c.Repeat.Validate()
}

// dtstart picks the anchor instant the recurrence rule is built from,
// relative to ref rather than the real wall clock: rrule.Before/Between
// only ever produce occurrences at-or-after Dtstart, so ref must be the
// instant actually being evaluated (the t passed to Contains, or the
// after bound of a FiredBetween window), not time.Now(). Re-anchoring to
// time.Now() here would silently return no occurrence for any window in
// the past relative to the real clock, e.g. a catch-up EvaluateTime
// after downtime. A clock-time item is anchored one year before ref:
// far enough back that Before/Between can find any occurrence up to and
// including ref, while Byweekday/Bymonthday (not the anchor day itself)
// determine which days weekly/monthly recurrences actually land on.
func (c CalendarItem) dtstart(ref time.Time) time.Time {
	if c.DateTime != nil {
		return c.DateTime.In(ref.Location())
	}
	return c.StartTime.apply(ref.AddDate(-1, 0, 0))
}

// Contains reports whether t falls inside any instance of this item.
func (c CalendarItem) Contains(t time.Time) bool {
	start := c.dtstart(t)
	dur := time.Duration(c.Duration) * time.Minute

	if c.Repeat.Mode == RepeatNone {
		return !t.Before(start) && t.Before(start.Add(dur))
	}

	rule, err := c.Repeat.toRRule(start)
	if err != nil || rule == nil {
		return false
	}
	// The most recent occurrence at-or-before t; t is contained iff it
	// hasn't yet run past that occurrence's duration.
	occ := rule.Before(t.Add(time.Nanosecond), true)
	if occ.IsZero() {
		return false
	}
	return t.Before(occ.Add(dur))
}

// TimeEventItem defines discrete instants: either an absolute DateTime
// or a local Time, plus a RepeatingOption.
type TimeEventItem struct {
	DateTime *time.Time
	Time     *ClockTime
	Repeat   RepeatingOption
}

// Validate checks the structural invariants for a TimeEventItem.
func (t TimeEventItem) Validate() error {
	if t.DateTime == nil && t.Time == nil {
		return valuetype.NewError(valuetype.InvalidTimeEventItem, "one of dateTime or time is required")
	}
	if t.DateTime != nil && t.Time != nil {
		return valuetype.NewError(valuetype.InvalidTimeEventItem, "dateTime and time are mutually exclusive")
	}
	if t.Time != nil && t.Repeat.Mode == RepeatNone {
		return valuetype.NewError(valuetype.InvalidTimeEventItem, "time requires a repeating mode")
	}
	if t.Time != nil {
		if t.Time.Hour < 0 || t.Time.Hour > 23 || t.Time.Minute < 0 || t.Time.Minute > 59 {
			return valuetype.NewError(valuetype.InvalidTimeEventItem, "time out of range")
		}
	}
	return t.Repeat.Validate()
}

// dtstart anchors this item's recurrence the same way CalendarItem.dtstart
// does, relative to ref rather than time.Now() — see that method's
// comment for why.
func (t TimeEventItem) dtstart(ref time.Time) time.Time {
	if t.DateTime != nil {
		return t.DateTime.In(ref.Location())
	}
	return t.Time.apply(ref.AddDate(-1, 0, 0))
}

// FiredBetween reports whether any instance of this item falls in the
// half-open window (after, upTo].
func (t TimeEventItem) FiredBetween(after, upTo time.Time) bool {
	start := t.dtstart(after)

	if t.Repeat.Mode == RepeatNone {
		return start.After(after) && !start.After(upTo)
	}
	rule, err := t.Repeat.toRRule(start)
	if err != nil || rule == nil {
		return false
	}
	occs := rule.Between(after.Add(time.Nanosecond), upTo, true)
	return len(occs) > 0
}

// TimeDescriptor is a CalendarItem list ⊕ a TimeEventItem list (either
// or both may be present).
type TimeDescriptor struct {
	CalendarItems  []CalendarItem
	TimeEventItems []TimeEventItem
}

// Validate checks every item.
func (td TimeDescriptor) Validate() error {
	for _, c := range td.CalendarItems {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	for _, e := range td.TimeEventItems {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Empty reports whether the descriptor has no items at all.
func (td TimeDescriptor) Empty() bool {
	return len(td.CalendarItems) == 0 && len(td.TimeEventItems) == 0
}

// IsTimeActive reports whether the rule is "time-active" per §3: the
// calendar item list is empty, or any calendar item currently contains
// the clock. TimeEventItems play no part in it.
func (td TimeDescriptor) IsTimeActive(now time.Time) bool {
	if len(td.CalendarItems) == 0 {
		return true
	}
	for _, c := range td.CalendarItems {
		if c.Contains(now) {
			return true
		}
	}
	return false
}

// AnyTimeEventFired reports whether any TimeEventItem instance fell in
// (after, upTo].
func (td TimeDescriptor) AnyTimeEventFired(after, upTo time.Time) bool {
	for _, e := range td.TimeEventItems {
		if e.FiredBetween(after, upTo) {
			return true
		}
	}
	return false
}
