package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/meridian/internal/valuetype"
)

func TestRepeatingOption_Validate(t *testing.T) {
	cases := []struct {
		name    string
		opt     RepeatingOption
		wantErr bool
	}{
		{"none is fine empty", RepeatingOption{Mode: RepeatNone}, false},
		{"weekly requires weekdays", RepeatingOption{Mode: RepeatWeekly}, true},
		{"weekly with weekdays ok", RepeatingOption{Mode: RepeatWeekly, WeekDays: []int{1, 3}}, false},
		{"weekly must not set monthdays", RepeatingOption{Mode: RepeatWeekly, WeekDays: []int{1}, MonthDays: []int{2}}, true},
		{"monthly requires monthdays", RepeatingOption{Mode: RepeatMonthly}, true},
		{"monthly with monthdays ok", RepeatingOption{Mode: RepeatMonthly, MonthDays: []int{15}}, false},
		{"daily must not set weekdays", RepeatingOption{Mode: RepeatDaily, WeekDays: []int{1}}, true},
		{"weekday out of range", RepeatingOption{Mode: RepeatWeekly, WeekDays: []int{8}}, true},
		{"unknown mode", RepeatingOption{Mode: "bogus"}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.opt.Validate()
			if c.wantErr {
				require.Error(t, err)
				assert.Equal(t, valuetype.InvalidRepeatingOption, valuetype.KindOf(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCalendarItem_Validate(t *testing.T) {
	now := time.Now()

	err := (CalendarItem{Duration: 10}).Validate()
	require.Error(t, err)
	assert.Equal(t, valuetype.InvalidCalendarItem, valuetype.KindOf(err))

	good := CalendarItem{DateTime: &now, Duration: 10, Repeat: RepeatingOption{Mode: RepeatNone}}
	assert.NoError(t, good.Validate())

	bothSet := CalendarItem{DateTime: &now, StartTime: &ClockTime{Hour: 1}, Duration: 10}
	err = bothSet.Validate()
	require.Error(t, err)
	assert.Equal(t, valuetype.InvalidCalendarItem, valuetype.KindOf(err))

	startTimeNoRepeat := CalendarItem{StartTime: &ClockTime{Hour: 9}, Duration: 10, Repeat: RepeatingOption{Mode: RepeatNone}}
	err = startTimeNoRepeat.Validate()
	require.Error(t, err)
	assert.Equal(t, valuetype.InvalidCalendarItem, valuetype.KindOf(err))

	startTimeRepeating := CalendarItem{
		StartTime: &ClockTime{Hour: 9},
		Duration:  10,
		Repeat:    RepeatingOption{Mode: RepeatDaily},
	}
	assert.NoError(t, startTimeRepeating.Validate())
}

func TestCalendarItem_Contains_NonRepeating(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	item := CalendarItem{DateTime: &start, Duration: 30, Repeat: RepeatingOption{Mode: RepeatNone}}

	assert.True(t, item.Contains(start.Add(10*time.Minute)))
	assert.False(t, item.Contains(start.Add(-time.Minute)))
	assert.False(t, item.Contains(start.Add(31*time.Minute)))
}

func TestCalendarItem_Contains_DailyRepeating(t *testing.T) {
	item := CalendarItem{
		StartTime: &ClockTime{Hour: 9, Minute: 0},
		Duration:  60,
		Repeat:    RepeatingOption{Mode: RepeatDaily},
	}
	today := time.Now()
	within := time.Date(today.Year(), today.Month(), today.Day(), 9, 30, 0, 0, today.Location())
	outside := time.Date(today.Year(), today.Month(), today.Day(), 11, 0, 0, 0, today.Location())

	assert.True(t, item.Contains(within))
	assert.False(t, item.Contains(outside))
}

// TestCalendarItem_Contains_WeeklyRepeating_FixedClock pins the clock to a
// known Monday and steps it 07:59 -> 08:00 -> 09:00, the transition spec §8
// Scenario 6 describes for a weekly CalendarItem. It also evaluates a day
// before the server's real clock (the dtstart anchor used to be re-derived
// from time.Now() inside CalendarItem.dtstart, which made any window in the
// past silently return false regardless of the actual weekday/time match).
func TestCalendarItem_Contains_WeeklyRepeating_FixedClock(t *testing.T) {
	item := CalendarItem{
		StartTime: &ClockTime{Hour: 8, Minute: 0},
		Duration:  60,
		Repeat:    RepeatingOption{Mode: RepeatWeekly, WeekDays: []int{1}}, // Monday
	}

	// 2024-01-01 is a Monday, chosen well in the past relative to whenever
	// this test actually runs.
	before := time.Date(2024, 1, 1, 7, 59, 0, 0, time.UTC)
	start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	boundary := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	assert.False(t, item.Contains(before), "07:59 is before the weekly window opens")
	assert.True(t, item.Contains(start), "08:00 is the start of the weekly window")
	assert.False(t, item.Contains(boundary), "09:00 is the exclusive end of the 60-minute window")

	// A non-Monday at the same clock time must not match.
	tuesday := time.Date(2024, 1, 2, 8, 30, 0, 0, time.UTC)
	assert.False(t, item.Contains(tuesday))

	// The following week's occurrence must also be found, confirming the
	// rule actually repeats rather than matching only its anchor week.
	nextWeek := time.Date(2024, 1, 8, 8, 30, 0, 0, time.UTC)
	assert.True(t, item.Contains(nextWeek))
}

func TestTimeDescriptor_IsTimeActive(t *testing.T) {
	empty := TimeDescriptor{}
	assert.True(t, empty.IsTimeActive(time.Now()), "no calendar items means always active")

	start := time.Now().Add(-time.Minute)
	td := TimeDescriptor{CalendarItems: []CalendarItem{{DateTime: &start, Duration: 30, Repeat: RepeatingOption{Mode: RepeatNone}}}}
	assert.True(t, td.IsTimeActive(time.Now()))

	past := time.Now().Add(-time.Hour)
	tdInactive := TimeDescriptor{CalendarItems: []CalendarItem{{DateTime: &past, Duration: 1, Repeat: RepeatingOption{Mode: RepeatNone}}}}
	assert.False(t, tdInactive.IsTimeActive(time.Now()))
}

func TestTimeDescriptor_AnyTimeEventFired(t *testing.T) {
	at := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	td := TimeDescriptor{TimeEventItems: []TimeEventItem{{DateTime: &at, Repeat: RepeatingOption{Mode: RepeatNone}}}}

	assert.True(t, td.AnyTimeEventFired(at.Add(-time.Minute), at.Add(time.Minute)))
	assert.False(t, td.AnyTimeEventFired(at.Add(time.Minute), at.Add(time.Hour)))
}

func TestTimeDescriptor_Empty(t *testing.T) {
	assert.True(t, TimeDescriptor{}.Empty())

	now := time.Now()
	assert.False(t, TimeDescriptor{CalendarItems: []CalendarItem{{DateTime: &now, Duration: 1}}}.Empty())
}
