package domain

import "time"

// BidWindow is one user's frozen bidding slot, stored as UTC instants.
type BidWindow struct {
	UserID   int64     `json:"user_id"`
	Position int       `json:"position"`
	Start    time.Time `json:"window_start"`
	End      time.Time `json:"window_end"`
}

// CalculateBidWindows assigns bid windows from bid order positions and an
// area's round schedule.
//
// Users fill days in position order, BiddersPerDay to a day, Monday through
// Friday only (weekends are skipped). Each user's window runs from
// WindowStart to WindowEnd wall-clock time in the declared timezone on
// their assigned day; the stored instants are UTC. DST transitions shift
// the UTC instants but never the nominal wall-clock labels, so nobody
// becomes early or late across a transition.
func CalculateBidWindows(positions []BidOrderPosition, schedule RoundConfig) ([]BidWindow, error) {
	if schedule.BiddersPerDay <= 0 {
		return nil, Errorf(RuleInvalidRoundConfig, "bidders_per_day must be positive, got %d", schedule.BiddersPerDay)
	}
	if schedule.WindowEnd <= schedule.WindowStart {
		return nil, Errorf(RuleInvalidRoundConfig, "window end must be after window start")
	}
	loc, err := time.LoadLocation(schedule.Timezone)
	if err != nil {
		return nil, Errorf(RuleInvalidTimezone, "unknown timezone %q", schedule.Timezone)
	}

	windows := make([]BidWindow, 0, len(positions))
	for _, p := range positions {
		dayIndex := (p.Position - 1) / schedule.BiddersPerDay
		day := addBusinessDays(schedule.StartDate, dayIndex)

		start := atWallClock(day, schedule.WindowStart, loc)
		end := atWallClock(day, schedule.WindowEnd, loc)

		windows = append(windows, BidWindow{
			UserID:   p.UserID,
			Position: p.Position,
			Start:    start.UTC(),
			End:      end.UTC(),
		})
	}
	return windows, nil
}

// addBusinessDays advances a calendar date by n weekdays, skipping
// Saturdays and Sundays. The start date itself counts as day zero.
func addBusinessDays(start time.Time, n int) time.Time {
	day := start
	for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		day = day.AddDate(0, 0, 1)
	}
	for i := 0; i < n; i++ {
		day = day.AddDate(0, 0, 1)
		for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			day = day.AddDate(0, 0, 1)
		}
	}
	return day
}

// atWallClock composes a calendar date with a time-of-day offset in the
// given zone. The zone rules in force on that date decide the UTC instant.
func atWallClock(day time.Time, offset time.Duration, loc *time.Location) time.Time {
	h := int(offset / time.Hour)
	m := int(offset % time.Hour / time.Minute)
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, loc)
}
