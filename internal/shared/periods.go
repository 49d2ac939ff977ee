package shared

import "time"

// PeriodID formats a point in time as its accounting period identifier.
func PeriodID(t time.Time) string {
	return t.Format("2006-01")
}

// PreviousPeriodID returns the identifier of the calendar month immediately
// preceding now. Rollover closes this period.
func PreviousPeriodID(now time.Time) string {
	y, m, _ := now.Date()
	firstOfMonth := time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
	return firstOfMonth.AddDate(0, -1, 0).Format("2006-01")
}

// LookbackStart returns midnight, in now's location, of the day `days` days
// before now. Rule conditions count occurrences from this instant onward.
// The monthly window is a fixed 30 days, not calendar-month aware.
func LookbackStart(now time.Time, days int) time.Time {
	d := now.AddDate(0, 0, -days)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, now.Location())
}
