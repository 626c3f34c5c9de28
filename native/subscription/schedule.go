package subscription

import "time"

// NextBillingDate advances a date by one billing interval using calendar
// arithmetic. Month and year additions clamp the day-of-month to the last
// valid day of the target month, so Jan 31 plus a month lands on Feb 29 in a
// leap year and Feb 28 otherwise. Unrecognized intervals count as a month.
func NextBillingDate(date time.Time, interval string) time.Time {
	switch interval {
	case IntervalDay:
		return date.AddDate(0, 0, 1)
	case IntervalWeek:
		return date.AddDate(0, 0, 7)
	case IntervalYear:
		return addMonthsClamped(date, 12)
	default:
		return addMonthsClamped(date, 1)
	}
}

// addMonthsClamped adds months without the normalization time.AddDate does,
// where Jan 31 + 1 month rolls over to Mar 2 or 3.
func addMonthsClamped(date time.Time, months int) time.Time {
	year, month, day := date.Date()
	anchor := time.Date(year, month, 1, date.Hour(), date.Minute(), date.Second(), date.Nanosecond(), date.Location())
	anchor = anchor.AddDate(0, months, 0)
	if last := daysInMonth(anchor.Year(), anchor.Month()); day > last {
		day = last
	}
	return time.Date(anchor.Year(), anchor.Month(), day, date.Hour(), date.Minute(), date.Second(), date.Nanosecond(), date.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
