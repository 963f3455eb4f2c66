// Package calendar implements ISO-8601 week arithmetic on civil dates.
//
// All dates handled by this package are civil dates represented as time.Time values at
// midnight UTC. Week 1 of an ISO year is the week holding the year's first Thursday
// (equivalently the week holding January 4th), so the ISO year of a week can differ
// from the Gregorian year of its first or last day.
package calendar

import (
	"errors"
	"time"
)

const (
	daysPerWeek = 7
	minYear     = 1
	maxYear     = 9999
)

var (
	ErrInvalidWeekNumber = errors.New("invalid ISO week number")
	ErrInvalidYear       = errors.New("invalid ISO year")
	ErrInvalidMonth      = errors.New("invalid month")
)

// WeekInfo describes one ISO week. It is derived data and is never persisted.
type WeekInfo struct {
	ISOYear       int
	ISOWeek       int
	StartDate     time.Time // Monday
	EndDate       time.Time // Sunday
	Days          [daysPerWeek]time.Time
	MonthsCovered []time.Month // in order of appearance
	Shared        bool
}

// Covers reports whether m is one of the calendar months the week touches.
func (w WeekInfo) Covers(m time.Month) bool {
	for _, covered := range w.MonthsCovered {
		if covered == m {
			return true
		}
	}
	return false
}

// OtherMonths returns the months the week touches besides m.
func (w WeekInfo) OtherMonths(m time.Month) []time.Month {
	others := make([]time.Month, 0, len(w.MonthsCovered))
	for _, covered := range w.MonthsCovered {
		if covered != m {
			others = append(others, covered)
		}
	}
	return others
}

// Date returns the civil date y-m-d at midnight UTC.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Civil truncates t to its civil date (in t's own location) at midnight UTC.
func Civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// isoWeekday numbers days Monday=1 .. Sunday=7.
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

func isLeap(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

func addDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// WeeksInYear returns 53 when isoYear is a long ISO year, 52 otherwise.
// A year has 53 ISO weeks iff January 1st is a Thursday, or the year is a leap year
// and January 1st is a Wednesday.
func WeeksInYear(isoYear int) int {
	switch Date(isoYear, time.January, 1).Weekday() {
	case time.Thursday:
		return 53
	case time.Wednesday:
		if isLeap(isoYear) {
			return 53
		}
	}
	return 52
}

// firstThursday returns the Thursday of ISO week 1 of isoYear.
func firstThursday(isoYear int) time.Time {
	jan4 := Date(isoYear, time.January, 4)
	monday := addDays(jan4, 1-isoWeekday(jan4))
	return addDays(monday, 3)
}

// Resolve returns the metadata of ISO week isoWeek of isoYear.
func Resolve(isoYear, isoWeek int) (WeekInfo, error) {
	if isoYear < minYear || isoYear > maxYear {
		return WeekInfo{}, ErrInvalidYear
	}
	if isoWeek < 1 || isoWeek > WeeksInYear(isoYear) {
		return WeekInfo{}, ErrInvalidWeekNumber
	}

	thursday := addDays(firstThursday(isoYear), (isoWeek-1)*daysPerWeek)
	monday := addDays(thursday, -3)

	info := WeekInfo{
		ISOYear:   isoYear,
		ISOWeek:   isoWeek,
		StartDate: monday,
		EndDate:   addDays(monday, daysPerWeek-1),
	}
	for i := 0; i < daysPerWeek; i++ {
		day := addDays(monday, i)
		info.Days[i] = day
		if !info.Covers(day.Month()) {
			info.MonthsCovered = append(info.MonthsCovered, day.Month())
		}
	}
	info.Shared = len(info.MonthsCovered) > 1
	return info, nil
}

// ISOWeekOf returns the ISO year and week holding the civil date of t.
// Callers keying records by week must use the returned isoYear, not t.Year().
func ISOWeekOf(t time.Time) (isoYear, isoWeek int) {
	day := Civil(t)
	thursday := addDays(day, 4-isoWeekday(day))
	return thursday.Year(), (thursday.YearDay()-1)/daysPerWeek + 1
}

// WeekOf resolves the ISO week holding the civil date of t.
func WeekOf(t time.Time) (WeekInfo, error) {
	return Resolve(ISOWeekOf(t))
}
