package calendar

import (
	"sort"
	"time"
)

type weekKey struct {
	year, week int
}

// WeeksForMonth returns every ISO week overlapping the given month, sorted by StartDate.
// The union of the returned weeks' days covers every day of the month.
func WeeksForMonth(year int, month time.Month) ([]WeekInfo, error) {
	if month < time.January || month > time.December {
		return nil, ErrInvalidMonth
	}
	if year < minYear || year > maxYear {
		return nil, ErrInvalidYear
	}

	first := Date(year, month, 1)
	last := addDays(first.AddDate(0, 1, 0), -1)
	monday := addDays(first, 1-isoWeekday(first))

	seen := make(map[weekKey]struct{}, 6)
	weeks := make([]WeekInfo, 0, 6)
	for ; !monday.After(last); monday = addDays(monday, daysPerWeek) {
		isoYear, isoWeek := ISOWeekOf(monday)
		key := weekKey{isoYear, isoWeek}
		if _, ok := seen[key]; ok {
			continue
		}
		info, err := Resolve(isoYear, isoWeek)
		if err != nil {
			return nil, err
		}
		seen[key] = struct{}{}
		weeks = append(weeks, info)
	}

	sort.Slice(weeks, func(i, j int) bool { return weeks[i].StartDate.Before(weeks[j].StartDate) })
	return weeks, nil
}
