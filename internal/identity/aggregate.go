package identity

import (
	"sort"
	"time"

	"github.com/caribu66/veruspulse-sub016/internal/models"
)

// WeekStart returns the Monday on or before day. Days are treated as naive
// calendar dates; the hour and timezone of the input are discarded.
func WeekStart(day time.Time) time.Time {
	d := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// WeeklyFromDaily folds daily stats into per-week totals keyed by week
// start. Pure: input order does not affect the result, which is sorted by
// week start ascending.
func WeeklyFromDaily(daily []models.DailyRewardStat) []models.WeeklyAggregate {
	byWeek := make(map[time.Time]*models.WeeklyAggregate)
	for _, d := range daily {
		ws := WeekStart(d.Day)
		agg, ok := byWeek[ws]
		if !ok {
			agg = &models.WeeklyAggregate{WeekStart: ws}
			byWeek[ws] = agg
		}
		agg.TotalAmount += d.TotalAmount
		agg.EventCount += d.EventCount
	}

	weeks := make([]models.WeeklyAggregate, 0, len(byWeek))
	for _, agg := range byWeek {
		weeks = append(weeks, *agg)
	}
	sort.Slice(weeks, func(i, j int) bool {
		return weeks[i].WeekStart.Before(weeks[j].WeekStart)
	})
	return weeks
}

// MonthlyFromDaily folds daily stats into per-calendar-month totals,
// sorted chronologically.
func MonthlyFromDaily(daily []models.DailyRewardStat) []models.MonthlyAggregate {
	type monthKey struct {
		year  int
		month int
	}

	byMonth := make(map[monthKey]*models.MonthlyAggregate)
	for _, d := range daily {
		key := monthKey{year: d.Day.Year(), month: int(d.Day.Month())}
		agg, ok := byMonth[key]
		if !ok {
			agg = &models.MonthlyAggregate{Year: key.year, Month: key.month}
			byMonth[key] = agg
		}
		agg.TotalAmount += d.TotalAmount
		agg.EventCount += d.EventCount
	}

	months := make([]models.MonthlyAggregate, 0, len(byMonth))
	for _, agg := range byMonth {
		months = append(months, *agg)
	}
	sort.Slice(months, func(i, j int) bool {
		if months[i].Year != months[j].Year {
			return months[i].Year < months[j].Year
		}
		return months[i].Month < months[j].Month
	})
	return months
}
