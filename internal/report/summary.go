package report

import (
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/fi"
	"github.com/rickar/cal/v2/se"
	"github.com/shopspring/decimal"
)

// NewBusinessCalendar returns a calendar with the public holidays of the
// given country code ("fi", "se"), or weekends only for anything else.
func NewBusinessCalendar(country string) *cal.BusinessCalendar {
	c := cal.NewBusinessCalendar()
	switch country {
	case "fi":
		c.AddHoliday(fi.Holidays...)
	case "se":
		c.AddHoliday(se.Holidays...)
	}
	return c
}

// DayTotal is the hours logged on one day of a week.
type DayTotal struct {
	Date       string          `json:"date"`
	Workday    bool            `json:"workday"`
	TotalHours decimal.Decimal `json:"total_hours"`
	EntryCount int             `json:"entry_count"`
}

// WeekSummary is the structured payload attached to hours questions.
type WeekSummary struct {
	Week          Week                       `json:"week"`
	TotalHours    decimal.Decimal            `json:"total_hours"`
	ExpectedHours decimal.Decimal            `json:"expected_hours"`
	Difference    decimal.Decimal            `json:"difference"`
	EntryCount    int                        `json:"entry_count"`
	Days          []DayTotal                 `json:"days"`
	Projects      []*Group                   `json:"projects"`
	ByStatus      map[string]decimal.Decimal `json:"by_status"`
}

// SummarizeWeek builds a WeekSummary for the week containing date. Entries
// outside the week are ignored. Expected hours are workdays times
// workdayHours.
func SummarizeWeek(entries []Entry, date time.Time, weekStart time.Weekday, calendar *cal.BusinessCalendar, workdayHours decimal.Decimal) *WeekSummary {
	week := WeekOf(date, weekStart)

	inWeek := make([]Entry, 0, len(entries))
	for _, e := range entries {
		d := time.Date(e.Date.Year(), e.Date.Month(), e.Date.Day(), 0, 0, 0, 0, week.Start.Location())
		if !d.Before(week.Start) && !d.After(week.End) {
			inWeek = append(inWeek, e)
		}
	}

	byDay, _ := Aggregate(inWeek, ByDay)
	byProject, _ := Aggregate(inWeek, ByProject)

	s := &WeekSummary{
		Week:          week,
		TotalHours:    byDay.TotalHours,
		ExpectedHours: decimal.Zero,
		EntryCount:    byDay.EntryCount,
		Projects:      byProject.Groups,
		ByStatus:      make(map[string]decimal.Decimal),
	}

	for i := 0; i < 7; i++ {
		day := week.Start.AddDate(0, 0, i)
		workday := calendar == nil && day.Weekday() != time.Saturday && day.Weekday() != time.Sunday
		if calendar != nil {
			workday = calendar.IsWorkday(day)
		}
		if workday {
			s.ExpectedHours = s.ExpectedHours.Add(workdayHours)
		}
		dt := DayTotal{Date: day.Format(dateLayout), Workday: workday, TotalHours: decimal.Zero}
		if g, ok := byDay.Get(dt.Date); ok {
			dt.TotalHours = g.TotalHours
			dt.EntryCount = g.EntryCount
		}
		s.Days = append(s.Days, dt)
	}

	for _, e := range inWeek {
		s.ByStatus[e.Status] = s.ByStatus[e.Status].Add(e.Hours)
	}
	s.Difference = s.TotalHours.Sub(s.ExpectedHours)
	return s
}
