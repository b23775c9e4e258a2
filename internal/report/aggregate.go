package report

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// GroupBy selects the grouping dimension.
type GroupBy string

const (
	ByDay     GroupBy = "day"
	ByWeek    GroupBy = "week"
	ByProject GroupBy = "project"
	ByClient  GroupBy = "client"
)

func (g GroupBy) Valid() bool {
	return g == ByDay || g == ByWeek || g == ByProject || g == ByClient
}

const dateLayout = "2006-01-02"

// Entry is a time entry with its project and client names resolved.
type Entry struct {
	ID          string          `json:"id"`
	Date        time.Time       `json:"date"`
	Hours       decimal.Decimal `json:"hours"`
	Description string          `json:"description"`
	ProjectID   string          `json:"project_id"`
	ProjectName string          `json:"project_name"`
	ClientID    string          `json:"client_id"`
	ClientName  string          `json:"client_name"`
	UserID      string          `json:"user_id"`
	UserName    string          `json:"user_name,omitempty"`
	Status      string          `json:"status"`
}

// Week identifies a calendar week.
type Week struct {
	Year   int       `json:"year"`
	Number int       `json:"number"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

func (w Week) Key() string {
	return fmt.Sprintf("%d-W%02d", w.Year, w.Number)
}

// WeekOf returns the week containing date for weeks starting on weekStart.
// For Monday starts the number is the ISO 8601 week.
func WeekOf(date time.Time, weekStart time.Weekday) Week {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	offset := (int(day.Weekday()) - int(weekStart) + 7) % 7
	start := day.AddDate(0, 0, -offset)
	end := start.AddDate(0, 0, 6)
	// The week belongs to the year of its fourth day, as in ISO 8601.
	year, number := start.AddDate(0, 0, 3).ISOWeek()
	return Week{Year: year, Number: number, Start: start, End: end}
}

// Group is one bucket of an aggregation.
type Group struct {
	Key        string          `json:"key"`
	Label      string          `json:"label"`
	Week       *Week           `json:"week,omitempty"`
	TotalHours decimal.Decimal `json:"total_hours"`
	EntryCount int             `json:"entry_count"`
	Entries    []Entry         `json:"entries"`
}

// Result keeps groups in first-seen order.
type Result struct {
	GroupBy    GroupBy         `json:"group_by"`
	Groups     []*Group        `json:"groups"`
	TotalHours decimal.Decimal `json:"total_hours"`
	EntryCount int             `json:"entry_count"`
	index      map[string]int
}

// Get returns the group for key.
func (r *Result) Get(key string) (*Group, bool) {
	i, ok := r.index[key]
	if !ok {
		return nil, false
	}
	return r.Groups[i], true
}

// Totals returns key -> total hours.
func (r *Result) Totals() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(r.Groups))
	for _, g := range r.Groups {
		out[g.Key] = g.TotalHours
	}
	return out
}

type options struct {
	weekStart time.Weekday
}

type Option func(*options)

// WithWeekStart sets the first day of the week. Defaults to Monday.
func WithWeekStart(d time.Weekday) Option {
	return func(o *options) { o.weekStart = d }
}

// Aggregate groups entries in a single pass. Hours are summed as decimals.
func Aggregate(entries []Entry, by GroupBy, opts ...Option) (*Result, error) {
	if !by.Valid() {
		return nil, errors.Newf("unknown grouping %q", by)
	}
	o := options{weekStart: time.Monday}
	for _, opt := range opts {
		opt(&o)
	}

	res := &Result{GroupBy: by, Groups: []*Group{}, TotalHours: decimal.Zero, index: make(map[string]int)}
	for _, e := range entries {
		key, label, week := groupKey(e, by, o.weekStart)
		i, ok := res.index[key]
		if !ok {
			i = len(res.Groups)
			res.index[key] = i
			res.Groups = append(res.Groups, &Group{Key: key, Label: label, Week: week, TotalHours: decimal.Zero})
		}
		g := res.Groups[i]
		g.TotalHours = g.TotalHours.Add(e.Hours)
		g.EntryCount++
		g.Entries = append(g.Entries, e)

		res.TotalHours = res.TotalHours.Add(e.Hours)
		res.EntryCount++
	}
	return res, nil
}

func groupKey(e Entry, by GroupBy, weekStart time.Weekday) (string, string, *Week) {
	switch by {
	case ByDay:
		d := e.Date.Format(dateLayout)
		return d, e.Date.Format("Monday, 02 Jan 2006"), nil
	case ByWeek:
		w := WeekOf(e.Date, weekStart)
		return w.Key(), fmt.Sprintf("%s - %s", w.Start.Format("Jan 02"), w.End.Format("Jan 02, 2006")), &w
	case ByProject:
		return keyOr(e.ProjectID, e.ProjectName), e.ProjectName, nil
	default:
		return keyOr(e.ClientID, e.ClientName), e.ClientName, nil
	}
}

func keyOr(id, name string) string {
	if id != "" {
		return id
	}
	return name
}
