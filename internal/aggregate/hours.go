// Package aggregate derives read-only totals from entry collections. Nothing
// here is stored; callers recompute on every refresh.
package aggregate

import (
	"fmt"
	"sort"
	"time"

	"ontime/internal/domain"
)

const DayLayout = "2006-01-02"

// HoursByDay sums entry hours per calendar day of the entry start, in the
// start's own location. Entries missing either bound are skipped. An entry
// crossing midnight counts fully towards its start day.
func HoursByDay(entries []domain.TimeEntry) map[string]float64 {
	out := map[string]float64{}
	for _, e := range entries {
		d := e.Duration()
		if d <= 0 {
			continue
		}
		out[e.Start.Format(DayLayout)] += d.Hours()
	}
	return out
}

// HoursByTask sums entry hours per entry title, falling back to the task id
// for untitled entries.
func HoursByTask(entries []domain.TimeEntry) map[string]float64 {
	out := map[string]float64{}
	for _, e := range entries {
		d := e.Duration()
		if d <= 0 {
			continue
		}
		key := e.Title
		if key == "" {
			key = e.TaskID
		}
		out[key] += d.Hours()
	}
	return out
}

// Range returns the entries starting in [from, to). A zero bound is open.
func Range(entries []domain.TimeEntry, from, to time.Time) []domain.TimeEntry {
	var out []domain.TimeEntry
	for _, e := range entries {
		if e.Start.IsZero() {
			continue
		}
		if !from.IsZero() && e.Start.Before(from) {
			continue
		}
		if !to.IsZero() && !e.Start.Before(to) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func TotalHours(entries []domain.TimeEntry) float64 {
	var sum float64
	for _, e := range entries {
		if d := e.Duration(); d > 0 {
			sum += d.Hours()
		}
	}
	return sum
}

// FormatHours renders h the way the calendar day badge does, e.g. "3.5h".
func FormatHours(h float64) string {
	return fmt.Sprintf("%.1fh", h)
}

// Row is one key/hours pair of a sorted report.
type Row struct {
	Key   string
	Hours float64
}

// Sorted returns m as rows ordered by key.
func Sorted(m map[string]float64) []Row {
	out := make([]Row, 0, len(m))
	for k, v := range m {
		out = append(out, Row{Key: k, Hours: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// WeekStart returns 00:00 of the Monday on or before t, in t's location.
func WeekStart(t time.Time) time.Time {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}
