// Package duration maps the fixed set of task duration labels to minute counts
// and display strings. All functions are total: unknown labels fall back instead
// of failing.
package duration

import (
	"strings"
	"time"
)

const (
	// DefaultMinutes sizes intervals for labels outside the table.
	DefaultMinutes = 60
	// DefaultTaskLabel is assigned to tasks the remote returns without a duration.
	DefaultTaskLabel = "8h"
)

type entry struct {
	label   string
	minutes int
	display string
}

// Ordered as offered by the task edit form.
var table = []entry{
	{"30m", 30, "30 min"},
	{"1h", 60, "1h"},
	{"2h", 120, "2h"},
	{"3h", 180, "3h"},
	{"4h", 240, "4h"},
	{"5h", 300, "5h"},
	{"6h", 360, "6h"},
	{"7h", 420, "7h"},
	{"8h", 480, "8h"},
	{"8h48m", 528, "8h48"},
}

var (
	byLabel   = map[string]entry{}
	byDisplay = map[string]entry{}
	byMinutes = map[int]entry{}
)

func init() {
	for _, e := range table {
		byLabel[e.label] = e
		byDisplay[strings.ToLower(e.display)] = e
		byMinutes[e.minutes] = e
	}
}

func lookup(label string) (entry, bool) {
	s := strings.TrimSpace(label)
	if e, ok := byLabel[s]; ok {
		return e, true
	}
	// Display strings resolve too, so ToMinutes(ToDisplay(l)) is stable.
	e, ok := byDisplay[strings.ToLower(s)]
	return e, ok
}

// ToMinutes returns the minute count for label, or DefaultMinutes when unmapped.
func ToMinutes(label string) int {
	if e, ok := lookup(label); ok {
		return e.minutes
	}
	return DefaultMinutes
}

// ToDuration is ToMinutes as a time.Duration.
func ToDuration(label string) time.Duration {
	return time.Duration(ToMinutes(label)) * time.Minute
}

// ToDisplay returns the display string for label. Unmapped labels are returned
// unchanged; an empty label renders as "-".
func ToDisplay(label string) string {
	if strings.TrimSpace(label) == "" {
		return "-"
	}
	if e, ok := byLabel[strings.TrimSpace(label)]; ok {
		return e.display
	}
	return label
}

// FromMinutes returns the label whose minute count is exactly m.
func FromMinutes(m int) (string, bool) {
	e, ok := byMinutes[m]
	return e.label, ok
}

// Valid reports whether label is one of the fixed labels.
func Valid(label string) bool {
	_, ok := byLabel[strings.TrimSpace(label)]
	return ok
}

// Labels returns the fixed labels in form order.
func Labels() []string {
	out := make([]string, len(table))
	for i, e := range table {
		out[i] = e.label
	}
	return out
}
