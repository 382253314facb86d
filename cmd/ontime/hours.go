package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ontime/internal/aggregate"
	"ontime/internal/app"
	"ontime/internal/domain"
)

type hoursView struct {
	From  string         `json:"from"`
	To    string         `json:"to"`
	By    string         `json:"by"`
	Rows  []aggregateRow `json:"rows"`
	Total float64        `json:"total"`
}

type aggregateRow struct {
	Key   string  `json:"key"`
	Hours float64 `json:"hours"`
}

func addHours(topLevel *cobra.Command, ro *rootOptions) {
	var by, from, to string
	cmd := &cobra.Command{
		Use:   "hours",
		Short: "Sum scheduled hours per day or per task.",
		Long:  "Sum scheduled hours per day or per task. Without --from/--to the current week is used.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd, ro)
			start, end, err := period(from, to, time.Now())
			if err != nil {
				return err
			}
			by = strings.ToLower(strings.TrimSpace(by))
			if by != "day" && by != "task" {
				return domain.NewValidation("by", "must be day or task")
			}
			return withApp(cmd.Context(), ro, func(a *app.App) error {
				es := aggregate.Range(a.Entries().Entries(), start, end)
				sums := aggregate.HoursByDay(es)
				if by == "task" {
					sums = aggregate.HoursByTask(es)
				}
				v := hoursView{
					From:  start.Format(aggregate.DayLayout),
					To:    end.AddDate(0, 0, -1).Format(aggregate.DayLayout),
					By:    by,
					Rows:  []aggregateRow{},
					Total: aggregate.TotalHours(es),
				}
				rows := make([][]any, 0, len(sums)+1)
				for _, r := range aggregate.Sorted(sums) {
					v.Rows = append(v.Rows, aggregateRow{Key: r.Key, Hours: r.Hours})
					rows = append(rows, []any{r.Key, aggregate.FormatHours(r.Hours)})
				}
				return p.emit(v, func() {
					p.line("%s %s .. %s", bold("Hours"), v.From, v.To)
					p.table([]any{strings.ToUpper(by), "HOURS"}, rows)
					p.line("%s %s", faint("total"), aggregate.FormatHours(v.Total))
				})
			})
		},
	}
	cmd.Flags().StringVar(&by, "by", "day", "Group by day or task.")
	cmd.Flags().StringVar(&from, "from", "", "First day, YYYY-MM-DD.")
	cmd.Flags().StringVar(&to, "to", "", "Last day (inclusive), YYYY-MM-DD.")
	topLevel.AddCommand(cmd)
}

// period resolves inclusive day flags to a half-open [start, end) range in
// local time. Missing bounds default to the week containing now.
func period(from, to string, now time.Time) (time.Time, time.Time, error) {
	week := aggregate.WeekStart(now.Local())
	start, end := week, week.AddDate(0, 0, 7)
	if s := strings.TrimSpace(from); s != "" {
		t, err := time.ParseInLocation(time.DateOnly, s, time.Local)
		if err != nil {
			return start, end, domain.NewValidation("from", fmt.Sprintf("cannot parse %q", s))
		}
		start = t
		if strings.TrimSpace(to) == "" {
			end = start.AddDate(0, 0, 7)
		}
	}
	if s := strings.TrimSpace(to); s != "" {
		t, err := time.ParseInLocation(time.DateOnly, s, time.Local)
		if err != nil {
			return start, end, domain.NewValidation("to", fmt.Sprintf("cannot parse %q", s))
		}
		end = t.AddDate(0, 0, 1)
	}
	if !end.After(start) {
		return start, end, domain.NewValidation("to", "must not be before from")
	}
	return start, end, nil
}
