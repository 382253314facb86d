package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ontime/internal/app"
	"ontime/internal/domain"
	"ontime/internal/schedule"
)

type entryView struct {
	ID     string    `json:"id"`
	TaskID string    `json:"task_id"`
	Title  string    `json:"title"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

const clock = "Mon 02 Jan 15:04"

func addEntries(topLevel *cobra.Command, ro *rootOptions) {
	cmd := &cobra.Command{
		Use:     "entries",
		Aliases: []string{"entry", "calendar"},
		Short:   "List and delete calendar entries of the active sheet.",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List entries by start time.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd, ro)
			return withApp(cmd.Context(), ro, func(a *app.App) error {
				es := a.Entries().Entries()
				sort.Slice(es, func(i, j int) bool { return es[i].Start.Before(es[j].Start) })
				views := make([]entryView, 0, len(es))
				rows := make([][]any, 0, len(es))
				for _, e := range es {
					views = append(views, entryView{ID: e.ID, TaskID: e.TaskID, Title: e.Title, Start: e.Start, End: e.End})
					rows = append(rows, []any{e.ID, e.Title, e.Start.Local().Format(clock), e.End.Local().Format("15:04"), e.Duration()})
				}
				return p.emit(views, func() { p.table([]any{"ID", "TITLE", "START", "END", "LENGTH"}, rows) })
			})
		},
	}

	remove := &cobra.Command{
		Use:     "rm ID",
		Aliases: []string{"delete"},
		Short:   "Delete an entry; its task goes back to the backlog.",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd, ro)
			return withApp(cmd.Context(), ro, func(a *app.App) error {
				if err := a.Coordinator().DeleteEntry(cmd.Context(), args[0]); err != nil {
					return err
				}
				return p.done("deleted entry "+args[0], map[string]any{"id": args[0]})
			})
		},
	}

	cmd.AddCommand(list, remove)
	topLevel.AddCommand(cmd)
}

func addSchedule(topLevel *cobra.Command, ro *rootOptions) {
	var at string
	cmd := &cobra.Command{
		Use:   "schedule TASK_ID --at TIME",
		Short: "Drop a backlog task onto the calendar.",
		Example: `
ontime schedule t1 --at 2026-10-19T09:00
ontime schedule t1 --at 2026-10-19T09:00:00+02:00
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd, ro)
			start, err := parseWhen(at)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), ro, func(a *app.App) error {
				g := schedule.DropGesture{TaskID: args[0], At: start}
				if err := a.Coordinator().Schedule(cmd.Context(), g); err != nil {
					return err
				}
				es := a.Entries().FindByTask(args[0])
				if len(es) == 0 {
					return p.done("scheduled "+args[0], nil)
				}
				e := es[0]
				msg := fmt.Sprintf("scheduled %s %s-%s", args[0], e.Start.Local().Format(clock), e.End.Local().Format("15:04"))
				return p.done(msg, map[string]any{"entry_id": e.ID})
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Start time, RFC 3339 or 2006-01-02T15:04 in local time.")
	_ = cmd.MarkFlagRequired("at")
	topLevel.AddCommand(cmd)
}

// releaseOutside is a drag release that lands left of a unit calendar, which
// always unschedules.
var (
	releaseOutside = schedule.Point{X: -1, Y: -1}
	unitCalendar   = schedule.Rect{Left: 0, Top: 0, Right: 1, Bottom: 1}
)

func addUnschedule(topLevel *cobra.Command, ro *rootOptions) {
	cmd := &cobra.Command{
		Use:   "unschedule ENTRY_ID",
		Short: "Drag an entry off the calendar; its task returns to the backlog.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd, ro)
			return withApp(cmd.Context(), ro, func(a *app.App) error {
				g := schedule.DragGesture{EntryID: args[0], Release: releaseOutside, Bounds: unitCalendar}
				moved, err := a.Coordinator().Unschedule(cmd.Context(), g)
				if err != nil {
					return err
				}
				if !moved {
					return p.done("nothing to unschedule", map[string]any{"moved": false})
				}
				return p.done("unscheduled "+args[0], map[string]any{"moved": true})
			})
		},
	}
	topLevel.AddCommand(cmd)
}

func parseWhen(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, domain.NewValidation("at", fmt.Sprintf("cannot parse %q", s))
}
