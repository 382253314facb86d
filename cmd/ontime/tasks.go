package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ontime/internal/app"
	"ontime/internal/domain"
	"ontime/internal/duration"
)

type taskView struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Project         string `json:"project,omitempty"`
	Status          string `json:"status"`
	Billable        bool   `json:"billable"`
	DefaultDuration string `json:"default_duration"`
}

func viewTask(t domain.Task) taskView {
	return taskView{
		ID:              t.ID,
		Title:           t.Title,
		Project:         t.Project,
		Status:          string(t.Status),
		Billable:        t.Billable,
		DefaultDuration: t.DefaultDuration,
	}
}

// taskFlags collects the editable task fields; only flags the user set end up
// in the payload.
type taskFlags struct {
	title, project, dur, status string
	billable                    bool
}

func (tf *taskFlags) add(cmd *cobra.Command, withTitle bool) {
	if withTitle {
		cmd.Flags().StringVar(&tf.title, "title", "", "Task title.")
	}
	cmd.Flags().StringVar(&tf.project, "project", "", "Project label.")
	cmd.Flags().StringVar(&tf.dur, "duration", "", fmt.Sprintf("Default duration, one of %v.", duration.Labels()))
	cmd.Flags().BoolVar(&tf.billable, "billable", true, "Whether the task is billable.")
}

func (tf *taskFlags) fields(cmd *cobra.Command) (domain.TaskFields, error) {
	var f domain.TaskFields
	fl := cmd.Flags()
	if fl.Changed("title") {
		f.Title = domain.Ptr(tf.title)
	}
	if fl.Changed("project") {
		f.Project = domain.Ptr(tf.project)
	}
	if fl.Changed("duration") {
		if !duration.Valid(tf.dur) {
			return f, domain.NewValidation("duration", fmt.Sprintf("unknown duration %q", tf.dur))
		}
		f.DefaultDuration = domain.Ptr(tf.dur)
	}
	if fl.Changed("billable") {
		f.Billable = domain.Ptr(tf.billable)
	}
	if fl.Lookup("status") != nil && fl.Changed("status") {
		f.Status = domain.Ptr(domain.Status(tf.status))
	}
	return f, nil
}

func addTasks(topLevel *cobra.Command, ro *rootOptions) {
	cmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"task"},
		Short:   "List and edit the tasks of the active sheet.",
	}

	var backlogOnly bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List tasks.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd, ro)
			return withApp(cmd.Context(), ro, func(a *app.App) error {
				tasks := a.Tasks().Tasks()
				if backlogOnly {
					tasks = a.Tasks().Backlog()
				}
				views := make([]taskView, 0, len(tasks))
				rows := make([][]any, 0, len(tasks))
				for _, t := range tasks {
					views = append(views, viewTask(t))
					rows = append(rows, []any{t.ID, t.Title, t.Project, statusText(t.Status), duration.ToDisplay(t.DefaultDuration)})
				}
				return p.emit(views, func() { p.table([]any{"ID", "TITLE", "PROJECT", "STATUS", "DURATION"}, rows) })
			})
		},
	}
	list.Flags().BoolVar(&backlogOnly, "backlog", false, "Only tasks waiting to be scheduled.")

	addFlags := &taskFlags{}
	add := &cobra.Command{
		Use:   "add TITLE",
		Short: "Create a backlog task.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd, ro)
			f, err := addFlags.fields(cmd)
			if err != nil {
				return err
			}
			f.Title = domain.Ptr(args[0])
			return withApp(cmd.Context(), ro, func(a *app.App) error {
				if err := a.Coordinator().CreateTask(cmd.Context(), f); err != nil {
					return err
				}
				return p.done("created task "+args[0], nil)
			})
		},
	}
	addFlags.add(add, false)

	editFlags := &taskFlags{}
	edit := &cobra.Command{
		Use:   "edit ID",
		Short: "Edit a task. Scheduling is done with schedule/unschedule.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd, ro)
			f, err := editFlags.fields(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), ro, func(a *app.App) error {
				if err := a.Coordinator().EditTask(cmd.Context(), args[0], f); err != nil {
					return err
				}
				return p.done("updated task "+args[0], map[string]any{"id": args[0]})
			})
		},
	}
	editFlags.add(edit, true)
	edit.Flags().StringVar(&editFlags.status, "status", "", "New status: backlog, done, blocked or in_progress.")

	remove := &cobra.Command{
		Use:     "rm ID",
		Aliases: []string{"delete"},
		Short:   "Delete a task and its calendar entry.",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd, ro)
			return withApp(cmd.Context(), ro, func(a *app.App) error {
				if err := a.Coordinator().DeleteTask(cmd.Context(), args[0]); err != nil {
					return err
				}
				return p.done("deleted task "+args[0], map[string]any{"id": args[0]})
			})
		},
	}

	cmd.AddCommand(list, add, edit, remove)
	topLevel.AddCommand(cmd)
}

func statusText(s domain.Status) string {
	switch s {
	case domain.StatusScheduled:
		return green(string(s))
	case domain.StatusBlocked:
		return red(string(s))
	case domain.StatusDone:
		return faint(string(s))
	}
	return string(s)
}
