package main

import (
	"github.com/spf13/cobra"

	"ontime/internal/app"
	"ontime/internal/domain"
)

type sheetView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
	Active      bool   `json:"active"`
}

func addSheets(topLevel *cobra.Command, ro *rootOptions) {
	cmd := &cobra.Command{
		Use:     "sheets",
		Aliases: []string{"sheet"},
		Short:   "Manage sheets, the scopes tasks and entries live in.",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List sheets; the active one is starred.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd, ro)
			return withApp(cmd.Context(), ro, func(a *app.App) error {
				active := a.Sheets().Active()
				views := make([]sheetView, 0)
				rows := make([][]any, 0)
				for _, s := range a.Sheets().Sheets() {
					v := sheetView{ID: s.ID, Name: s.Name, Description: s.Description, Color: s.Color, Active: s.ID == active}
					views = append(views, v)
					mark := ""
					if v.Active {
						mark = green("*")
					}
					rows = append(rows, []any{mark, s.ID, s.Name, s.Description})
				}
				return p.emit(views, func() { p.table([]any{"", "ID", "NAME", "DESCRIPTION"}, rows) })
			})
		},
	}

	var desc, colr string
	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a sheet and make it active.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd, ro)
			return withApp(cmd.Context(), ro, func(a *app.App) error {
				f := domain.SheetFields{Name: domain.Ptr(args[0])}
				if desc != "" {
					f.Description = domain.Ptr(desc)
				}
				if colr != "" {
					f.Color = domain.Ptr(colr)
				}
				s, err := a.Sheets().Create(cmd.Context(), f)
				if err != nil {
					return err
				}
				return p.done("created sheet "+s.ID, map[string]any{"id": s.ID})
			})
		},
	}
	create.Flags().StringVar(&desc, "description", "", "Sheet description.")
	create.Flags().StringVar(&colr, "color", "", "Sheet color, e.g. #3366ff.")

	rename := &cobra.Command{
		Use:   "rename ID NAME",
		Short: "Rename a sheet.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd, ro)
			return withApp(cmd.Context(), ro, func(a *app.App) error {
				if err := a.Sheets().Update(cmd.Context(), args[0], domain.SheetFields{Name: domain.Ptr(args[1])}); err != nil {
					return err
				}
				return p.done("renamed sheet "+args[0], map[string]any{"id": args[0]})
			})
		},
	}

	remove := &cobra.Command{
		Use:     "rm ID",
		Aliases: []string{"delete"},
		Short:   "Delete a sheet.",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd, ro)
			return withApp(cmd.Context(), ro, func(a *app.App) error {
				if err := a.Sheets().Remove(cmd.Context(), args[0]); err != nil {
					return err
				}
				return p.done("deleted sheet "+args[0], map[string]any{"id": args[0]})
			})
		},
	}

	projects := &cobra.Command{
		Use:   "projects",
		Short: "List project labels.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd, ro)
			return withApp(cmd.Context(), ro, func(a *app.App) error {
				ps := a.Sheets().Projects(cmd.Context())
				type projectView struct {
					ID    string `json:"id"`
					Label string `json:"label"`
				}
				views := make([]projectView, 0, len(ps))
				rows := make([][]any, 0, len(ps))
				for _, pr := range ps {
					views = append(views, projectView{ID: pr.ID, Label: pr.Label})
					rows = append(rows, []any{pr.ID, pr.Label})
				}
				return p.emit(views, func() { p.table([]any{"ID", "LABEL"}, rows) })
			})
		},
	}

	cmd.AddCommand(list, create, rename, remove, projects)
	topLevel.AddCommand(cmd)
}
