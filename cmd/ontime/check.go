package main

import (
	"time"

	"github.com/spf13/cobra"

	"ontime/internal/app"
	"ontime/internal/storage"
)

type violationView struct {
	TaskID  string   `json:"task_id"`
	Status  string   `json:"status"`
	Entries []string `json:"entries"`
	Reason  string   `json:"reason"`
}

func addCheck(topLevel *cobra.Command, ro *rootOptions) {
	var repair bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Audit that a task is scheduled iff it has exactly one entry.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd, ro)
			return withApp(cmd.Context(), ro, func(a *app.App) error {
				c := a.Coordinator()
				repaired := 0
				if repair {
					n, err := c.Repair(cmd.Context())
					if err != nil {
						return err
					}
					repaired = n
				}
				vs := c.CheckInvariant()
				views := make([]violationView, 0, len(vs))
				rows := make([][]any, 0, len(vs))
				for _, v := range vs {
					views = append(views, violationView{TaskID: v.TaskID, Status: string(v.Status), Entries: v.Entries, Reason: v.Reason})
					rows = append(rows, []any{v.TaskID, v.Status, len(v.Entries), red(v.Reason)})
				}
				out := map[string]any{"violations": views, "repaired": repaired}
				return p.emit(out, func() {
					if repair {
						p.line("%s %d", faint("repaired"), repaired)
					}
					if len(vs) == 0 {
						p.line("%s no violations", green("✓"))
						return
					}
					p.table([]any{"TASK", "STATUS", "ENTRIES", "PROBLEM"}, rows)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "Fix violations a single status update can fix.")
	topLevel.AddCommand(cmd)
}

func addJournal(topLevel *cobra.Command, ro *rootOptions) {
	var limit int
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recent scheduling transitions from the local journal.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd, ro)
			a, err := app.NewApp(ro.configPath())
			if err != nil {
				return err
			}
			defer a.Close()
			j := a.Journal()
			if j == nil {
				p.line("%s storage is disabled; set storage.driver to diskv or sqlite", faint("journal:"))
				return nil
			}
			txs, err := j.Transitions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if txs == nil {
				txs = []storage.Transition{}
			}
			rows := make([][]any, 0, len(txs))
			for _, t := range txs {
				res := green("ok")
				if !t.OK {
					res = red(t.Error)
				}
				subject := t.TaskID
				if subject == "" {
					subject = t.EntryID
				}
				rows = append(rows, []any{t.At.Local().Format(time.DateTime), t.Kind, t.ScopeID, subject, res, (time.Duration(t.TookMS) * time.Millisecond).String()})
			}
			return p.emit(txs, func() { p.table([]any{"AT", "KIND", "SHEET", "SUBJECT", "RESULT", "TOOK"}, rows) })
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "How many records to show.")
	topLevel.AddCommand(cmd)
}
