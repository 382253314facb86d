package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ontime/internal/app"
	"ontime/internal/remote"
	"ontime/internal/reports"
)

type reportView struct {
	ID          string   `json:"id"`
	Message     string   `json:"message,omitempty"`
	Destination string   `json:"destination_email,omitempty"`
	Files       []string `json:"files"`
}

type historyView struct {
	ID          string    `json:"id"`
	Sender      string    `json:"sender_email"`
	Destination string    `json:"destination_email"`
	PeriodStart string    `json:"period_start"`
	PeriodEnd   string    `json:"period_end"`
	Format      string    `json:"format"`
	CreatedAt   time.Time `json:"created_at"`
}

func addReport(topLevel *cobra.Command, ro *rootOptions) {
	cmd := &cobra.Command{
		Use:     "report",
		Aliases: []string{"reports"},
		Short:   "Send timesheet reports and list the ones sent.",
	}

	var from, to, format, sender string
	send := &cobra.Command{
		Use:   "send",
		Short: "Render and mail a timesheet for the active sheet.",
		Example: `
ontime report send --from 2026-10-01 --to 2026-10-31 --format pdf+csv
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd, ro)
			start, end, err := period(from, to, time.Now())
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), ro, func(a *app.App) error {
				if strings.TrimSpace(sender) == "" {
					sender = a.Config().Reports.SenderEmail
				}
				// period returns an exclusive end; reports take the last day
				sent, err := a.Reports().Send(cmd.Context(), reports.Request{
					SenderEmail: sender,
					PeriodStart: start,
					PeriodEnd:   end.AddDate(0, 0, -1),
					Format:      remote.ReportFormat(format),
				})
				if err != nil {
					return err
				}
				v := reportView{
					ID:          sent.Result.ID,
					Message:     sent.Result.Message,
					Destination: sent.Result.DestinationEmail,
					Files:       append([]string{}, sent.Files...),
				}
				return p.emit(v, func() {
					p.line("%s report %s sent to %s", green("✓"), v.ID, v.Destination)
					for _, f := range v.Files {
						p.line("  %s %s", faint("saved"), f)
					}
				})
			})
		},
	}
	send.Flags().StringVar(&from, "from", "", "First day, YYYY-MM-DD. Defaults to this week.")
	send.Flags().StringVar(&to, "to", "", "Last day (inclusive), YYYY-MM-DD.")
	send.Flags().StringVar(&format, "format", string(remote.FormatPDFCSV), "csv, pdf or pdf+csv.")
	send.Flags().StringVar(&sender, "sender", "", "Sender email. Defaults to reports.sender_email.")

	history := &cobra.Command{
		Use:   "history",
		Short: "List sent reports, newest first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd, ro)
			return withApp(cmd.Context(), ro, func(a *app.App) error {
				hs := a.Reports().History(cmd.Context())
				views := make([]historyView, 0, len(hs))
				rows := make([][]any, 0, len(hs))
				for _, r := range hs {
					views = append(views, historyView{
						ID:          r.ID,
						Sender:      r.SenderEmail,
						Destination: r.DestinationEmail,
						PeriodStart: r.PeriodStart,
						PeriodEnd:   r.PeriodEnd,
						Format:      string(r.Format),
						CreatedAt:   r.CreatedAt,
					})
					rows = append(rows, []any{r.ID, r.PeriodStart + " .. " + r.PeriodEnd, r.Format, r.DestinationEmail, r.CreatedAt.Local().Format(time.DateTime)})
				}
				return p.emit(views, func() { p.table([]any{"ID", "PERIOD", "FORMAT", "TO", "SENT"}, rows) })
			})
		},
	}

	cmd.AddCommand(send, history)
	topLevel.AddCommand(cmd)
}

