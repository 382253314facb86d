package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ontime/internal/devserver"
	"ontime/internal/domain"
	"ontime/internal/remote"
	"ontime/pkg/logx"
)

func addDevServer(topLevel *cobra.Command, ro *rootOptions) {
	var addr, level string
	var seed bool
	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Serve an in-memory remote store for local development.",
		Long: `Serve an in-memory implementation of the remote task/entry store. Data
lives only as long as the process. Point api.base_url at it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			log := logx.NewConsole(level).With(logx.String("comp", "devserver"))
			fake := remote.NewFake()
			if seed {
				seedDemo(fake, time.Now())
			}
			log.Info("listening", logx.String("addr", addr), logx.Bool("seeded", seed))
			return devserver.New(fake, log).ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8787", "Listen address.")
	cmd.Flags().StringVar(&level, "log-level", "info", "Log level.")
	cmd.Flags().BoolVar(&seed, "seed", false, "Start with a demo sheet, tasks and projects.")
	topLevel.AddCommand(cmd)
}

// seedDemo adds a sheet with a small backlog and one scheduled task.
func seedDemo(f *remote.Fake, now time.Time) {
	sheet := f.AddSheet(domain.Sheet{Name: "Work", Description: "Client work", Color: "#3366ff", CreatedAt: now, UpdatedAt: now})
	f.AddSheet(domain.Sheet{Name: "Personal", CreatedAt: now, UpdatedAt: now})
	f.AddProject(domain.Project{ID: "p1", Label: "Acme"})
	f.AddProject(domain.Project{ID: "p2", Label: "Internal"})

	f.AddTask(domain.Task{Title: "Write release notes", Project: "Internal", ScopeID: sheet, DefaultDuration: "2h", Billable: false})
	f.AddTask(domain.Task{Title: "Review pull requests", Project: "Acme", ScopeID: sheet, DefaultDuration: "1h", Billable: true})
	f.AddTask(domain.Task{Title: "Quarterly planning", Project: "Internal", ScopeID: sheet, DefaultDuration: "8h48m", Billable: false})

	standup := f.AddTask(domain.Task{Title: "Standup", Project: "Acme", ScopeID: sheet, Status: domain.StatusScheduled, DefaultDuration: "30m", Billable: true})
	y, m, d := now.Date()
	start := time.Date(y, m, d, 9, 30, 0, 0, now.Location())
	f.AddEntry(domain.TimeEntry{TaskID: standup, ScopeID: sheet, Title: "Standup", Start: start, End: start.Add(30 * time.Minute)})
}
