package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ontime/internal/app"
)

// rootOptions are the persistent flags. Each one can also be set through an
// ONTIME_ environment variable (ONTIME_CONFIG, ONTIME_SHEET, ONTIME_JSON).
type rootOptions struct {
	v *viper.Viper
}

func (o *rootOptions) configPath() string { return o.v.GetString("config") }
func (o *rootOptions) sheet() string      { return strings.TrimSpace(o.v.GetString("sheet")) }
func (o *rootOptions) json() bool         { return o.v.GetBool("json") }

func newRootCmd() *cobra.Command {
	ro := &rootOptions{v: viper.New()}
	ro.v.SetEnvPrefix("ONTIME")
	ro.v.AutomaticEnv()
	ro.v.SetDefault("config", "./ontime.yaml")

	cmd := &cobra.Command{
		Use:           "ontime",
		Short:         "Schedule backlog tasks onto a time-tracking calendar.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := cmd.PersistentFlags()
	pf.String("config", "./ontime.yaml", "Path to the JSON or YAML config.")
	pf.String("sheet", "", "Sheet id to act on instead of the configured one.")
	pf.Bool("json", false, "Output as JSON.")
	for _, name := range []string{"config", "sheet", "json"} {
		_ = ro.v.BindPFlag(name, pf.Lookup(name))
	}

	addSheets(cmd, ro)
	addTasks(cmd, ro)
	addEntries(cmd, ro)
	addSchedule(cmd, ro)
	addUnschedule(cmd, ro)
	addHours(cmd, ro)
	addReport(cmd, ro)
	addCheck(cmd, ro)
	addJournal(cmd, ro)
	addSync(cmd, ro)
	addDevServer(cmd, ro)
	addGCal(cmd, ro)
	addService(cmd, ro)
	return cmd
}

// withApp loads the app, activates the requested sheet and runs fn. The app
// is closed afterwards.
func withApp(ctx context.Context, ro *rootOptions, fn func(a *app.App) error) error {
	a, err := app.NewApp(ro.configPath())
	if err != nil {
		return fmt.Errorf("load %s: %w", ro.configPath(), err)
	}
	defer a.Close()
	if err := a.Bootstrap(ctx); err != nil {
		return err
	}
	if id := ro.sheet(); id != "" {
		if err := a.Sheets().Select(ctx, id); err != nil {
			return err
		}
	}
	return fn(a)
}
