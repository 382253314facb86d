package main

import (
	"time"

	"github.com/spf13/cobra"

	"ontime/pkg/systemd"
)

type unitView struct {
	Name        string    `json:"name"`
	Active      string    `json:"active"`
	SubState    string    `json:"sub_state"`
	LoadState   string    `json:"load_state"`
	Description string    `json:"description,omitempty"`
	ActiveSince time.Time `json:"active_since,omitzero"`
}

func addService(topLevel *cobra.Command, ro *rootOptions) {
	var unit string
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Inspect or restart the systemd unit running the sync daemon.",
	}
	cmd.PersistentFlags().StringVar(&unit, "unit", systemd.DefaultUnit, "Unit name.")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the unit state.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := systemd.NewUnits(cmd.Context())
			if err != nil {
				return err
			}
			defer u.Close()
			st, err := u.Status(cmd.Context(), unit)
			if err != nil {
				return err
			}
			p := newPrinter(cmd, ro)
			v := unitView{
				Name:        st.Name,
				Active:      st.Active,
				SubState:    st.SubState,
				LoadState:   st.LoadState,
				Description: st.Description,
				ActiveSince: st.ActiveSince,
			}
			return p.emit(v, func() {
				state := red(st.Active)
				if st.Running() {
					state = green(st.Active)
				}
				p.line("%s  %s (%s)", bold(st.Name), state, st.SubState)
				if st.Description != "" {
					p.line("  %s", faint(st.Description))
				}
				if !st.ActiveSince.IsZero() {
					p.line("  since %s", st.ActiveSince.Local().Format(time.DateTime))
				}
			})
		},
	}

	restart := &cobra.Command{
		Use:   "restart",
		Short: "Restart the unit and wait for the job to finish.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := systemd.NewUnits(cmd.Context())
			if err != nil {
				return err
			}
			defer u.Close()
			if err := u.Restart(cmd.Context(), unit); err != nil {
				return err
			}
			return newPrinter(cmd, ro).done("restarted "+unit, map[string]any{"unit": unit})
		},
	}

	cmd.AddCommand(status, restart)
	topLevel.AddCommand(cmd)
}
