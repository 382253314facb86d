package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ontime/internal/app"
	"ontime/internal/config"
	"ontime/internal/mirror/gcal"
)

func addGCal(topLevel *cobra.Command, ro *rootOptions) {
	cmd := &cobra.Command{
		Use:   "gcal",
		Short: "Google Calendar mirror of the active sheet.",
	}

	var credentials, token string
	auth := &cobra.Command{
		Use:   "auth",
		Short: "Authorize calendar access and store the token.",
		Long: `Print the consent URL, read the authorization code from stdin and store
the token at mirror.gcal.token. Flags override the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg, err := config.NewManager(ro.configPath()).Parse(); err == nil {
				if credentials == "" {
					credentials = cfg.Mirror.GCal.Credentials
				}
				if token == "" {
					token = cfg.Mirror.GCal.Token
				}
			}
			if credentials == "" || token == "" {
				return errors.New("credentials and token paths are required")
			}
			oc, err := gcal.OAuthConfig(credentials)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Open this URL and paste the code below:")
			fmt.Fprintln(out, gcal.AuthURL(oc, "ontime"))
			fmt.Fprint(out, bold("code: "))

			sc := bufio.NewScanner(cmd.InOrStdin())
			if !sc.Scan() {
				if err := sc.Err(); err != nil {
					return err
				}
				return errors.New("no code given")
			}
			code := strings.TrimSpace(sc.Text())
			if err := gcal.ExchangeAndSave(cmd.Context(), oc, code, token); err != nil {
				return err
			}
			fmt.Fprintf(out, "%s token saved to %s\n", green("ok"), token)
			return nil
		},
	}
	auth.Flags().StringVar(&credentials, "credentials", "", "OAuth client secrets json.")
	auth.Flags().StringVar(&token, "token", "", "Where to store the token.")

	sync := &cobra.Command{
		Use:   "sync",
		Short: "Mirror the active sheet's entries once.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), ro, func(a *app.App) error {
				m := a.Mirror()
				if m == nil {
					return errors.New("mirror.gcal is not enabled")
				}
				scope := a.Sheets().Active()
				st, err := m.Sync(cmd.Context(), scope, a.Entries().Entries())
				p := newPrinter(cmd, ro)
				if perr := p.emit(st, func() {
					p.line("%s inserted %d, patched %d, deleted %d", bold(scope), st.Inserted, st.Patched, st.Deleted)
				}); perr != nil {
					return perr
				}
				return err
			})
		},
	}

	cmd.AddCommand(auth, sync)
	topLevel.AddCommand(cmd)
}
