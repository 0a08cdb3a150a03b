package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/bissquit/toplane-coaching/internal/app"
	"github.com/bissquit/toplane-coaching/internal/config"
	"github.com/bissquit/toplane-coaching/internal/fulfillment"
	"github.com/spf13/cobra"
)

func channelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "Inspect and provision customer channels",
	}
	cmd.AddCommand(channelsListCmd())
	cmd.AddCommand(channelsProvisionCmd())
	return cmd
}

func channelsListCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List retained channel records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				records, err := a.Correlator().List(ctx)
				if err != nil {
					return fmt.Errorf("list records: %w", err)
				}

				if asJSON {
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(records)
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "SESSION\tPLAN\tEMAIL\tCHANNEL\tCREATED")
				for _, r := range records {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						r.SessionID, r.PlanType, r.CustomerEmail, r.ChannelURL, r.CreatedAt.Format(time.RFC3339))
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "output as JSON")
	return cmd
}

func channelsProvisionCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create the channel for a paid checkout session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				outcome, err := a.Fulfillment().ProvisionSession(ctx, sessionID, fulfillment.SourceCLI)
				if err != nil {
					return err
				}
				if !outcome.OK() {
					if outcome.Err != nil {
						return fmt.Errorf("provision %s: %s: %w", sessionID, outcome.Status, outcome.Err)
					}
					return fmt.Errorf("provision %s: %s", sessionID, outcome.Status)
				}

				fmt.Printf("%s %s\n", outcome.Status, outcome.Record.ChannelURL)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "checkout session id")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

// withApp builds the application without serving, runs fn and shuts it down.
func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	quiet(cfg)

	a, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.Shutdown(shutdownCtx)
	}()

	return fn(ctx, a)
}

// quiet keeps CLI output readable; only warnings and errors are logged.
func quiet(cfg *config.Config) {
	if cfg.Log.Level == "debug" {
		return
	}
	cfg.Log.Level = "warn"
	cfg.Log.Format = "text"
}
