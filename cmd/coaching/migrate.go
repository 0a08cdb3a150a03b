package main

import (
	"errors"
	"fmt"

	"github.com/bissquit/toplane-coaching/internal/pkg/postgres"
	"github.com/bissquit/toplane-coaching/migrations"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the PostgreSQL store schema",
	}

	for _, direction := range []string{"up", "down"} {
		cmd.AddCommand(&cobra.Command{
			Use:   direction,
			Short: fmt.Sprintf("Run migrations %s", direction),
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				if cfg.Store.Postgres.URL == "" {
					return errors.New("store.postgres.url is not set")
				}
				return postgres.Migrate(cfg.Store.Postgres.URL, migrations.FS, direction)
			},
		})
	}

	return cmd
}
