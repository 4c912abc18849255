package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/scalpel-ui/internal/observability"
	"github.com/xkilldash9x/scalpel-ui/internal/store"
)

func newDBCmd() *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the results database",
	}
	dbCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the tables test runs are stored in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			url := cfg.Database().URL
			if url == "" {
				return fmt.Errorf("database URL is not configured (%s_DATABASE_URL)", envPrefix)
			}

			s, err := store.Connect(cmd.Context(), url, observability.GetLogger())
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
			return nil
		},
	})
	return dbCmd
}
