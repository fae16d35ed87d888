package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nexus/internal/vectorstore/postgres"
)

func migrateCMD(opts *rootOptions) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:       "migrate up|down",
		Short:     "Run Postgres schema migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cfg.VectorStore.Postgres == nil {
				return fmt.Errorf("vector_store.postgres is not configured")
			}
			dsn, err := cfg.PostgresDSN()
			if err != nil {
				return err
			}
			if err := postgres.Migrate(dsn, args[0], steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations %s: done\n", args[0])
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	return cmd
}
