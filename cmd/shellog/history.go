package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"shellog/internal/db"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List persisted command invocations, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		store, err := db.NewStore(db.StoreConfig{
			Backend:          viper.GetString("db.backend"),
			ConnectionString: storeConnectionString(),
		})
		if err != nil {
			return fmt.Errorf("failed to open invocation store: %w", err)
		}
		defer store.Close()

		records, err := store.History(limit)
		if err != nil {
			return fmt.Errorf("failed to query history: %w", err)
		}
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No invocations recorded yet.")
			return nil
		}

		for _, rec := range records {
			desc := rec.Description
			if desc == "" {
				desc = "-"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  exit=%-3d  %-8s  %-24s  %s\n",
				rec.StartedAt.Format(time.DateTime),
				rec.ExitCode,
				(time.Duration(rec.DurationMs) * time.Millisecond).String(),
				desc,
				rec.Command)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of invocations to list")
}
