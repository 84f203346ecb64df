package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"apiharvest/internal/storage"
)

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently executed bridge commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			j, err := storage.Open(e.cfg.SqlitePath(), e.cfg.Sqlite.Prefix, e.log.With("module", "storage"))
			if err != nil {
				return err
			}
			defer j.Close()
			records, err := j.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tACTION\tOK\tMS\tERROR")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%s\n", r.CreatedAt.Local().Format(time.DateTime), r.Action, r.OK, r.DurationMS, r.Error)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of commands")
	return cmd
}
