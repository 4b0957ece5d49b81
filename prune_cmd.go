package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Reap expired tombstones, enforce the local size cap, and sweep orphan rows",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			report := cc.Prune.Run(cmd.Context())

			fmt.Printf("tombstones reaped: %d, size-cap reaped: %d, orphans swept: %d\n",
				report.TombstonesReaped, report.SizeCapReaped, report.OrphansSwept)

			return nil
		},
	}
}
