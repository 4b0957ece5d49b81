package main

import (
	"github.com/spf13/cobra"
)

func newTickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run one push -> pull -> prune cycle, honoring the scheduler's backoff window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			cc.Sched.BackgroundTick(cmd.Context())

			return nil
		},
	}
}
