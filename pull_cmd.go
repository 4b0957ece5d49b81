package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Merge remote posts, likes, and comments into the local store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			report := cc.Pull.Run(cmd.Context())

			fmt.Printf("merged: %d posts, %d likes, %d comments (%s)\n",
				report.PostsMerged, report.LikesMerged, report.CommentsMerged, report.Duration)

			return nil
		},
	}
}
