package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Push unsynced local posts, likes, and comments to the remote store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			report := cc.Push.Run(cmd.Context())

			fmt.Printf("posts: %d synced, %d skipped\n", report.PostsSynced, report.PostsSkipped)
			fmt.Printf("likes: %d synced, %d deferred\n", report.LikesSynced, report.LikesDeferred)
			fmt.Printf("comments: %d synced, %d deferred\n", report.CommentsSynced, report.CommentsDeferred)

			return nil
		},
	}
}
