package main

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/feedsync/feedsync/internal/model"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pending sync work and the current pull watermark",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			ctx := cmd.Context()

			unsyncedPosts, err := cc.Store.ListUnsyncedPosts(ctx)
			if err != nil {
				return fmt.Errorf("listing unsynced posts: %w", err)
			}

			unsyncedLikes, err := cc.Store.ListUnsyncedLikes(ctx)
			if err != nil {
				return fmt.Errorf("listing unsynced likes: %w", err)
			}

			unsyncedComments, err := cc.Store.ListUnsyncedComments(ctx)
			if err != nil {
				return fmt.Errorf("listing unsynced comments: %w", err)
			}

			var settings *model.SystemSettings

			if err := cc.Store.WithTx(ctx, func(tx *sql.Tx) error {
				s, err := cc.Store.GetOrCreateSettingsTx(ctx, tx)
				if err != nil {
					return err
				}

				settings = s

				return nil
			}); err != nil {
				return fmt.Errorf("reading settings: %w", err)
			}

			fmt.Printf("unsynced: %d posts, %d likes, %d comments\n",
				len(unsyncedPosts), len(unsyncedLikes), len(unsyncedComments))
			fmt.Printf("pull watermark: %d\n", settings.LastSyncTime)

			return nil
		},
	}
}
