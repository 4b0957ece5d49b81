package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newConflictsCmd reports records that are unsynced locally although a pull
// has already merged them from the remote (a nonzero updated_at) — the set a
// later field-level pull merge (§4.E.3) reconciles rather than a plain
// insert-if-absent. Records synced only by push are not listed.
func newConflictsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "List locally unsynced posts and comments that an earlier pull already merged",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			ctx := cmd.Context()

			posts, err := cc.Store.ListConflictedPosts(ctx)
			if err != nil {
				return fmt.Errorf("listing conflicted posts: %w", err)
			}

			comments, err := cc.Store.ListConflictedComments(ctx)
			if err != nil {
				return fmt.Errorf("listing conflicted comments: %w", err)
			}

			if len(posts) == 0 && len(comments) == 0 {
				fmt.Println("no pending conflicts")
				return nil
			}

			for _, p := range posts {
				fmt.Printf("post  %s  text=%q  remote_url=%q\n", p.ID, p.Text, p.RemoteURL)
			}

			for _, c := range comments {
				fmt.Printf("comment  %s  text=%q\n", c.ID, c.Text)
			}

			return nil
		},
	}
}
