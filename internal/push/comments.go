package push

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/feedsync/feedsync/internal/model"
	"github.com/feedsync/feedsync/internal/store"
)

// pushComments implements §4.D.3: identical shape to likes, against the
// comments table.
func (p *Pipeline) pushComments(ctx context.Context, report *Report) {
	comments, err := p.store.ListUnsyncedComments(ctx)
	if err != nil {
		p.logger.Error("push: list unsynced comments", slog.String("error", err.Error()))
		return
	}

	eligible, deferred := p.partitionEligibleComments(ctx, comments)
	report.CommentsDeferred += deferred

	toInsert, toDelete := splitCommentsByTombstone(eligible)

	n, ok := p.pushCommentBatch(ctx, toInsert)
	report.CommentsSynced += n

	if !ok {
		return
	}

	n, _ = p.pushCommentBatch(ctx, toDelete)
	report.CommentsSynced += n
}

func (p *Pipeline) partitionEligibleComments(ctx context.Context, comments []*model.Comment) (eligible []*model.Comment, deferredCount int) {
	for _, c := range comments {
		post, err := p.store.GetPost(ctx, c.PostID)
		if err != nil {
			p.logger.Error("push: lookup parent post for comment", slog.String("comment_id", c.ID), slog.String("error", err.Error()))
			deferredCount++

			continue
		}

		if post == nil || !post.IsSynced {
			deferredCount++
			continue
		}

		eligible = append(eligible, c)
	}

	return eligible, deferredCount
}

func splitCommentsByTombstone(comments []*model.Comment) (toInsert, toDelete []*model.Comment) {
	for _, c := range comments {
		if model.IsTombstoned(c.DeletedAt) {
			toDelete = append(toDelete, c)
		} else {
			toInsert = append(toInsert, c)
		}
	}

	return toInsert, toDelete
}

func (p *Pipeline) pushCommentBatch(ctx context.Context, batch []*model.Comment) (synced int, ok bool) {
	if len(batch) == 0 {
		return 0, true
	}

	ok = p.retry.Execute(ctx, "push comments batch", func(ctx context.Context) error {
		return p.remote.UpsertComments(ctx, batch)
	})
	if !ok {
		return 0, false
	}

	ids := make([]string, len(batch))
	for i, c := range batch {
		ids[i] = c.ID
	}

	err := p.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := p.store.MarkCommentsSynced(ctx, tx, ids); err != nil {
			return err
		}

		return p.store.RecordChange(ctx, tx, store.EntityComment)
	})
	if err != nil {
		p.logger.Error("push: mark comments synced", slog.String("error", err.Error()))
		return 0, false
	}

	p.store.Changes().Publish(store.EntityComment)

	return len(batch), true
}
