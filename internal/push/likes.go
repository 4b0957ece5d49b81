package push

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/feedsync/feedsync/internal/model"
	"github.com/feedsync/feedsync/internal/store"
)

// pushLikes implements §4.D.2: partition unsynced likes into eligible
// (parent post already synced) and deferred, split eligible likes by
// tombstone state, and send each half as one batch upsert.
func (p *Pipeline) pushLikes(ctx context.Context, report *Report) {
	likes, err := p.store.ListUnsyncedLikes(ctx)
	if err != nil {
		p.logger.Error("push: list unsynced likes", slog.String("error", err.Error()))
		return
	}

	eligible, deferred := p.partitionEligibleLikes(ctx, likes)
	report.LikesDeferred += deferred

	toInsert, toDelete := splitByTombstone(eligible)

	// A batch failure aborts the rest of the likes phase for this cycle
	// (§4.D.2) — the unsent half simply stays unsynced and is retried next
	// cycle, since both halves are independently idempotent.
	n, ok := p.pushLikeBatch(ctx, toInsert)
	report.LikesSynced += n

	if !ok {
		return
	}

	n, _ = p.pushLikeBatch(ctx, toDelete)
	report.LikesSynced += n
}

// partitionEligibleLikes separates likes whose parent post is locally marked
// synced from those whose parent is not yet synced (§4.D.2).
func (p *Pipeline) partitionEligibleLikes(ctx context.Context, likes []*model.Like) (eligible []*model.Like, deferredCount int) {
	for _, l := range likes {
		post, err := p.store.GetPost(ctx, l.PostID)
		if err != nil {
			p.logger.Error("push: lookup parent post for like", slog.String("like_id", l.ID), slog.String("error", err.Error()))
			deferredCount++

			continue
		}

		if post == nil || !post.IsSynced {
			deferredCount++
			continue
		}

		eligible = append(eligible, l)
	}

	return eligible, deferredCount
}

func splitByTombstone(likes []*model.Like) (toInsert, toDelete []*model.Like) {
	for _, l := range likes {
		if model.IsTombstoned(l.DeletedAt) {
			toDelete = append(toDelete, l)
		} else {
			toInsert = append(toInsert, l)
		}
	}

	return toInsert, toDelete
}

// pushLikeBatch sends one batch of same-shaped likes through the retry
// executor and, on success, marks every member synced in one transaction
// (§4.D.2). Returns the number synced and whether the batch itself
// succeeded (an empty batch trivially succeeds with 0 synced).
func (p *Pipeline) pushLikeBatch(ctx context.Context, batch []*model.Like) (synced int, ok bool) {
	if len(batch) == 0 {
		return 0, true
	}

	ok = p.retry.Execute(ctx, "push likes batch", func(ctx context.Context) error {
		return p.remote.UpsertLikes(ctx, batch)
	})
	if !ok {
		return 0, false
	}

	ids := make([]string, len(batch))
	for i, l := range batch {
		ids[i] = l.ID
	}

	err := p.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := p.store.MarkLikesSynced(ctx, tx, ids); err != nil {
			return err
		}

		return p.store.RecordChange(ctx, tx, store.EntityLike)
	})
	if err != nil {
		p.logger.Error("push: mark likes synced", slog.String("error", err.Error()))
		return 0, false
	}

	p.store.Changes().Publish(store.EntityLike)

	return len(batch), true
}
