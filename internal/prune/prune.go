// Package prune implements the Pruner (spec §4.F): tombstone GC, size-cap
// reaping, and orphan sweep, in that order, inside a single local
// transaction.
package prune

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/feedsync/feedsync/internal/model"
	"github.com/feedsync/feedsync/internal/store"
)

// Constants per spec §4.F.
const (
	RetentionDays = 30
	MaxPosts      = 500
)

// Report summarizes one prune cycle.
type Report struct {
	TombstonesReaped int
	SizeCapReaped    int
	OrphansSwept     int
}

// Pruner reaps stale rows from the local store.
type Pruner struct {
	store  *store.Store
	logger *slog.Logger
}

// New creates a Pruner.
func New(st *store.Store, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}

	return &Pruner{store: st, logger: logger}
}

// Run executes one prune cycle (§4.F): tombstone GC and size cap precede the
// orphan sweep, in one transaction, so children of reaped posts are caught
// by the same pass.
func (p *Pruner) Run(ctx context.Context) *Report {
	report := &Report{}

	if p.store.Closed() {
		p.logger.Warn("prune: store closed, skipping cycle")
		return report
	}

	err := p.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := p.reapTombstones(ctx, tx, report); err != nil {
			return err
		}

		if err := p.capSize(ctx, tx, report); err != nil {
			return err
		}

		if err := p.sweepOrphans(ctx, tx, report); err != nil {
			return err
		}

		if report.TombstonesReaped+report.SizeCapReaped > 0 {
			if err := p.store.RecordChange(ctx, tx, store.EntityPost); err != nil {
				return err
			}
		}

		if report.OrphansSwept > 0 {
			if err := p.store.RecordChange(ctx, tx, store.EntityLike); err != nil {
				return err
			}

			if err := p.store.RecordChange(ctx, tx, store.EntityComment); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		p.logger.Error("prune: cycle failed", slog.String("error", err.Error()))
		return &Report{}
	}

	if report.TombstonesReaped+report.SizeCapReaped > 0 {
		p.store.Changes().Publish(store.EntityPost)
	}

	if report.OrphansSwept > 0 {
		p.store.Changes().Publish(store.EntityLike)
		p.store.Changes().Publish(store.EntityComment)
	}

	p.logger.Info("prune cycle complete",
		slog.Int("tombstones_reaped", report.TombstonesReaped),
		slog.Int("size_cap_reaped", report.SizeCapReaped),
		slog.Int("orphans_swept", report.OrphansSwept),
	)

	return report
}

// reapTombstones implements §4.F.1: delete synced posts/likes/comments
// tombstoned before the retention cutoff.
func (p *Pruner) reapTombstones(ctx context.Context, tx *sql.Tx, report *Report) error {
	cutoff := model.NowNano() - int64(RetentionDays)*int64(24*time.Hour)

	posts, err := p.store.ListTombstonedSyncedPostsBefore(ctx, tx, cutoff)
	if err != nil {
		return err
	}

	for _, post := range posts {
		if err := p.store.DeletePost(ctx, tx, post.ID); err != nil {
			return err
		}

		report.TombstonesReaped++
	}

	likes, err := p.store.ListTombstonedSyncedLikesBefore(ctx, tx, cutoff)
	if err != nil {
		return err
	}

	for _, like := range likes {
		if err := p.store.DeleteLike(ctx, tx, like.ID); err != nil {
			return err
		}

		report.TombstonesReaped++
	}

	comments, err := p.store.ListTombstonedSyncedCommentsBefore(ctx, tx, cutoff)
	if err != nil {
		return err
	}

	for _, comment := range comments {
		if err := p.store.DeleteComment(ctx, tx, comment.ID); err != nil {
			return err
		}

		report.TombstonesReaped++
	}

	return nil
}

// capSize implements §4.F.2: among active synced posts, reap the oldest down
// to MaxPosts.
func (p *Pruner) capSize(ctx context.Context, tx *sql.Tx, report *Report) error {
	count, err := p.store.CountActiveSyncedPosts(ctx, tx)
	if err != nil {
		return err
	}

	if count <= MaxPosts {
		return nil
	}

	excess := count - MaxPosts

	posts, err := p.store.ListActiveSyncedPosts(ctx, tx)
	if err != nil {
		return err
	}

	for i := 0; i < excess && i < len(posts); i++ {
		if err := p.store.DeletePost(ctx, tx, posts[i].ID); err != nil {
			return err
		}

		report.SizeCapReaped++
	}

	return nil
}

// sweepOrphans implements §4.F.3: delete any like or comment whose parent
// post no longer exists locally.
func (p *Pruner) sweepOrphans(ctx context.Context, tx *sql.Tx, report *Report) error {
	orphanLikes, err := p.store.DeleteOrphanLikes(ctx, tx)
	if err != nil {
		return err
	}

	orphanComments, err := p.store.DeleteOrphanComments(ctx, tx)
	if err != nil {
		return err
	}

	report.OrphansSwept += int(orphanLikes) + int(orphanComments)

	return nil
}
