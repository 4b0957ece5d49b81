// Package pull implements the Pull Pipeline (spec §4.E): watermarked reads
// from the remote store, merged into local state inside a single
// transaction per entity group, with the watermark advanced only after that
// transaction commits.
package pull

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/feedsync/feedsync/internal/model"
	"github.com/feedsync/feedsync/internal/retry"
	"github.com/feedsync/feedsync/internal/store"
)

// RemoteClient is the subset of internal/remote.Client the pull pipeline
// calls through.
type RemoteClient interface {
	SelectPostsSince(ctx context.Context, watermark int64) ([]*model.Post, error)
	SelectLikesSince(ctx context.Context, watermark int64) ([]*model.Like, error)
	SelectCommentsSince(ctx context.Context, watermark int64) ([]*model.Comment, error)
}

// Report summarizes one pull cycle.
type Report struct {
	PostsMerged    int
	LikesMerged    int
	CommentsMerged int
	Duration       time.Duration
}

// Pipeline merges remote changes into the local store.
type Pipeline struct {
	store  *store.Store
	remote RemoteClient
	retry  *retry.Executor
	logger *slog.Logger
}

// New creates a Pipeline from its collaborators.
func New(st *store.Store, rc RemoteClient, retryExec *retry.Executor, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{store: st, remote: rc, retry: retryExec, logger: logger}
}

// Run executes one pull cycle (§4.E). It never returns an error; a failed
// fetch leaves the watermark unchanged and is retried next cycle.
func (p *Pipeline) Run(ctx context.Context) *Report {
	start := time.Now()
	report := &Report{}

	if p.store.Closed() {
		p.logger.Warn("pull: store closed, skipping cycle")
		report.Duration = time.Since(start)

		return report
	}

	watermark, err := p.readWatermark(ctx)
	if err != nil {
		p.logger.Error("pull: read watermark", slog.String("error", err.Error()))
		report.Duration = time.Since(start)

		return report
	}

	p.pullPosts(ctx, watermark, report)
	p.pullLikes(ctx, watermark, report)
	p.pullComments(ctx, watermark, report)

	report.Duration = time.Since(start)

	p.logger.Info("pull cycle complete",
		slog.Int("posts_merged", report.PostsMerged),
		slog.Int("likes_merged", report.LikesMerged),
		slog.Int("comments_merged", report.CommentsMerged),
		slog.Duration("duration", report.Duration),
	)

	return report
}

func (p *Pipeline) readWatermark(ctx context.Context) (int64, error) {
	var watermark int64

	err := p.store.WithTx(ctx, func(tx *sql.Tx) error {
		settings, err := p.store.GetOrCreateSettingsTx(ctx, tx)
		if err != nil {
			return err
		}

		watermark = settings.LastSyncTime

		return nil
	})

	return watermark, err
}

// pullPosts implements §4.E.2-4 for posts: fetch, merge, and advance the
// watermark, all inside one transaction so a crash mid-merge leaves the
// watermark at its prior value (§4.D.4 ordering note / §4.E "crashed Pull
// re-reads from the old watermark").
func (p *Pipeline) pullPosts(ctx context.Context, watermark int64, report *Report) {
	var posts []*model.Post

	ok := p.retry.Execute(ctx, "pull posts", func(ctx context.Context) error {
		fetched, err := p.remote.SelectPostsSince(ctx, watermark)
		if err != nil {
			return err
		}

		posts = fetched

		return nil
	})
	if !ok {
		return
	}

	if len(posts) == 0 {
		return
	}

	err := p.store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, remotePost := range posts {
			if err := p.mergePost(ctx, tx, remotePost); err != nil {
				return err
			}

			report.PostsMerged++
		}

		if len(posts) > 0 {
			if err := p.store.RecordChange(ctx, tx, store.EntityPost); err != nil {
				return err
			}
		}

		return p.store.AdvanceWatermark(ctx, tx, model.NowNano())
	})
	if err != nil {
		p.logger.Error("pull: merge posts", slog.String("error", err.Error()))
		report.PostsMerged = 0

		return
	}

	if report.PostsMerged > 0 {
		p.store.Changes().Publish(store.EntityPost)
	}
}

// mergePost implements §4.E.3. A synced local record has no pending local
// edits, so the remote copy always wins outright. An unsynced local record
// is diffed field-by-field against its last-synced baseline (local.SyncedText
// / local.SyncedRemoteURL) rather than against remotePost.UpdatedAt: Post.Timestamp
// is frozen author time and never reflects a local edit, so comparing it
// against the server's updated_at can never tell which side changed which
// field (P10, S4).
func (p *Pipeline) mergePost(ctx context.Context, tx *sql.Tx, remotePost *model.Post) error {
	local, err := p.store.GetPostTx(ctx, tx, remotePost.ID)
	if err != nil {
		return err
	}

	if local == nil {
		remotePost.IsSynced = true
		if remotePost.UserEmail == "" {
			remotePost.UserEmail = "anon"
		}

		if remotePost.MediaType == "" {
			remotePost.MediaType = model.MediaImage
		}

		remotePost.SyncedText = remotePost.Text
		remotePost.SyncedRemoteURL = remotePost.RemoteURL

		return p.store.UpsertPost(ctx, tx, remotePost)
	}

	if local.IsSynced {
		local.Text = remotePost.Text
		local.RemoteURL = remotePost.RemoteURL
		local.ThumbnailURL = remotePost.ThumbnailURL
		local.Timestamp = remotePost.Timestamp
		local.SyncedText = remotePost.Text
		local.SyncedRemoteURL = remotePost.RemoteURL
		local.IsSynced = true

		return p.store.UpsertPost(ctx, tx, local)
	}

	textChangedRemotely := remotePost.Text != local.SyncedText
	textChangedLocally := local.Text != local.SyncedText
	urlChangedRemotely := remotePost.RemoteURL != local.SyncedRemoteURL
	urlChangedLocally := local.RemoteURL != local.SyncedRemoteURL

	switch {
	case textChangedRemotely && !textChangedLocally:
		local.Text = remotePost.Text
	case textChangedRemotely && textChangedLocally && remotePost.UpdatedAt > local.UpdatedAt:
		// Both sides touched text since the last sync: last-write-wins.
		local.Text = remotePost.Text
	}

	switch {
	case urlChangedRemotely && !urlChangedLocally:
		local.RemoteURL = remotePost.RemoteURL
	case urlChangedRemotely && urlChangedLocally && remotePost.UpdatedAt > local.UpdatedAt:
		local.RemoteURL = remotePost.RemoteURL
	}

	local.UpdatedAt = remotePost.UpdatedAt
	local.SyncedText = local.Text
	local.SyncedRemoteURL = local.RemoteURL
	local.IsSynced = true

	return p.store.UpsertPost(ctx, tx, local)
}

func (p *Pipeline) pullLikes(ctx context.Context, watermark int64, report *Report) {
	var likes []*model.Like

	ok := p.retry.Execute(ctx, "pull likes", func(ctx context.Context) error {
		fetched, err := p.remote.SelectLikesSince(ctx, watermark)
		if err != nil {
			return err
		}

		likes = fetched

		return nil
	})
	if !ok || len(likes) == 0 {
		return
	}

	err := p.store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, remoteLike := range likes {
			// Likes have no conflict surface (§4.E.5): insert-if-absent. A
			// local row already present for this ID — synced or not — is
			// left untouched, so a pending local toggle that hasn't pushed
			// yet is never clobbered by a repull of the same like.
			existing, err := p.store.GetLikeTx(ctx, tx, remoteLike.ID)
			if err != nil {
				return err
			}

			if existing != nil {
				continue
			}

			remoteLike.IsSynced = true
			if err := p.store.UpsertLike(ctx, tx, remoteLike); err != nil {
				return err
			}

			report.LikesMerged++
		}

		if report.LikesMerged > 0 {
			if err := p.store.RecordChange(ctx, tx, store.EntityLike); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		p.logger.Error("pull: merge likes", slog.String("error", err.Error()))
		report.LikesMerged = 0

		return
	}

	if report.LikesMerged > 0 {
		p.store.Changes().Publish(store.EntityLike)
	}
}

func (p *Pipeline) pullComments(ctx context.Context, watermark int64, report *Report) {
	var comments []*model.Comment

	ok := p.retry.Execute(ctx, "pull comments", func(ctx context.Context) error {
		fetched, err := p.remote.SelectCommentsSince(ctx, watermark)
		if err != nil {
			return err
		}

		comments = fetched

		return nil
	})
	if !ok || len(comments) == 0 {
		return
	}

	err := p.store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, remoteComment := range comments {
			if err := p.mergeComment(ctx, tx, remoteComment); err != nil {
				return err
			}

			report.CommentsMerged++
		}

		if len(comments) > 0 {
			if err := p.store.RecordChange(ctx, tx, store.EntityComment); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		p.logger.Error("pull: merge comments", slog.String("error", err.Error()))
		report.CommentsMerged = 0

		return
	}

	if report.CommentsMerged > 0 {
		p.store.Changes().Publish(store.EntityComment)
	}
}

// mergeComment applies the same field-level merge on text that posts get
// (§4.E.3/§4.E.5), diffed against the synced_text baseline rather than the
// record-level Timestamp/UpdatedAt pair — see mergePost.
func (p *Pipeline) mergeComment(ctx context.Context, tx *sql.Tx, remoteComment *model.Comment) error {
	local, err := p.store.GetCommentTx(ctx, tx, remoteComment.ID)
	if err != nil {
		return err
	}

	if local == nil {
		remoteComment.IsSynced = true
		remoteComment.SyncedText = remoteComment.Text

		return p.store.UpsertComment(ctx, tx, remoteComment)
	}

	if local.IsSynced {
		local.Text = remoteComment.Text
		local.SyncedText = remoteComment.Text
		local.IsSynced = true

		return p.store.UpsertComment(ctx, tx, local)
	}

	textChangedRemotely := remoteComment.Text != local.SyncedText
	textChangedLocally := local.Text != local.SyncedText

	switch {
	case textChangedRemotely && !textChangedLocally:
		local.Text = remoteComment.Text
	case textChangedRemotely && textChangedLocally && remoteComment.UpdatedAt > local.UpdatedAt:
		local.Text = remoteComment.Text
	}

	local.UpdatedAt = remoteComment.UpdatedAt
	local.SyncedText = local.Text
	local.IsSynced = true

	return p.store.UpsertComment(ctx, tx, local)
}
