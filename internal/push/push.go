// Package push implements the Push Pipeline (spec §4.D): posts, then likes,
// then comments, each phase draining the local store's unsynced rows to the
// remote store. Per the error-propagation policy (spec §7), a phase never
// aborts the cycle on a per-record failure — it logs, leaves the record
// unsynced, and moves on; Run reports only counts, never an error.
package push

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/feedsync/feedsync/internal/mediapath"
	"github.com/feedsync/feedsync/internal/model"
	"github.com/feedsync/feedsync/internal/objectstore"
	"github.com/feedsync/feedsync/internal/retry"
	"github.com/feedsync/feedsync/internal/store"
)

// maxConcurrentUploads bounds the errgroup processing the posts phase, so a
// large backlog doesn't open hundreds of simultaneous uploads.
const maxConcurrentUploads = 4

var errUploadFailed = errors.New("push: media upload failed")

// RemoteClient is the subset of internal/remote.Client the push pipeline
// calls through. Accepting an interface here keeps the pipeline testable
// without a live Postgres connection.
type RemoteClient interface {
	UpsertPost(ctx context.Context, p *model.Post) error
	UpsertLikes(ctx context.Context, likes []*model.Like) error
	UpsertComments(ctx context.Context, comments []*model.Comment) error
}

// MediaUploader is the subset of internal/objectstore.Uploader the push
// pipeline calls through.
type MediaUploader interface {
	Upload(ctx context.Context, localPath, id string, kind objectstore.Kind) (string, bool)
}

// Report summarizes one push cycle, mirroring the teacher's SyncReport shape.
type Report struct {
	PostsSynced      int
	PostsSkipped     int
	LikesSynced      int
	LikesDeferred    int
	CommentsSynced   int
	CommentsDeferred int
	Duration         time.Duration
}

// Pipeline pushes the local store's unsynced rows to the remote collaborators.
type Pipeline struct {
	store    *store.Store
	uploader MediaUploader
	paths    *mediapath.Resolver
	remote   RemoteClient
	retry    *retry.Executor
	logger   *slog.Logger
}

// New creates a Pipeline from its collaborators.
func New(st *store.Store, uploader MediaUploader, paths *mediapath.Resolver, rc RemoteClient, retryExec *retry.Executor, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{store: st, uploader: uploader, paths: paths, remote: rc, retry: retryExec, logger: logger}
}

// Run executes one push cycle: posts, then likes, then comments (§4.D.4).
// It never returns an error — sync routines surface failure only through
// is_synced staying false and through logs (§7).
func (p *Pipeline) Run(ctx context.Context) *Report {
	start := time.Now()

	if p.store.Closed() {
		p.logger.Warn("push: store closed, skipping cycle")
		return &Report{Duration: time.Since(start)}
	}

	report := &Report{}

	p.pushPosts(ctx, report)
	p.pushLikes(ctx, report)
	p.pushComments(ctx, report)

	report.Duration = time.Since(start)

	p.logger.Info("push cycle complete",
		slog.Int("posts_synced", report.PostsSynced),
		slog.Int("posts_skipped", report.PostsSkipped),
		slog.Int("likes_synced", report.LikesSynced),
		slog.Int("likes_deferred", report.LikesDeferred),
		slog.Int("comments_synced", report.CommentsSynced),
		slog.Int("comments_deferred", report.CommentsDeferred),
		slog.Duration("duration", report.Duration),
	)

	return report
}

// pushPosts implements §4.D.1. Posts are processed independently of each
// other (the spec imposes no intra-phase ordering), so each post's upload,
// single-row remote upsert and sync-flag flip run together in one worker of
// a bounded errgroup; up to maxConcurrentUploads posts are in flight at once.
func (p *Pipeline) pushPosts(ctx context.Context, report *Report) {
	posts, err := p.store.ListUnsyncedPosts(ctx)
	if err != nil {
		p.logger.Error("push: list unsynced posts", slog.String("error", err.Error()))
		return
	}

	var synced, skipped atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentUploads)

	for _, post := range posts {
		post := post

		g.Go(func() error {
			if p.pushOnePost(gctx, post) {
				synced.Add(1)
			} else {
				skipped.Add(1)
			}

			return nil
		})
	}

	_ = g.Wait()

	report.PostsSynced += int(synced.Load())
	report.PostsSkipped += int(skipped.Load())
}

// pushOnePost handles a single unsynced post (§4.D.1). Returns true if the
// post ends the call synced, false if it was skipped this cycle.
func (p *Pipeline) pushOnePost(ctx context.Context, post *model.Post) bool {
	if post.LocalURI != "" && post.RemoteURL == "" {
		if !p.uploadPostMedia(ctx, post) {
			p.logger.Warn("push: media upload failed, skipping post this cycle",
				slog.String("post_id", post.ID))

			return false
		}
	}

	ok := p.retry.Execute(ctx, "push post "+post.ID, func(ctx context.Context) error {
		return p.remote.UpsertPost(ctx, post)
	})
	if !ok {
		return false
	}

	if err := p.markPostSynced(ctx, post.ID); err != nil {
		p.logger.Error("push: mark post synced", slog.String("post_id", post.ID), slog.String("error", err.Error()))
		return false
	}

	return true
}

// uploadPostMedia resolves the post's local media file and uploads it,
// recording the resulting public URL (§4.D.1.1-2). Returns false if the
// file is missing or the upload fails after retries — the post is skipped
// this cycle, not retried immediately (§7 "media-missing").
func (p *Pipeline) uploadPostMedia(ctx context.Context, post *model.Post) bool {
	if !p.paths.Exists(post.LocalURI) {
		return false
	}

	fullPath := p.paths.FullPath(post.LocalURI)

	kind := objectstore.KindImage
	if post.MediaType == model.MediaVideo {
		kind = objectstore.KindVideo
	}

	var publicURL string

	ok := p.retry.Execute(ctx, "upload media "+post.ID, func(ctx context.Context) error {
		url, uploaded := p.uploader.Upload(ctx, fullPath, post.ID, kind)
		if !uploaded {
			return errUploadFailed
		}

		publicURL = url

		return nil
	})
	if !ok {
		return false
	}

	if !p.setPostRemoteURL(ctx, post.ID, publicURL) {
		return false
	}

	post.RemoteURL = publicURL

	return true
}

func (p *Pipeline) setPostRemoteURL(ctx context.Context, id, remoteURL string) bool {
	err := p.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := p.store.SetPostRemoteURL(ctx, tx, id, remoteURL); err != nil {
			return err
		}

		return p.store.RecordChange(ctx, tx, store.EntityPost)
	})
	if err != nil {
		p.logger.Error("push: set post remote url", slog.String("post_id", id), slog.String("error", err.Error()))
		return false
	}

	p.store.Changes().Publish(store.EntityPost)

	return true
}

func (p *Pipeline) markPostSynced(ctx context.Context, id string) error {
	err := p.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := p.store.MarkPostSynced(ctx, tx, id); err != nil {
			return err
		}

		return p.store.RecordChange(ctx, tx, store.EntityPost)
	})
	if err != nil {
		return err
	}

	p.store.Changes().Publish(store.EntityPost)

	return nil
}
