// Package remote implements the remote store client (spec §6.2): a
// pgxpool-backed collaborator issuing upsert writes and watermarked reads
// against the posts/likes/comments tables. It is the process-boundary
// interface the push and pull pipelines call through the retry executor —
// every method here is a single round trip, never itself retried.
package remote

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feedsync/feedsync/internal/model"
)

// Client issues upserts and watermarked reads against the remote Postgres
// schema backing posts/likes/comments.
type Client struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Connect establishes a pooled connection using dsn (a standard Postgres
// connection string). Callers should Close the returned Client on shutdown.
func Connect(ctx context.Context, dsn string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("remote: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("remote: ping: %w", err)
	}

	return &Client{pool: pool, logger: logger}, nil
}

// Close releases the connection pool.
func (c *Client) Close() {
	c.pool.Close()
}

const sqlUpsertPost = `
INSERT INTO posts (id, text, image_url, video_url, media_type, thumbnail_url, "timestamp", user_email, deleted_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
	text          = excluded.text,
	image_url     = excluded.image_url,
	video_url     = excluded.video_url,
	media_type    = excluded.media_type,
	thumbnail_url = excluded.thumbnail_url,
	"timestamp"   = excluded."timestamp",
	user_email    = excluded.user_email,
	deleted_at    = excluded.deleted_at,
	updated_at    = excluded.updated_at`

// UpsertPost writes a single post (spec §4.D: posts are pushed one at a
// time, never batched). image_url/video_url are mutually exclusive,
// selected by p.MediaType. updated_at is stamped here as Unix nanoseconds,
// the same convention model.Post.UpdatedAt and every scan in this file use —
// the column is a bigint, not a timestamptz, so Postgres's now() can never be
// written into it directly.
func (c *Client) UpsertPost(ctx context.Context, p *model.Post) error {
	imageURL, videoURL, thumbnailURL := splitMediaURLs(p)

	_, err := c.pool.Exec(ctx, sqlUpsertPost,
		p.ID, p.Text, imageURL, videoURL, string(p.MediaType), thumbnailURL,
		p.Timestamp, p.UserEmail, p.DeletedAt, model.NowNano(),
	)
	if err != nil {
		return fmt.Errorf("remote: upsert post %s: %w", p.ID, err)
	}

	return nil
}

// splitMediaURLs maps a Post's single RemoteURL into the remote schema's
// separate image_url/video_url columns (spec §6.2), along with the optional
// thumbnail. Extracted as a pure function so its branching is testable
// without a database connection.
func splitMediaURLs(p *model.Post) (imageURL, videoURL, thumbnailURL *string) {
	switch p.MediaType {
	case model.MediaImage:
		if p.RemoteURL != "" {
			imageURL = &p.RemoteURL
		}
	case model.MediaVideo:
		if p.RemoteURL != "" {
			videoURL = &p.RemoteURL
		}
	}

	if p.ThumbnailURL != "" {
		thumbnailURL = &p.ThumbnailURL
	}

	return imageURL, videoURL, thumbnailURL
}

const sqlSelectPostsSince = `
SELECT id, text, image_url, video_url, media_type, thumbnail_url, "timestamp", user_email, deleted_at, updated_at
FROM posts
WHERE "timestamp" > $1
ORDER BY "timestamp" DESC
LIMIT $2`

// PostsPageSize is the fixed page size for a pull's posts read (spec §6.2).
const PostsPageSize = 20

// SelectPostsSince returns up to PostsPageSize posts newer than watermark,
// ordered most-recent-first.
func (c *Client) SelectPostsSince(ctx context.Context, watermark int64) ([]*model.Post, error) {
	rows, err := c.pool.Query(ctx, sqlSelectPostsSince, watermark, PostsPageSize)
	if err != nil {
		return nil, fmt.Errorf("remote: select posts since %d: %w", watermark, err)
	}
	defer rows.Close()

	var posts []*model.Post

	for rows.Next() {
		p := &model.Post{}

		var mediaType string

		var imageURL, videoURL, thumbnailURL *string

		if err := rows.Scan(&p.ID, &p.Text, &imageURL, &videoURL, &mediaType, &thumbnailURL,
			&p.Timestamp, &p.UserEmail, &p.DeletedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("remote: scan post row: %w", err)
		}

		p.MediaType = model.MediaType(mediaType)
		if imageURL != nil {
			p.RemoteURL = *imageURL
		} else if videoURL != nil {
			p.RemoteURL = *videoURL
		}

		if thumbnailURL != nil {
			p.ThumbnailURL = *thumbnailURL
		}

		posts = append(posts, p)
	}

	return posts, rows.Err()
}

const sqlUpsertLike = `
INSERT INTO likes (id, post_id, user_email, deleted_at, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
	post_id    = excluded.post_id,
	user_email = excluded.user_email,
	deleted_at = excluded.deleted_at,
	updated_at = excluded.updated_at`

// UpsertLikes batch-writes likes inside one remote call (spec §4.D: likes
// push in a single batch per cycle). Each row is its own upsert statement
// queued in one pgx batch, which Postgres runs as a single implicit
// transaction: a failure on any row rolls back the whole batch, leaving no
// partial write. Every row in the batch is stamped with the same
// Unix-nanosecond updated_at, same convention as UpsertPost.
func (c *Client) UpsertLikes(ctx context.Context, likes []*model.Like) error {
	batch := &pgxBatch{}
	now := model.NowNano()

	for _, l := range likes {
		batch.queue(sqlUpsertLike, l.ID, l.PostID, l.UserEmail, l.DeletedAt, now)
	}

	return c.runBatch(ctx, batch, "upsert likes")
}

const sqlSelectLikesSince = `
SELECT id, post_id, user_email, deleted_at, updated_at
FROM likes
WHERE updated_at > $1
ORDER BY updated_at ASC
LIMIT $2`

// LikesCommentsPageSize is the fixed page size for likes/comments pull reads.
const LikesCommentsPageSize = 100

// SelectLikesSince returns up to LikesCommentsPageSize likes updated after
// watermark (a server-side Unix-nanosecond timestamp).
func (c *Client) SelectLikesSince(ctx context.Context, watermark int64) ([]*model.Like, error) {
	rows, err := c.pool.Query(ctx, sqlSelectLikesSince, watermark, LikesCommentsPageSize)
	if err != nil {
		return nil, fmt.Errorf("remote: select likes since %d: %w", watermark, err)
	}
	defer rows.Close()

	var likes []*model.Like

	for rows.Next() {
		l := &model.Like{}
		if err := rows.Scan(&l.ID, &l.PostID, &l.UserEmail, &l.DeletedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("remote: scan like row: %w", err)
		}

		likes = append(likes, l)
	}

	return likes, rows.Err()
}

const sqlUpsertComment = `
INSERT INTO comments (id, post_id, user_email, text, created_at, deleted_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
	post_id    = excluded.post_id,
	user_email = excluded.user_email,
	text       = excluded.text,
	created_at = excluded.created_at,
	deleted_at = excluded.deleted_at,
	updated_at = excluded.updated_at`

// UpsertComments batch-writes comments inside one remote call, mirroring
// UpsertLikes.
func (c *Client) UpsertComments(ctx context.Context, comments []*model.Comment) error {
	batch := &pgxBatch{}
	now := model.NowNano()

	for _, cm := range comments {
		batch.queue(sqlUpsertComment, cm.ID, cm.PostID, cm.UserEmail, cm.Text, cm.Timestamp, cm.DeletedAt, now)
	}

	return c.runBatch(ctx, batch, "upsert comments")
}

const sqlSelectCommentsSince = `
SELECT id, post_id, user_email, text, created_at, deleted_at, updated_at
FROM comments
WHERE updated_at > $1
ORDER BY updated_at ASC
LIMIT $2`

// SelectCommentsSince returns up to LikesCommentsPageSize comments updated
// after watermark.
func (c *Client) SelectCommentsSince(ctx context.Context, watermark int64) ([]*model.Comment, error) {
	rows, err := c.pool.Query(ctx, sqlSelectCommentsSince, watermark, LikesCommentsPageSize)
	if err != nil {
		return nil, fmt.Errorf("remote: select comments since %d: %w", watermark, err)
	}
	defer rows.Close()

	var comments []*model.Comment

	for rows.Next() {
		cm := &model.Comment{}
		if err := rows.Scan(&cm.ID, &cm.PostID, &cm.UserEmail, &cm.Text, &cm.Timestamp, &cm.DeletedAt, &cm.UpdatedAt); err != nil {
			return nil, fmt.Errorf("remote: scan comment row: %w", err)
		}

		comments = append(comments, cm)
	}

	return comments, rows.Err()
}
