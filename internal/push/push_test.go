package push

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedsync/feedsync/internal/mediapath"
	"github.com/feedsync/feedsync/internal/model"
	"github.com/feedsync/feedsync/internal/objectstore"
	"github.com/feedsync/feedsync/internal/retry"
	"github.com/feedsync/feedsync/internal/store"
)

// fakeRemote records every call the pipeline makes, and can be configured to
// fail specific calls, without touching a real Postgres connection.
type fakeRemote struct {
	failPosts    bool
	failLikes    bool
	failComments bool

	upsertedPosts    []*model.Post
	upsertedLikes    [][]*model.Like
	upsertedComments [][]*model.Comment
}

func (f *fakeRemote) UpsertPost(_ context.Context, p *model.Post) error {
	if f.failPosts {
		return errors.New("remote unavailable")
	}

	f.upsertedPosts = append(f.upsertedPosts, p)

	return nil
}

func (f *fakeRemote) UpsertLikes(_ context.Context, likes []*model.Like) error {
	if f.failLikes {
		return errors.New("remote unavailable")
	}

	f.upsertedLikes = append(f.upsertedLikes, likes)

	return nil
}

func (f *fakeRemote) UpsertComments(_ context.Context, comments []*model.Comment) error {
	if f.failComments {
		return errors.New("remote unavailable")
	}

	f.upsertedComments = append(f.upsertedComments, comments)

	return nil
}

type fakeUploader struct {
	fail bool
}

func (f *fakeUploader) Upload(_ context.Context, _, id string, kind objectstore.Kind) (string, bool) {
	if f.fail {
		return "", false
	}

	return "https://cdn.example.com/" + id, true
}

func newTestPipeline(t *testing.T, r *fakeRemote, u *fakeUploader) (*Pipeline, *store.Store) {
	t.Helper()

	st, err := store.Open(context.Background(), ":memory:", slog.Default())
	require.NoError(t, err)

	t.Cleanup(func() { _ = st.Close() })

	paths := mediapath.New(t.TempDir())

	return New(st, u, paths, r, retry.New(slog.Default()), slog.Default()), st
}

func TestPushPosts_TextOnlyPostSyncsDirectly(t *testing.T) {
	remoteClient := &fakeRemote{}
	p, st := newTestPipeline(t, remoteClient, &fakeUploader{})

	ctx := context.Background()
	post := &model.Post{ID: uuid.NewString(), Text: "hello", MediaType: model.MediaImage, UserEmail: "a@example.com", Timestamp: model.NowNano()}

	require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
		return st.UpsertPost(ctx, tx, post)
	}))

	report := p.Run(ctx)

	assert.Equal(t, 1, report.PostsSynced)
	assert.Equal(t, 0, report.PostsSkipped)
	assert.Len(t, remoteClient.upsertedPosts, 1)

	synced, err := st.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.True(t, synced.IsSynced)
}

func TestPushPosts_MissingMediaFileSkipsPost(t *testing.T) {
	remoteClient := &fakeRemote{}
	p, st := newTestPipeline(t, remoteClient, &fakeUploader{fail: true})

	ctx := context.Background()
	post := &model.Post{ID: uuid.NewString(), Text: "pic", MediaType: model.MediaImage, LocalURI: "photo.jpg", UserEmail: "a@example.com", Timestamp: model.NowNano()}

	require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
		return st.UpsertPost(ctx, tx, post)
	}))

	report := p.Run(ctx)

	assert.Equal(t, 0, report.PostsSynced)
	assert.Equal(t, 1, report.PostsSkipped)
	assert.Empty(t, remoteClient.upsertedPosts)

	still, err := st.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.False(t, still.IsSynced)
}

func TestPushLikes_DeferredUntilParentPostSynced(t *testing.T) {
	remoteClient := &fakeRemote{}
	p, st := newTestPipeline(t, remoteClient, &fakeUploader{})

	ctx := context.Background()
	postID := uuid.NewString()

	require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
		// The parent's media file does not exist, so the posts phase skips it
		// and it is still unsynced when the likes phase runs.
		return st.UpsertPost(ctx, tx, &model.Post{ID: postID, Text: "p", MediaType: model.MediaImage, LocalURI: "missing.jpg", UserEmail: "a@example.com", Timestamp: model.NowNano(), IsSynced: false})
	}))

	like, err := st.ToggleLike(ctx, postID, "b@example.com")
	require.NoError(t, err)
	require.NotNil(t, like)

	report := p.Run(ctx)

	assert.Equal(t, 1, report.LikesDeferred)
	assert.Equal(t, 0, report.LikesSynced)
	assert.Empty(t, remoteClient.upsertedLikes)
}

func TestPushLikes_EligibleOnceParentSynced(t *testing.T) {
	remoteClient := &fakeRemote{}
	p, st := newTestPipeline(t, remoteClient, &fakeUploader{})

	ctx := context.Background()
	postID := uuid.NewString()

	require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
		return st.UpsertPost(ctx, tx, &model.Post{ID: postID, Text: "p", UserEmail: "a@example.com", Timestamp: model.NowNano(), IsSynced: true})
	}))

	like, err := st.ToggleLike(ctx, postID, "b@example.com")
	require.NoError(t, err)
	require.NotNil(t, like)

	report := p.Run(ctx)

	assert.Equal(t, 0, report.LikesDeferred)
	assert.Equal(t, 1, report.LikesSynced)
	require.Len(t, remoteClient.upsertedLikes, 1)
	assert.Len(t, remoteClient.upsertedLikes[0], 1)
}
