package pull

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedsync/feedsync/internal/model"
	"github.com/feedsync/feedsync/internal/retry"
	"github.com/feedsync/feedsync/internal/store"
)

type fakeRemote struct {
	posts    []*model.Post
	likes    []*model.Like
	comments []*model.Comment
}

func (f *fakeRemote) SelectPostsSince(context.Context, int64) ([]*model.Post, error) {
	return f.posts, nil
}

func (f *fakeRemote) SelectLikesSince(context.Context, int64) ([]*model.Like, error) {
	return f.likes, nil
}

func (f *fakeRemote) SelectCommentsSince(context.Context, int64) ([]*model.Comment, error) {
	return f.comments, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.Open(context.Background(), ":memory:", slog.Default())
	require.NoError(t, err)

	t.Cleanup(func() { _ = st.Close() })

	return st
}

func TestPullPosts_NewRemotePostInsertedSynced(t *testing.T) {
	st := newTestStore(t)
	remoteClient := &fakeRemote{posts: []*model.Post{
		{ID: uuid.NewString(), Text: "hi", Timestamp: model.NowNano(), UpdatedAt: model.NowNano()},
	}}

	p := New(st, remoteClient, retry.New(slog.Default()), slog.Default())

	report := p.Run(context.Background())

	assert.Equal(t, 1, report.PostsMerged)

	local, err := st.GetPost(context.Background(), remoteClient.posts[0].ID)
	require.NoError(t, err)
	require.NotNil(t, local)
	assert.True(t, local.IsSynced)
	assert.Equal(t, model.MediaImage, local.MediaType)
	assert.Equal(t, "anon", local.UserEmail)
}

func TestPullPosts_AdvancesWatermark(t *testing.T) {
	st := newTestStore(t)
	remoteClient := &fakeRemote{posts: []*model.Post{
		{ID: uuid.NewString(), Text: "hi", Timestamp: model.NowNano(), UpdatedAt: model.NowNano()},
	}}

	p := New(st, remoteClient, retry.New(slog.Default()), slog.Default())
	p.Run(context.Background())

	watermark, err := p.readWatermark(context.Background())
	require.NoError(t, err)
	assert.Positive(t, watermark)
}

func TestPullLikes_InsertIfAbsent(t *testing.T) {
	st := newTestStore(t)
	remoteClient := &fakeRemote{likes: []*model.Like{
		{ID: uuid.NewString(), PostID: uuid.NewString(), UserEmail: "a@example.com", UpdatedAt: model.NowNano()},
	}}

	p := New(st, remoteClient, retry.New(slog.Default()), slog.Default())
	report := p.Run(context.Background())

	assert.Equal(t, 1, report.LikesMerged)
}

func TestPullLikes_ExistingLocalRowIsNotClobbered(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	likeID := uuid.NewString()
	postID := uuid.NewString()

	require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
		return st.UpsertLike(ctx, tx, &model.Like{ID: likeID, PostID: postID, UserEmail: "a@example.com", IsSynced: false})
	}))

	remoteClient := &fakeRemote{likes: []*model.Like{
		{ID: likeID, PostID: postID, UserEmail: "a@example.com", DeletedAt: model.Int64Ptr(model.NowNano()), UpdatedAt: model.NowNano()},
	}}

	p := New(st, remoteClient, retry.New(slog.Default()), slog.Default())
	report := p.Run(ctx)

	assert.Zero(t, report.LikesMerged)

	var got *model.Like

	require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
		g, err := st.GetLikeTx(ctx, tx, likeID)
		got = g

		return err
	}))

	require.NotNil(t, got)
	assert.False(t, got.IsSynced)
	assert.Nil(t, got.DeletedAt)
}

func TestMergePost_UnsyncedLocalKeepsItsOwnField_TakesRemoteOther(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	postID := uuid.NewString()

	require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
		return st.UpsertPost(ctx, tx, &model.Post{
			ID: postID, Text: "A2", MediaType: model.MediaImage, UserEmail: "alice@example.com",
			Timestamp: model.NowNano(), IsSynced: false,
			SyncedText: "A", RemoteURL: "old.jpg", SyncedRemoteURL: "old.jpg", UpdatedAt: 100,
		})
	}))

	remoteClient := &fakeRemote{posts: []*model.Post{
		{ID: postID, Text: "A", MediaType: model.MediaImage, UserEmail: "alice@example.com",
			RemoteURL: "new.jpg", UpdatedAt: 200},
	}}

	p := New(st, remoteClient, retry.New(slog.Default()), slog.Default())
	report := p.Run(ctx)

	assert.Equal(t, 1, report.PostsMerged)

	got, err := st.GetPost(ctx, postID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "A2", got.Text, "local's own unsynced text edit must survive the merge")
	assert.Equal(t, "new.jpg", got.RemoteURL, "remote's image change must be adopted since local never touched it")
	assert.True(t, got.IsSynced)
}

func TestMergePost_BothSidesChangedSameField_RemoteNewerWins(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	postID := uuid.NewString()

	require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
		return st.UpsertPost(ctx, tx, &model.Post{
			ID: postID, Text: "A", MediaType: model.MediaImage, UserEmail: "alice@example.com",
			Timestamp: model.NowNano(), IsSynced: false, UpdatedAt: 0,
		})
	}))

	remoteClient := &fakeRemote{posts: []*model.Post{
		{ID: postID, Text: "B", MediaType: model.MediaImage, UserEmail: "alice@example.com", UpdatedAt: 500},
	}}

	p := New(st, remoteClient, retry.New(slog.Default()), slog.Default())
	p.Run(ctx)

	got, err := st.GetPost(ctx, postID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "B", got.Text)
	assert.True(t, got.IsSynced)
}

func TestPullComments_EmptyResultNoOp(t *testing.T) {
	st := newTestStore(t)
	remoteClient := &fakeRemote{}

	p := New(st, remoteClient, retry.New(slog.Default()), slog.Default())
	report := p.Run(context.Background())

	assert.Zero(t, report.PostsMerged)
	assert.Zero(t, report.LikesMerged)
	assert.Zero(t, report.CommentsMerged)
}
