package prune

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedsync/feedsync/internal/model"
	"github.com/feedsync/feedsync/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.Open(context.Background(), ":memory:", slog.Default())
	require.NoError(t, err)

	t.Cleanup(func() { _ = st.Close() })

	return st
}

func TestPrune_ReapsOldSyncedTombstone(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	old := model.NowNano() - int64(RetentionDays+1)*int64(24*time.Hour)
	post := &model.Post{ID: uuid.NewString(), Text: "gone", UserEmail: "a@example.com", Timestamp: model.NowNano(), IsSynced: true, DeletedAt: model.Int64Ptr(old)}

	require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
		return st.UpsertPost(ctx, tx, post)
	}))

	report := New(st, slog.Default()).Run(ctx)

	assert.Equal(t, 1, report.TombstonesReaped)

	gone, err := st.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestPrune_KeepsUnsyncedTombstone(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	old := model.NowNano() - int64(RetentionDays+1)*int64(24*time.Hour)
	post := &model.Post{ID: uuid.NewString(), Text: "gone", UserEmail: "a@example.com", Timestamp: model.NowNano(), IsSynced: false, DeletedAt: model.Int64Ptr(old)}

	require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
		return st.UpsertPost(ctx, tx, post)
	}))

	report := New(st, slog.Default()).Run(ctx)

	assert.Equal(t, 0, report.TombstonesReaped)

	still, err := st.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.NotNil(t, still)
}

func TestPrune_SizeCapReapsOldest(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < MaxPosts+3; i++ {
		post := &model.Post{
			ID: uuid.NewString(), Text: "p", UserEmail: "a@example.com",
			Timestamp: int64(i), IsSynced: true,
		}

		require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
			return st.UpsertPost(ctx, tx, post)
		}))
	}

	report := New(st, slog.Default()).Run(ctx)

	assert.Equal(t, 3, report.SizeCapReaped)

	var count int

	require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		count, err = st.CountActiveSyncedPosts(ctx, tx)

		return err
	}))
	assert.Equal(t, MaxPosts, count)
}

func TestPrune_SweepsOrphanLikes(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	orphanPostID := uuid.NewString()

	_, err := st.ToggleLike(ctx, orphanPostID, "a@example.com")
	require.NoError(t, err)

	report := New(st, slog.Default()).Run(ctx)

	assert.Equal(t, 1, report.OrphansSwept)
}
