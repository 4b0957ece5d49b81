package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedsync/feedsync/internal/model"
)

func newTestComment(postID string) *model.Comment {
	return &model.Comment{
		ID:        uuid.NewString(),
		PostID:    postID,
		UserEmail: "carol@example.com",
		Text:      "nice post",
		Timestamp: model.NowNano(),
		IsSynced:  false,
	}
}

func TestUpsertComment_GetCommentRoundTrips(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	p := newTestPost(uuid.NewString())
	c := newTestComment(p.ID)

	require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
		if err := st.UpsertPost(ctx, tx, p); err != nil {
			return err
		}

		return st.UpsertComment(ctx, tx, c)
	}))

	var got *model.Comment

	require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
		g, err := st.GetCommentTx(ctx, tx, c.ID)
		got = g

		return err
	}))

	require.NotNil(t, got)
	assert.Equal(t, c.Text, got.Text)
	assert.False(t, got.IsSynced)
}

func TestMarkCommentsSynced_FlipsAllListedIDs(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	p := newTestPost(uuid.NewString())
	c1 := newTestComment(p.ID)
	c2 := newTestComment(p.ID)

	require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
		if err := st.UpsertPost(ctx, tx, p); err != nil {
			return err
		}

		if err := st.UpsertComment(ctx, tx, c1); err != nil {
			return err
		}

		return st.UpsertComment(ctx, tx, c2)
	}))

	require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
		return st.MarkCommentsSynced(ctx, tx, []string{c1.ID, c2.ID})
	}))

	unsynced, err := st.ListUnsyncedComments(ctx)
	require.NoError(t, err)
	assert.Empty(t, unsynced)
}

func TestDeleteOrphanComments_RemovesCommentsWithoutParentPost(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	p := newTestPost(uuid.NewString())
	c := newTestComment(p.ID)

	require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
		if err := st.UpsertPost(ctx, tx, p); err != nil {
			return err
		}

		if err := st.UpsertComment(ctx, tx, c); err != nil {
			return err
		}

		return st.DeletePost(ctx, tx, p.ID)
	}))

	var n int64

	require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		n, err = st.DeleteOrphanComments(ctx, tx)

		return err
	}))

	assert.Equal(t, int64(1), n)
}

func TestListTombstonedSyncedCommentsBefore_OnlyReturnsSyncedTombstonesBeforeCutoff(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	p := newTestPost(uuid.NewString())

	old := newTestComment(p.ID)
	old.IsSynced = true
	old.DeletedAt = model.Int64Ptr(1000)

	fresh := newTestComment(p.ID)
	fresh.IsSynced = true
	fresh.DeletedAt = model.Int64Ptr(model.NowNano())

	unsyncedTombstone := newTestComment(p.ID)
	unsyncedTombstone.DeletedAt = model.Int64Ptr(500)

	require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
		if err := st.UpsertPost(ctx, tx, p); err != nil {
			return err
		}

		for _, c := range []*model.Comment{old, fresh, unsyncedTombstone} {
			if err := st.UpsertComment(ctx, tx, c); err != nil {
				return err
			}
		}

		return nil
	}))

	var results []*model.Comment

	require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
		r, err := st.ListTombstonedSyncedCommentsBefore(ctx, tx, 2000)
		results = r

		return err
	}))

	require.Len(t, results, 1)
	assert.Equal(t, old.ID, results[0].ID)
}
