// Package model defines the local sync entities: posts, likes, comments, and
// the singleton sync settings row. All timestamps are Unix nanoseconds; all
// identifiers are client-generated, hex-encoded 128-bit UUIDs (data-model §3.1).
package model

import "time"

// MediaType identifies the kind of attachment on a Post.
type MediaType string

// Post.MediaType values.
const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// Post is a single user post, optionally carrying one attached media file.
type Post struct {
	ID           string
	Text         string
	Timestamp    int64 // author time, Unix nanoseconds — never advances on edit
	MediaType    MediaType
	LocalURI     string // "" if no attached media
	RemoteURL    string // "" until the media upload succeeds
	ThumbnailURL string
	UserEmail    string
	IsSynced     bool
	DeletedAt    *int64 // nil unless tombstoned
	UpdatedAt    int64  // server-maintained; never written locally except on pull-merge

	// SyncedText and SyncedRemoteURL snapshot Text/RemoteURL as of the last
	// time IsSynced was set true. A pull merge diffs the incoming remote
	// record against this baseline, not against the live local fields, so it
	// can tell "remote changed this field" apart from "local changed this
	// field" per §4.E.3's field-level merge.
	SyncedText      string
	SyncedRemoteURL string
}

// Like records one user's reaction to a Post. At most one active (non-tombstoned)
// Like may exist per (PostID, UserEmail) pair — data-model §3.2 invariant 6.
type Like struct {
	ID        string
	PostID    string
	UserEmail string
	IsSynced  bool
	DeletedAt *int64
	UpdatedAt int64
}

// Comment is a piece of text attached to a Post.
type Comment struct {
	ID        string
	PostID    string
	UserEmail string
	Text      string
	Timestamp int64
	IsSynced  bool
	DeletedAt *int64
	UpdatedAt int64

	// SyncedText snapshots Text as of the last time IsSynced was set true;
	// see Post.SyncedText.
	SyncedText string
}

// SystemSettings is the process-wide singleton row holding sync bookkeeping.
type SystemSettings struct {
	ID           string
	LastSyncTime int64 // watermark; monotonically non-decreasing (invariant 5)
}

// NowNano returns the current time as Unix nanoseconds. All sync code compares
// timestamps at nanosecond precision; conversion to/from wire formats happens
// only at the remote-store and object-store boundaries.
func NowNano() int64 {
	return time.Now().UnixNano()
}

// Int64Ptr returns a pointer to v, for populating nullable tombstone columns.
func Int64Ptr(v int64) *int64 {
	return &v
}

// IsTombstoned reports whether a DeletedAt pointer marks a live tombstone.
func IsTombstoned(deletedAt *int64) bool {
	return deletedAt != nil
}
