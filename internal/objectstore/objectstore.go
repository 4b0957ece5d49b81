// Package objectstore implements the Media Uploader (spec §4.C): streaming a
// local file to the object bucket under a deterministic name and returning
// its public URL. Both image and video flavors share one S3-backed
// implementation, parameterized by bucket/content-type/extension.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Bucket names, per spec §4.C/§6.3.
const (
	BucketMedia = "media"
	BucketReels = "reels"
)

const (
	extImage = "jpg"
	extVideo = "mp4"

	contentTypeImage = "image/jpeg"
	contentTypeVideo = "video/mp4"
)

// Kind selects the upload flavor.
type Kind int

// Upload kinds.
const (
	KindImage Kind = iota
	KindVideo
)

func (k Kind) bucket() string {
	if k == KindVideo {
		return BucketReels
	}

	return BucketMedia
}

func (k Kind) extension() string {
	if k == KindVideo {
		return extVideo
	}

	return extImage
}

func (k Kind) contentType() string {
	if k == KindVideo {
		return contentTypeVideo
	}

	return contentTypeImage
}

// PublicURLFunc formats a public URL from a bucket and key. Deployments vary
// in how they expose public URLs for an S3-compatible bucket (virtual-hosted,
// path-style, CDN-fronted), so feedsync takes this as a config-resolved
// function rather than hardcoding a URL shape.
type PublicURLFunc func(bucket, key string) string

// Uploader streams local files to an S3-compatible object bucket.
type Uploader struct {
	client    *s3.Client
	publicURL PublicURLFunc
	logger    *slog.Logger
}

// New creates an Uploader backed by an existing s3.Client (constructed by the
// caller via aws-sdk-go-v2/config, so credentials/region/endpoint resolution
// stays in one place — internal/config).
func New(client *s3.Client, publicURL PublicURLFunc, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}

	return &Uploader{client: client, publicURL: publicURL, logger: logger}
}

// Upload streams the file at localPath to the bucket for kind, under key
// "<id>.<ext>", and returns its public URL. All uploads use PutObject, which
// is inherently upsert — a retried upload simply overwrites the prior bytes
// (spec §4.C "upsert = true"). Returns ("", false) on any failure; callers
// must not advance is_synced nor write remote_url on a false result.
func (u *Uploader) Upload(ctx context.Context, localPath, id string, kind Kind) (string, bool) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		u.logger.Warn("objectstore: local file missing, skipping upload",
			slog.String("path", localPath), slog.String("error", err.Error()))

		return "", false
	}

	key := fmt.Sprintf("%s.%s", id, kind.extension())
	bucket := kind.bucket()

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(kind.contentType()),
	})
	if err != nil {
		u.logger.Warn("objectstore: upload failed",
			slog.String("bucket", bucket), slog.String("key", key), slog.String("error", err.Error()))

		return "", false
	}

	url := u.publicURL(bucket, key)

	u.logger.Debug("objectstore: upload succeeded",
		slog.String("bucket", bucket), slog.String("key", key), slog.String("url", url))

	return url, true
}
