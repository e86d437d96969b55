package storage

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kindlyrobotics/htree/internal/merkle"
)

// BlobMirror optionally mirrors pushed payloads to an S3-compatible
// bucket, adapted from the teacher's storage.Service (minio-go client,
// ensureBucket, UploadFile). Local disk always remains the source of
// truth that Store reads back for verification; BlobMirror exists purely
// so operators can move bulk bytes off the server's disk.
type BlobMirror struct {
	client *minio.Client
	bucket string
}

// NewBlobMirror connects to an S3-compatible endpoint and ensures the
// target bucket exists. Returns (nil, nil) if endpoint is empty, meaning
// mirroring is disabled.
func NewBlobMirror(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*BlobMirror, error) {
	if endpoint == "" {
		return nil, nil
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: create blob mirror client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("storage: check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("storage: create bucket %s: %w", bucket, err)
		}
		log.Printf("[Storage] Created blob mirror bucket: %s", bucket)
	}

	return &BlobMirror{client: client, bucket: bucket}, nil
}

// NewBlobMirrorFromEnv reads S3_ENDPOINT / S3_ACCESS_KEY / S3_SECRET_KEY /
// S3_BUCKET / S3_USE_SSL the way the teacher's storage.NewService does,
// and returns a disabled (nil) mirror if S3_ENDPOINT is unset.
func NewBlobMirrorFromEnv(ctx context.Context) (*BlobMirror, error) {
	endpoint := os.Getenv("S3_ENDPOINT")
	if endpoint == "" {
		return nil, nil
	}
	accessKey := envOrDefault("S3_ACCESS_KEY", "minioadmin")
	secretKey := envOrDefault("S3_SECRET_KEY", "minioadmin")
	bucket := envOrDefault("S3_BUCKET", "htree-blobs")
	useSSL := os.Getenv("S3_USE_SSL") == "true"
	return NewBlobMirror(ctx, endpoint, accessKey, secretKey, bucket, useSSL)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Mirror uploads a payload's bytes under its hash. Failures are logged
// and swallowed: the local copy in Store remains authoritative, so a
// mirror outage never blocks a push.
func (b *BlobMirror) Mirror(ctx context.Context, hash merkle.H, data []byte) {
	if b == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err := b.client.PutObject(ctx, b.bucket, hash.String(), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	if err != nil {
		log.Printf("[Storage] WARN: blob mirror upload failed for %s: %v", hash, err)
	}
}
