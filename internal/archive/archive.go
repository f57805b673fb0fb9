// Package archive keeps the uploaded bulletin PDFs. The object key is what a
// user turn stores as its attachment reference.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// InlinePrefix marks attachment references for bulletins that were not archived.
const InlinePrefix = "inline:"

type Archiver interface {
	Put(ctx context.Context, agentID string, data []byte, contentType string) (string, error)
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func (c Config) Enabled() bool { return c.Endpoint != "" }

type MinIO struct {
	client *minio.Client
	bucket string
	now    func() time.Time
}

// NewMinIO connects and creates the bucket when it does not exist yet.
func NewMinIO(ctx context.Context, cfg Config) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &MinIO{client: client, bucket: cfg.Bucket, now: time.Now}, nil
}

func (m *MinIO) Put(ctx context.Context, agentID string, data []byte, contentType string) (string, error) {
	key := objectKey(agentID, m.now(), uuid.NewString())
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload bulletin %s: %w", key, err)
	}
	return key, nil
}

// objectKey lays bulletins out as <agent>/<yyyy>/<mm>/<id>.pdf.
func objectKey(agentID string, at time.Time, id string) string {
	agent := strings.Trim(strings.ReplaceAll(agentID, "/", "_"), ".")
	if agent == "" {
		agent = "unknown"
	}
	return path.Join(agent, at.UTC().Format("2006"), at.UTC().Format("01"), id+".pdf")
}

// Inline is used when no object store is configured. It keeps nothing and
// returns a unique marker reference.
type Inline struct{}

func (Inline) Put(_ context.Context, _ string, _ []byte, _ string) (string, error) {
	return InlinePrefix + uuid.NewString(), nil
}
