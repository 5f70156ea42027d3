package brief

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
)

// ArtifactStore keeps rendered PDF artifacts in object storage so repeat
// downloads of a pinned proposal version skip the headless browser.
type ArtifactStore struct {
	client *minio.Client
	bucket string
}

func NewArtifactStore(client *minio.Client, bucket string) *ArtifactStore {
	return &ArtifactStore{client: client, bucket: bucket}
}

// EnsureBucket creates the artifact bucket if it does not exist yet.
func (a *ArtifactStore) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

func objectName(projectID string, version int) string {
	return fmt.Sprintf("briefs/%s/v%d.pdf", projectID, version)
}

// Put stores a rendered PDF under briefs/<projectID>/v<version>.pdf.
func (a *ArtifactStore) Put(ctx context.Context, projectID string, version int, data []byte) error {
	name := objectName(projectID, version)
	_, err := a.client.PutObject(ctx, a.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/pdf",
	})
	if err != nil {
		return fmt.Errorf("put artifact %s: %w", name, err)
	}
	return nil
}

// Get fetches a previously stored PDF; the bool reports whether it existed.
func (a *ArtifactStore) Get(ctx context.Context, projectID string, version int) ([]byte, bool, error) {
	name := objectName(projectID, version)
	obj, err := a.client.GetObject(ctx, a.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, false, fmt.Errorf("get artifact %s: %w", name, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		// Missing objects surface on read, not on GetObject.
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read artifact %s: %w", name, err)
	}
	return data, true, nil
}
