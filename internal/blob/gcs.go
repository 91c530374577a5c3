package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GCS stores objects in a Google Cloud Storage bucket and signs V4 read
// URLs for the transcription provider.
type GCS struct {
	bucket     *storage.BucketHandle
	bucketName string
}

func NewGCS(ctx context.Context, bucketName string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	return &GCS{bucket: client.Bucket(bucketName), bucketName: bucketName}, nil
}

func (g *GCS) SignedURL(_ context.Context, object string, ttl time.Duration) (string, error) {
	url, err := g.bucket.SignedURL(object, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("sign url for %s: %w", object, err)
	}
	return url, nil
}

// Upload writes the object only if it does not already exist. A precondition
// failure means a retry already wrote the same content, which counts as
// success in an idempotent publish flow.
func (g *GCS) Upload(ctx context.Context, object string, data []byte, contentType string) (string, error) {
	w := g.bucket.Object(object).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		if isPreconditionFailed(err) {
			return g.publicURL(object), nil
		}
		return "", fmt.Errorf("write object %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		if isPreconditionFailed(err) {
			return g.publicURL(object), nil
		}
		return "", fmt.Errorf("finalize object %s: %w", object, err)
	}
	return g.publicURL(object), nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

func (g *GCS) publicURL(object string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", g.bucketName, object)
}
