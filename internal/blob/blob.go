package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Store is the object-store surface the pipeline needs: time-limited read
// URLs for stored audio, and byte uploads for published samples. Swap the
// implementation in main — callers never change.
type Store interface {
	SignedURL(ctx context.Context, object string, ttl time.Duration) (string, error)
	Upload(ctx context.Context, object string, data []byte, contentType string) (string, error)
}

// Local keeps objects under a directory and serves "signed" URLs off the
// configured base URL. Dev and test only; there is no real signing.
type Local struct {
	Dir     string
	BaseURL string
}

func NewLocal(dir, baseURL string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Local{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (l *Local) SignedURL(_ context.Context, object string, _ time.Duration) (string, error) {
	if _, err := os.Stat(filepath.Join(l.Dir, filepath.FromSlash(object))); err != nil {
		return "", fmt.Errorf("signed url: %w", err)
	}
	return l.BaseURL + "/objects/" + object, nil
}

func (l *Local) Upload(_ context.Context, object string, data []byte, _ string) (string, error) {
	path := filepath.Join(l.Dir, filepath.FromSlash(object))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write object: %w", err)
	}
	return l.BaseURL + "/objects/" + object, nil
}
