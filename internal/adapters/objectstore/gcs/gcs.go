// Package gcs implements objectstore.Store on Google Cloud Storage, using
// object generations as version tokens.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"github.com/okian/callledger/internal/adapters/objectstore"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Store wraps a storage client.
type Store struct {
	client *storage.Client
}

// New dials Cloud Storage with application default credentials unless
// opts say otherwise.
func New(ctx context.Context, opts ...option.ClientOption) (*Store, error) {
	c, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	return &Store{client: c}, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(c *storage.Client) *Store { return &Store{client: c} }

// Close releases the client.
func (s *Store) Close() error { return s.client.Close() }

// Read implements objectstore.Store. The generation comes from the same
// response as the bytes.
func (s *Store) Read(ctx context.Context, bucket, path string) ([]byte, int64, error) {
	r, err := s.client.Bucket(bucket).Object(path).NewReader(ctx)
	if err != nil {
		return nil, 0, classify(bucket, path, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, fmt.Errorf("read gs://%s/%s: %w", bucket, path, err)
	}
	return data, r.Attrs.Generation, nil
}

// WriteIf implements objectstore.Store.
func (s *Store) WriteIf(ctx context.Context, bucket, path string, data []byte, contentType string, generation int64) (int64, error) {
	cond := storage.Conditions{GenerationMatch: generation}
	if generation == 0 {
		cond = storage.Conditions{DoesNotExist: true}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.client.Bucket(bucket).Object(path).If(cond).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		cancel()
		_ = w.Close()
		return 0, classify(bucket, path, err)
	}
	if err := w.Close(); err != nil {
		return 0, classify(bucket, path, err)
	}
	return w.Attrs().Generation, nil
}

func classify(bucket, path string, err error) error {
	loc := fmt.Sprintf("gs://%s/%s", bucket, path)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%w: %s", objectstore.ErrNotExist, loc)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
		return fmt.Errorf("%w: %s: %w", objectstore.ErrPrecondition, loc, err)
	}
	if status.Code(err) == codes.FailedPrecondition {
		return fmt.Errorf("%w: %s: %w", objectstore.ErrPrecondition, loc, err)
	}
	return fmt.Errorf("%s: %w", loc, err)
}
