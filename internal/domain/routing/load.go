package routing

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/callledger/pkg/logger"
)

// Fetcher reads a routing document from object storage.
type Fetcher interface {
	Fetch(ctx context.Context, bucket, path string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, bucket, path string) ([]byte, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, bucket, path string) ([]byte, error) {
	return f(ctx, bucket, path)
}

// LoadOptions controls override handling.
type LoadOptions struct {
	Registry Registry
	Defaults Defaults
	// Strict fails Load when an override is configured but unusable.
	Strict bool
	Logger logger.Logger
}

// ParseURI splits "bucket/path" or "gs://bucket/path".
func ParseURI(uri string) (bucket, path string, err error) {
	rest := strings.TrimPrefix(strings.TrimSpace(uri), "gs://")
	bucket, path, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || path == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURI, uri)
	}
	return bucket, path, nil
}

// Load returns the routing table for this process. With no uri the
// embedded default is used. A usable override replaces the default as a
// whole. A broken override, including one with no routed agents, is logged
// and either fails the load (Strict) or leaves the default in place.
func Load(ctx context.Context, fetcher Fetcher, uri string, opts LoadOptions) (*Table, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Get().Named("routing")
	}
	if opts.Registry == nil {
		opts.Registry = DefaultRegistry()
	}

	def, err := Default(opts.Registry, opts.Defaults)
	if err != nil {
		return nil, fmt.Errorf("embedded routing table: %w", err)
	}

	if strings.TrimSpace(uri) == "" {
		log.Info(ctx, "no routing override configured", logger.Int("agents", def.Len()))
		return def, nil
	}

	override, err := loadOverride(ctx, fetcher, uri, opts)
	if err != nil {
		log.Error(ctx, "routing override broken", logger.String("uri", uri), logger.Error(err))
		if opts.Strict {
			return nil, err
		}
		log.Warn(ctx, "keeping embedded routing table", logger.Int("agents", def.Len()))
		return def, nil
	}

	log.Info(ctx, "routing override loaded",
		logger.String("uri", uri),
		logger.Int("agents", override.Len()))
	return override, nil
}

func loadOverride(ctx context.Context, fetcher Fetcher, uri string, opts LoadOptions) (*Table, error) {
	bucket, path, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if fetcher == nil {
		return nil, fmt.Errorf("%w: no fetcher for %q", ErrDocument, uri)
	}
	doc, err := fetcher.Fetch(ctx, bucket, path)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", uri, err)
	}
	t, err := Parse(doc, opts.Registry, opts.Defaults)
	if err != nil {
		return nil, err
	}
	if t.Len() == 0 {
		return nil, ErrEmptyTable
	}
	t.source = uri
	return t, nil
}
