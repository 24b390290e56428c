// Package blob resolves upload blob references to readers. Supported refs
// are s3://bucket/key and, when a local root is configured, file://path.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"multinet/internal/config"
	"multinet/pkg/logger"
)

var (
	ErrUnsupportedScheme = errors.New("unsupported blob scheme")
	ErrNotFound          = errors.New("blob not found")
	ErrDisabled          = errors.New("blob backend not configured")
)

// Store reads and writes blobs by reference.
type Store interface {
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, r io.Reader, size int64) (ref string, err error)
}

// Router dispatches refs to the backend named by their scheme.
type Router struct {
	s3    *S3Store
	local *LocalStore
	log   *zap.Logger
}

func New(ctx context.Context, cfg config.StorageConfig) (*Router, error) {
	r := &Router{log: logger.Get().Named("blob")}

	if cfg.Enabled() {
		s3Store, err := NewS3Store(ctx, cfg)
		if err != nil {
			return nil, err
		}
		r.s3 = s3Store
	} else {
		r.log.Warn("S3 storage disabled - no configuration provided")
	}

	if cfg.LocalRoot != "" {
		local, err := NewLocalStore(cfg.LocalRoot)
		if err != nil {
			return nil, err
		}
		r.local = local
	}
	return r, nil
}

func (r *Router) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("parse blob ref %q: %w", ref, err)
	}
	switch u.Scheme {
	case "s3":
		if r.s3 == nil {
			return nil, fmt.Errorf("%w: s3", ErrDisabled)
		}
		return r.s3.Get(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	case "file":
		if r.local == nil {
			return nil, fmt.Errorf("%w: file", ErrDisabled)
		}
		return r.local.Open(u.Host + u.Path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

// Put stores r in S3 when configured, otherwise under the local root.
func (r *Router) Put(ctx context.Context, key string, body io.Reader, size int64) (string, error) {
	switch {
	case r.s3 != nil:
		return r.s3.Put(ctx, key, body, size)
	case r.local != nil:
		return r.local.Put(key, body)
	default:
		return "", ErrDisabled
	}
}
