// Package blob holds short-lived binary objects addressed by an opaque
// reference. Export uses it to stage a merged document between producing it
// and handing it to the user.
package blob

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned for unknown or already released references.
var ErrNotFound = errors.New("blob not found")

// Handle is a transient reference to a stored object.
type Handle struct {
	Ref         string
	ContentType string
	Size        int
}

// Store stages objects until they are released.
type Store interface {
	Put(ctx context.Context, data []byte, contentType string) (Handle, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Release(ctx context.Context, ref string) error
	Ping(ctx context.Context) error
	Backend() string
}

// Options selects and configures a backend.
type Options struct {
	Backend     string // "memory"|"redis"|"s3"
	TTL         time.Duration
	RedisURL    string
	S3Bucket    string
	S3Prefix    string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
}

// New builds the Store named by opts.Backend. An empty backend means memory.
func New(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(opts.RedisURL, opts.TTL)
	case "s3":
		return NewS3Store(ctx, S3Options{
			Bucket:    opts.S3Bucket,
			Prefix:    opts.S3Prefix,
			Region:    opts.S3Region,
			AccessKey: opts.S3AccessKey,
			SecretKey: opts.S3SecretKey,
		})
	default:
		return nil, fmt.Errorf("unknown blob backend %q", opts.Backend)
	}
}
