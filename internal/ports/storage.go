package ports

import (
	"context"
	"io"
	"time"
)

type PutObjectInput struct {
	ObjectKey   string
	ContentType string
	Reader      io.Reader
	Size        int64
}

type PutObjectOutput struct {
	// ObjectKey is the key to read the object back with. Drive returns its
	// file id here; bucket-style providers echo the input key.
	ObjectKey string
	Size      int64
}

type SignedURLOutput struct {
	URL       string
	ExpiresAt time.Time
}

// ObjectRef locates an object inside a provider.
type ObjectRef struct {
	Bucket string
	Key    string
}

// StorageProvider is implemented by localfs, gcs and gdrive.
type StorageProvider interface {
	Provider() string

	PutObject(ctx context.Context, in PutObjectInput) (PutObjectOutput, error)
	GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error)
	DeleteObject(ctx context.Context, objectKey string) error

	// GetSignedURL returns an empty URL when the provider cannot sign.
	GetSignedURL(ctx context.Context, objectKey string, expiresIn time.Duration) (SignedURLOutput, error)

	// PublicURL is the stable URL persisted for an object.
	PublicURL(objectKey string) string

	// ResolveURL maps a URL previously produced by PublicURL (or a
	// provider-native URL) back to the object. ok is false for foreign URLs.
	ResolveURL(rawURL string) (ref ObjectRef, ok bool)
}
