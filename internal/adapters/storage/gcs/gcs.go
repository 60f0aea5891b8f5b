package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"adrender/internal/ports"
)

const publicHost = "storage.googleapis.com"

// Client implements ports.StorageProvider on a single Cloud Storage bucket.
type Client struct {
	client *storage.Client
	bucket string
}

// New opens a storage client. credentialsFile may be empty to use
// application default credentials.
func New(ctx context.Context, bucket, credentialsFile string) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	c, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{client: c, bucket: bucket}, nil
}

func (c *Client) Provider() string { return "gcs" }

func (c *Client) Close() error { return c.client.Close() }

func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, fmt.Errorf("object key is required")
	}

	w := c.client.Bucket(c.bucket).Object(in.ObjectKey).NewWriter(ctx)
	if in.ContentType != "" {
		w.ContentType = in.ContentType
	}

	n, err := io.Copy(w, in.Reader)
	if err != nil {
		_ = w.Close()
		return ports.PutObjectOutput{}, err
	}
	// The object only exists once Close succeeds.
	if err := w.Close(); err != nil {
		return ports.PutObjectOutput{}, err
	}
	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: n}, nil
}

func (c *Client) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	r, err := c.client.Bucket(c.bucket).Object(objectKey).NewReader(ctx)
	if err != nil {
		return nil, "", 0, err
	}
	return r, r.Attrs.ContentType, r.Attrs.Size, nil
}

func (c *Client) DeleteObject(ctx context.Context, objectKey string) error {
	return c.client.Bucket(c.bucket).Object(objectKey).Delete(ctx)
}

func (c *Client) GetSignedURL(ctx context.Context, objectKey string, expiresIn time.Duration) (ports.SignedURLOutput, error) {
	expires := time.Now().UTC().Add(expiresIn)
	u, err := c.client.Bucket(c.bucket).SignedURL(objectKey, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: expires,
	})
	if err != nil {
		return ports.SignedURLOutput{}, err
	}
	return ports.SignedURLOutput{URL: u, ExpiresAt: expires}, nil
}

func (c *Client) PublicURL(objectKey string) string {
	return PublicURL(c.bucket, objectKey)
}

// ResolveURL only accepts URLs that point into this client's bucket.
func (c *Client) ResolveURL(rawURL string) (ports.ObjectRef, bool) {
	ref, ok := ParseURL(rawURL)
	if !ok || ref.Bucket != c.bucket {
		return ports.ObjectRef{}, false
	}
	return ref, true
}

func PublicURL(bucket, objectKey string) string {
	return "https://" + publicHost + "/" + bucket + "/" + strings.TrimLeft(objectKey, "/")
}

// ParseURL understands gs://bucket/key, path-style and virtual-host-style
// storage.googleapis.com URLs. Query strings, such as signatures, are ignored.
func ParseURL(rawURL string) (ports.ObjectRef, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ports.ObjectRef{}, false
	}

	var bucket, key string
	switch {
	case u.Scheme == "gs":
		bucket, key = u.Host, strings.TrimPrefix(u.Path, "/")
	case u.Scheme != "https" && u.Scheme != "http":
		return ports.ObjectRef{}, false
	case u.Host == publicHost:
		parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
		if len(parts) == 2 {
			bucket, key = parts[0], parts[1]
		}
	case strings.HasSuffix(u.Host, "."+publicHost):
		bucket, key = strings.TrimSuffix(u.Host, "."+publicHost), strings.TrimPrefix(u.Path, "/")
	}

	if bucket == "" || key == "" {
		return ports.ObjectRef{}, false
	}
	return ports.ObjectRef{Bucket: bucket, Key: key}, true
}
