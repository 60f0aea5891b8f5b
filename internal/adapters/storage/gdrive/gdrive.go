package gdrive

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"adrender/internal/ports"
)

// Client implements ports.StorageProvider backed by Google Drive.
// Uploads use the object key as the file name; the returned ObjectKey is the
// Drive file id, which is what Get/Delete/PublicURL expect.
type Client struct {
	srv      *drive.Service
	folderID string
}

func NewClient(srv *drive.Service, folderID string) *Client {
	return &Client{srv: srv, folderID: folderID}
}

func (c *Client) Provider() string { return "gdrive" }

func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, fmt.Errorf("object key is required")
	}

	file := &drive.File{Name: in.ObjectKey}
	if c.folderID != "" {
		file.Parents = []string{c.folderID}
	}

	call := c.srv.Files.Create(file).SupportsAllDrives(true)
	if in.ContentType != "" {
		call = call.Media(in.Reader, googleapi.ContentType(in.ContentType))
	} else {
		call = call.Media(in.Reader)
	}

	created, err := call.Context(ctx).Do()
	if err != nil {
		return ports.PutObjectOutput{}, fmt.Errorf("gdrive upload: %w", err)
	}
	return ports.PutObjectOutput{ObjectKey: created.Id, Size: in.Size}, nil
}

func (c *Client) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	resp, err := c.srv.Files.Get(objectKey).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		return nil, "", 0, err
	}
	return resp.Body, resp.Header.Get("Content-Type"), resp.ContentLength, nil
}

func (c *Client) DeleteObject(ctx context.Context, objectKey string) error {
	return c.srv.Files.Delete(objectKey).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
}

// GetSignedURL returns an empty URL; Drive has no signed links.
func (c *Client) GetSignedURL(ctx context.Context, objectKey string, expiresIn time.Duration) (ports.SignedURLOutput, error) {
	return ports.SignedURLOutput{URL: "", ExpiresAt: time.Now().UTC().Add(expiresIn)}, nil
}

func (c *Client) PublicURL(fileID string) string {
	return "https://drive.google.com/uc?id=" + url.QueryEscape(fileID) + "&export=download"
}

// ResolveURL extracts the file id from uc?id=, open?id= and /file/d/<id>/ links.
func (c *Client) ResolveURL(rawURL string) (ports.ObjectRef, bool) {
	id, ok := FileID(rawURL)
	if !ok {
		return ports.ObjectRef{}, false
	}
	return ports.ObjectRef{Key: id}, true
}

func FileID(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Host != "drive.google.com" && u.Host != "docs.google.com") {
		return "", false
	}
	if id := u.Query().Get("id"); id != "" {
		return id, true
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "file" && parts[i+1] == "d" && parts[i+2] != "" {
			return parts[i+2], true
		}
	}
	return "", false
}
