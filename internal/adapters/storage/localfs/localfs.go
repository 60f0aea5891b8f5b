package localfs

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/h2non/filetype"

	"adrender/internal/ports"
)

// LocalFS implements ports.StorageProvider on a directory tree. Objects are
// served back over HTTP under baseURL by the API's /files route.
type LocalFS struct {
	root    string
	baseURL string
}

func New(root, baseURL string) *LocalFS {
	return &LocalFS{root: root, baseURL: strings.TrimRight(baseURL, "/")}
}

func (l *LocalFS) Provider() string { return "localfs" }

// Root is the directory objects are stored under.
func (l *LocalFS) Root() string { return l.root }

// pathFor maps a key to a file under root, rejecting keys that escape it.
func (l *LocalFS) pathFor(objectKey string) (string, error) {
	clean := path.Clean("/" + objectKey)
	if objectKey == "" || clean == "/" {
		return "", fmt.Errorf("object key is required")
	}
	if strings.Contains(objectKey, "..") {
		return "", fmt.Errorf("invalid object key %q", objectKey)
	}
	return filepath.Join(l.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

func (l *LocalFS) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	dst, err := l.pathFor(in.ObjectKey)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return ports.PutObjectOutput{}, err
	}

	// Write next to the destination and rename so readers never see a partial object.
	tmp := dst + ".part"
	outF, err := os.Create(tmp)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}

	n, err := io.Copy(outF, in.Reader)
	if cerr := outF.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return ports.PutObjectOutput{}, err
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return ports.PutObjectOutput{}, err
	}

	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: n}, nil
}

func (l *LocalFS) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	p, err := l.pathFor(objectKey)
	if err != nil {
		return nil, "", 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, "", 0, err
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, "", 0, err
	}
	if st.IsDir() {
		f.Close()
		return nil, "", 0, fmt.Errorf("localfs: %s is a directory", objectKey)
	}
	size = st.Size()

	// Prefer extension-based type. If empty, sniff the header.
	contentType = mime.TypeByExtension(filepath.Ext(p))
	if contentType == "" {
		head := make([]byte, 262)
		n, _ := f.Read(head)
		_, _ = f.Seek(0, io.SeekStart)
		if kind, _ := filetype.Match(head[:n]); kind != filetype.Unknown {
			contentType = kind.MIME.Value
		} else {
			contentType = "application/octet-stream"
		}
	}

	return f, contentType, size, nil
}

func (l *LocalFS) DeleteObject(ctx context.Context, objectKey string) error {
	p, err := l.pathFor(objectKey)
	if err != nil {
		return err
	}
	return os.Remove(p)
}

// GetSignedURL always returns an empty URL; files are served unsigned.
func (l *LocalFS) GetSignedURL(ctx context.Context, objectKey string, expiresIn time.Duration) (ports.SignedURLOutput, error) {
	return ports.SignedURLOutput{URL: "", ExpiresAt: time.Now().UTC().Add(expiresIn)}, nil
}

func (l *LocalFS) PublicURL(objectKey string) string {
	return l.baseURL + "/" + strings.TrimLeft(objectKey, "/")
}

// ResolveURL accepts URLs under baseURL and file:// URLs inside root.
func (l *LocalFS) ResolveURL(rawURL string) (ports.ObjectRef, bool) {
	if l.baseURL != "" && strings.HasPrefix(rawURL, l.baseURL+"/") {
		key := strings.TrimPrefix(rawURL, l.baseURL+"/")
		if i := strings.IndexAny(key, "?#"); i >= 0 {
			key = key[:i]
		}
		if unescaped, err := url.PathUnescape(key); err == nil {
			key = unescaped
		}
		if key == "" {
			return ports.ObjectRef{}, false
		}
		return ports.ObjectRef{Key: key}, true
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "file" {
		return ports.ObjectRef{}, false
	}
	rel, err := filepath.Rel(l.root, filepath.FromSlash(u.Path))
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ports.ObjectRef{}, false
	}
	return ports.ObjectRef{Key: filepath.ToSlash(rel)}, true
}
