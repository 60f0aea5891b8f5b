// Package assets downloads scene clips and brand logos into a render workspace.
package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/h2non/filetype"
	"golang.org/x/time/rate"

	"adrender/internal/pkg/errors"
	"adrender/internal/pkg/logger"
	"adrender/internal/storage"
)

// Kind is the class of media an asset must be.
type Kind int

const (
	KindAny Kind = iota
	KindVideo
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindImage:
		return "image"
	default:
		return "any"
	}
}

type Options struct {
	// RPS and Burst bound how fast downloads start across the process.
	RPS   float64
	Burst int
	// Timeout applies to each HTTP download.
	Timeout         time.Duration
	SignedURLExpiry time.Duration
}

// Fetcher resolves asset URLs against the configured storage provider first
// and falls back to plain HTTP for anything else.
type Fetcher struct {
	sp      storage.Provider
	client  *http.Client
	limiter *rate.Limiter
	expiry  time.Duration
	log     *logger.Logger
}

func New(sp storage.Provider, opts Options, log *logger.Logger) *Fetcher {
	if opts.RPS <= 0 {
		opts.RPS = 8
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.SignedURLExpiry <= 0 {
		opts.SignedURLExpiry = 15 * time.Minute
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Fetcher{
		sp:      sp,
		client:  &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(rate.Limit(opts.RPS), opts.Burst),
		expiry:  opts.SignedURLExpiry,
		log:     log.WithComponent("assets"),
	}
}

// Fetch downloads rawURL into dir as baseName plus an extension sniffed from
// the content, checks that it is of kind want and returns the file's path.
// Content whose type cannot be detected is accepted and left to the encoder.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, dir, baseName string, want Kind) (string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", errors.Storage("download", rawURL, err)
	}

	tmp := filepath.Join(dir, baseName+".part")
	if err := f.download(ctx, rawURL, tmp); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}

	ext, cerr := checkKind(tmp, want)
	if cerr != nil {
		_ = os.Remove(tmp)
		return "", cerr.WithField("url", rawURL)
	}
	if ext == "" {
		ext = urlExt(rawURL)
	}

	dst := filepath.Join(dir, baseName+ext)
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return "", errors.Storage("download", rawURL, err)
	}
	return dst, nil
}

func (f *Fetcher) download(ctx context.Context, rawURL, dst string) error {
	if f.sp != nil {
		if ref, ok := f.sp.ResolveURL(rawURL); ok {
			return f.fromStorage(ctx, ref.Key, dst)
		}
	}
	return f.fromHTTP(ctx, rawURL, dst)
}

func (f *Fetcher) fromStorage(ctx context.Context, key, dst string) error {
	signed, err := f.sp.GetSignedURL(ctx, key, f.expiry)
	if err == nil && signed.URL != "" {
		herr := f.fromHTTP(ctx, signed.URL, dst)
		if herr == nil {
			return nil
		}
		f.log.Debug("signed download failed, reading object directly", "key", key, "error", herr.Error())
	}

	rc, _, _, err := f.sp.GetObject(ctx, key)
	if err != nil {
		return errors.Storage("download", key, err)
	}
	defer rc.Close()
	return writeFile(dst, rc, key)
}

func (f *Fetcher) fromHTTP(ctx context.Context, rawURL, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errors.Storage("download", rawURL, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return errors.Storage("download", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Storage("download", rawURL, fmt.Errorf("unexpected status %d", resp.StatusCode)).
			WithField("status", resp.StatusCode)
	}
	return writeFile(dst, resp.Body, rawURL)
}

func writeFile(dst string, r io.Reader, key string) error {
	out, err := os.Create(dst)
	if err != nil {
		return errors.Storage("download", key, err)
	}
	n, err := io.Copy(out, r)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Storage("download", key, err)
	}
	if n == 0 {
		return errors.Storage("download", key, fmt.Errorf("empty object"))
	}
	return nil
}

// checkKind returns the sniffed extension (with dot), or "" when unknown.
func checkKind(path string, want Kind) (string, *errors.Error) {
	fh, err := os.Open(path)
	if err != nil {
		return "", errors.Storage("download", path, err)
	}
	defer fh.Close()

	head := make([]byte, 262)
	n, _ := io.ReadFull(fh, head)
	kind, _ := filetype.Match(head[:n])
	if kind == filetype.Unknown {
		return "", nil
	}

	ok := want == KindAny ||
		(want == KindVideo && filetype.IsVideo(head[:n])) ||
		(want == KindImage && filetype.IsImage(head[:n]))
	if !ok {
		return "", errors.Newf(errors.CodeValidation, "asset is %s, expected %s", kind.MIME.Value, want).
			WithField("detected", kind.MIME.Value)
	}
	return "." + kind.Extension, nil
}

func urlExt(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	ext := path.Ext(u.Path)
	if len(ext) > 6 {
		return ""
	}
	return ext
}
