// Package downloader materializes located assets as files in the temp directory.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/iconidentify/igrabba/internal/domain"
	"github.com/iconidentify/igrabba/internal/netx"
)

// Options configures a Fetcher.
type Options struct {
	TempDir string
	// MaxBytes is the transport ceiling. Remote bodies are read up to one byte
	// past it, enough to know the file will be rejected.
	MaxBytes int64
	Timeout  time.Duration
}

// Fetcher downloads remote references and adopts local ones.
type Fetcher struct {
	http   *netx.Client
	opts   Options
	logger *slog.Logger
}

// NewFetcher creates a new fetcher.
func NewFetcher(hc *netx.Client, opts Options, logger *slog.Logger) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{http: hc, opts: opts, logger: logger}
}

// Fetch turns ref into a FetchedAsset. Errors are *domain.AssetError values
// wrapping domain.ErrFetchFailed.
func (f *Fetcher) Fetch(ctx context.Context, contentID string, ref domain.AssetReference) (*domain.FetchedAsset, error) {
	var (
		asset *domain.FetchedAsset
		err   error
	)
	if ref.IsLocal() {
		asset, err = f.adopt(ref)
	} else {
		asset, err = f.download(ctx, contentID, ref)
	}
	if err != nil {
		return nil, domain.NewAssetError(contentID, ref.Ordinal, "fetch", err)
	}
	return asset, nil
}

func (f *Fetcher) adopt(ref domain.AssetReference) (*domain.FetchedAsset, error) {
	info, err := os.Stat(ref.Locator)
	if err != nil {
		return nil, fmt.Errorf("%w: stat local file: %v", domain.ErrFetchFailed, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", domain.ErrFetchFailed, ref.Locator)
	}
	kind, _ := domain.KindFromExtension(filepath.Ext(ref.Locator))
	return domain.NewFetchedAsset(ref.Locator, info.Size(), kind, ref.Ordinal), nil
}

func (f *Fetcher) download(ctx context.Context, contentID string, ref domain.AssetReference) (*domain.FetchedAsset, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	resp, err := f.http.Get(ctx, ref.Locator, map[string]string{
		"Accept":          "image/avif,image/webp,image/*,video/*,*/*;q=0.8",
		"Accept-Encoding": "identity",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)
	}

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %w", domain.ErrFetchFailed, domain.ErrURLExpired)
	case resp.StatusCode == http.StatusTooManyRequests:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %w", domain.ErrFetchFailed, domain.ErrRateLimited)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: unexpected status code: %d", domain.ErrFetchFailed, resp.StatusCode)
	}

	body, err := netx.Body(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)
	}
	defer body.Close()

	kind, ext := classifyResponse(resp.Header.Get("Content-Type"), ref.Locator)
	name := fmt.Sprintf("ig_%s_%d_%s%s", safeName(contentID), ref.Ordinal, uuid.NewString()[:8], ext)
	dest := filepath.Join(f.opts.TempDir, name)

	written, err := f.writeCapped(dest, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)
	}

	size := written
	if resp.ContentLength > size {
		size = resp.ContentLength
	}
	if f.opts.MaxBytes > 0 && size > f.opts.MaxBytes {
		f.logger.Info("asset exceeds transport ceiling, download stopped early",
			"content_id", contentID,
			"ordinal", ref.Ordinal,
			"size", humanize.IBytes(uint64(size)),
		)
	}

	f.logger.Debug("asset fetched",
		"content_id", contentID,
		"ordinal", ref.Ordinal,
		"path", dest,
		"kind", string(kind),
		"bytes", written,
	)
	return domain.NewFetchedAsset(dest, size, kind, ref.Ordinal), nil
}

// writeCapped streams r into a new file at dest, reading at most one byte past
// the ceiling. The file is removed if anything fails.
func (f *Fetcher) writeCapped(dest string, r io.Reader) (int64, error) {
	file, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}

	if f.opts.MaxBytes > 0 {
		r = io.LimitReader(r, f.opts.MaxBytes+1)
	}
	written, copyErr := io.Copy(file, r)
	closeErr := file.Close()

	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(dest)
		return 0, fmt.Errorf("write file: %w", err)
	}
	return written, nil
}

var contentTypeExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/jpg":       ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"video/mp4":       ".mp4",
	"video/quicktime": ".mov",
	"video/webm":      ".webm",
	"audio/mpeg":      ".mp3",
	"audio/mp4":       ".m4a",
	"audio/aac":       ".aac",
	"audio/wav":       ".wav",
	"audio/x-wav":     ".wav",
}

// classifyResponse picks a kind and file extension from the declared content
// type. Unknown types fall back to the URL's extension, then to a JPEG image.
func classifyResponse(contentType, rawURL string) (domain.AssetKind, string) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	mediaType = strings.ToLower(mediaType)

	if ext, ok := contentTypeExtensions[mediaType]; ok {
		kind, _ := domain.KindFromExtension(ext)
		return kind, ext
	}

	switch {
	case strings.HasPrefix(mediaType, "video/"):
		return domain.AssetKindVideo, ".mp4"
	case strings.HasPrefix(mediaType, "audio/"):
		return domain.AssetKindAudio, ".mp3"
	case strings.HasPrefix(mediaType, "image/"):
		return domain.AssetKindImage, ".jpg"
	}

	if u, err := url.Parse(rawURL); err == nil {
		ext := strings.ToLower(path.Ext(u.Path))
		if kind, ok := domain.KindFromExtension(ext); ok {
			return kind, ext
		}
	}
	return domain.AssetKindImage, ".jpg"
}

func safeName(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
}
