package locator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/iconidentify/igrabba/internal/domain"
	"github.com/iconidentify/igrabba/pkg/instagram"
)

// Strategy names, also recorded in outcome history.
const (
	StrategyEmbedded = "embedded"
	StrategyPattern  = "pattern"
	StrategyAPI      = "api"
	StrategyYtDLP    = "ytdlp"
)

func postOnly(kind domain.ContentKind) bool {
	return kind == domain.ContentKindPost
}

// EmbeddedStrategy reads the structured data block embedded in the post page.
type EmbeddedStrategy struct{}

func (EmbeddedStrategy) Name() string                         { return StrategyEmbedded }
func (EmbeddedStrategy) Applies(kind domain.ContentKind) bool { return postOnly(kind) }

func (EmbeddedStrategy) Locate(ctx context.Context, l *Lookup) ([]domain.AssetReference, error) {
	body, err := l.Page(ctx)
	if err != nil {
		return nil, softFailure("fetch page", err)
	}
	urls, err := instagram.ExtractEmbeddedMedia(body)
	if err != nil {
		return nil, softFailure("embedded data", err)
	}
	return remoteRefs(urls), nil
}

// PatternStrategy scans the raw page body for CDN image URLs.
type PatternStrategy struct{}

func (PatternStrategy) Name() string                         { return StrategyPattern }
func (PatternStrategy) Applies(kind domain.ContentKind) bool { return postOnly(kind) }

func (PatternStrategy) Locate(ctx context.Context, l *Lookup) ([]domain.AssetReference, error) {
	body, err := l.Page(ctx)
	if err != nil {
		return nil, softFailure("fetch page", err)
	}
	return remoteRefs(instagram.ScrapeMediaURLs(body)), nil
}

// APIFetcher queries the post JSON endpoint.
type APIFetcher interface {
	FetchPostAPI(ctx context.Context, shortcode string) ([]byte, error)
}

// APIStrategy probes the public post API. Any failure counts as empty.
type APIStrategy struct {
	API APIFetcher
}

func (APIStrategy) Name() string                         { return StrategyAPI }
func (APIStrategy) Applies(kind domain.ContentKind) bool { return postOnly(kind) }

func (s APIStrategy) Locate(ctx context.Context, l *Lookup) ([]domain.AssetReference, error) {
	data, err := s.API.FetchPostAPI(ctx, l.Request.ContentID)
	if err != nil {
		return nil, softFailure("post api", err)
	}
	urls, err := instagram.ParseAPIResponse(data)
	if err != nil {
		return nil, softFailure("post api", err)
	}
	return remoteRefs(urls), nil
}

// Tool downloads media for a URL with an output name template.
type Tool interface {
	Download(ctx context.Context, rawURL, outputTemplate string) error
}

// YtDLPStrategy hands the URL to the media tool and picks up the files it wrote.
// It applies to every kind and is the only path for reels and stories.
type YtDLPStrategy struct {
	Tool    Tool
	TempDir string
}

func (YtDLPStrategy) Name() string                    { return StrategyYtDLP }
func (YtDLPStrategy) Applies(domain.ContentKind) bool { return true }

func (s YtDLPStrategy) Locate(ctx context.Context, l *Lookup) ([]domain.AssetReference, error) {
	prefix := fmt.Sprintf("ytdlp_%s_%s", safeName(l.Request.ContentID), uuid.NewString()[:8])
	template := filepath.Join(s.TempDir, prefix+".%(ext)s")

	runErr := s.Tool.Download(ctx, l.Request.NormalizedURL, template)

	files, err := collectOutputs(s.TempDir, prefix)
	if err != nil {
		return nil, fmt.Errorf("scan tool output: %w", err)
	}
	if len(files) == 0 {
		return nil, runErr
	}

	refs := make([]domain.AssetReference, len(files))
	for i, f := range files {
		refs[i] = domain.AssetReference{Locator: f, Kind: domain.LocatorLocal, Ordinal: i}
	}
	return refs, nil
}

// collectOutputs returns the finished, non-empty files named prefix.*, sorted.
// Leftover partial downloads are removed.
func collectOutputs(dir, prefix string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, prefix+".*"))
	if err != nil {
		return nil, err
	}

	var files []string
	for _, m := range matches {
		if strings.HasSuffix(m, ".part") || strings.HasSuffix(m, ".ytdl") {
			os.Remove(m)
			continue
		}
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		if info.Size() == 0 {
			os.Remove(m)
			continue
		}
		files = append(files, m)
	}
	sort.Strings(files)
	return files, nil
}

// safeName keeps identifiers usable inside file names and glob patterns.
func safeName(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
}
