package netx

import (
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// Body returns a reader that undoes the response's Content-Encoding.
// Closing it closes the underlying response body.
func Body(resp *http.Response) (io.ReadCloser, error) {
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		return &stackedReader{Reader: gz, closers: []io.Closer{gz, resp.Body}}, nil
	case "br":
		return &stackedReader{Reader: brotli.NewReader(resp.Body), closers: []io.Closer{resp.Body}}, nil
	case "deflate":
		fl := flate.NewReader(resp.Body)
		return &stackedReader{Reader: fl, closers: []io.Closer{fl, resp.Body}}, nil
	default:
		return resp.Body, nil
	}
}

// ReadAll reads a decoded response body, failing once it grows past limit bytes.
func ReadAll(resp *http.Response, limit int64) ([]byte, error) {
	body, err := Body(resp)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	if limit <= 0 {
		limit = 8 * 1024 * 1024
	}
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("response body exceeds limit of %d bytes", limit)
	}
	return data, nil
}

type stackedReader struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedReader) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
