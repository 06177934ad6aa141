package scraper

import (
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// acceptEncoding mirrors what a desktop Chrome sends; responses are decoded by decodeBody.
const acceptEncoding = "gzip, deflate, br, zstd"

// decodeBody wraps body according to Content-Encoding. Closing the result closes body.
func decodeBody(body io.ReadCloser, contentEncoding string) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "", "identity":
		return body, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return stackedCloser{Reader: zr, closers: []io.Closer{zr, body}}, nil
	case "deflate":
		fr := flate.NewReader(body)
		return stackedCloser{Reader: fr, closers: []io.Closer{fr, body}}, nil
	case "br":
		return stackedCloser{Reader: brotli.NewReader(body), closers: []io.Closer{body}}, nil
	case "zstd":
		dec, err := zstd.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return stackedCloser{Reader: dec, closers: []io.Closer{dec.IOReadCloser(), body}}, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", contentEncoding)
	}
}

type stackedCloser struct {
	io.Reader
	closers []io.Closer
}

func (s stackedCloser) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
