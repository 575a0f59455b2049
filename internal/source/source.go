// Package source fetches the compressed tabular payload the map is built
// from. A fetch either returns the whole payload or a *FetchError.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNotFound is wrapped by FetchErrors for missing objects.
var ErrNotFound = errors.New("object not found")

// FetchError is raised when the payload cannot be fetched: transport
// failure or a non-success status. Status is 0 when no response was received.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Source supplies the payload bytes.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	URL() string
}

// Options configures the sources built by New.
type Options struct {
	// CacheDir enables the on-disk cache when non-empty.
	CacheDir string
	// S3 settings for s3:// URLs.
	S3 S3Options
}

// New picks a Source by URL scheme: http(s)://, s3://bucket/key, file://
// or a bare local path.
func New(ctx context.Context, rawURL string, opts Options) (Source, error) {
	if rawURL == "" {
		return nil, errors.New("source url is required")
	}

	var src Source
	switch {
	case strings.HasPrefix(rawURL, "http://"), strings.HasPrefix(rawURL, "https://"):
		src = NewHTTPSource(rawURL, nil)
	case strings.HasPrefix(rawURL, "s3://"):
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("parse s3 url: %w", err)
		}
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return nil, fmt.Errorf("s3 url %q must be s3://bucket/key", rawURL)
		}
		s3src, err := NewS3Source(ctx, u.Host, key, opts.S3)
		if err != nil {
			return nil, err
		}
		src = s3src
	case strings.HasPrefix(rawURL, "file://"):
		src = NewFileSource(strings.TrimPrefix(rawURL, "file://"))
	case strings.Contains(rawURL, "://"):
		return nil, fmt.Errorf("unsupported source scheme in %q", rawURL)
	default:
		src = NewFileSource(rawURL)
	}

	if opts.CacheDir != "" {
		if _, local := src.(*FileSource); !local {
			return NewCached(src, opts.CacheDir)
		}
	}
	return src, nil
}
