package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// HTTPSource GETs the payload over HTTP(S).
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource uses http.DefaultClient when client is nil.
func NewHTTPSource(url string, client *http.Client) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{url: url, client: client}
}

func (s *HTTPSource) URL() string { return s.url }

func (s *HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, &FetchError{URL: s.url, Err: err}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: s.url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("unexpected status %s", resp.Status)
		if resp.StatusCode == http.StatusNotFound {
			err = fmt.Errorf("%w: %s", ErrNotFound, resp.Status)
		}
		return nil, &FetchError{URL: s.url, Status: resp.StatusCode, Err: err}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: s.url, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.ContentLength >= 0 && int64(len(body)) != resp.ContentLength {
		return nil, &FetchError{URL: s.url, Status: resp.StatusCode,
			Err: fmt.Errorf("short body: got %d of %d bytes", len(body), resp.ContentLength)}
	}
	return body, nil
}
