package dom

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// Loader fetches page source for navigation
type Loader interface {
	Load(ctx context.Context, url string) (io.ReadCloser, error)
}

// Pages serves fixed HTML by URL
type Pages map[string]string

func (p Pages) Load(ctx context.Context, url string) (io.ReadCloser, error) {
	src, ok := p[url]
	if !ok {
		return nil, fmt.Errorf("no page for %s", url)
	}
	return io.NopCloser(strings.NewReader(src)), nil
}

// HTTPLoader fetches pages over HTTP and file:// URLs from disk
type HTTPLoader struct {
	Client *http.Client
}

func (l HTTPLoader) Load(ctx context.Context, url string) (io.ReadCloser, error) {
	if path, ok := strings.CutPrefix(url, "file://"); ok {
		return os.Open(path)
	}
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return resp.Body, nil
}
