package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// HTTPFetcher is the default Fetcher, backed by net/http. No repo in
// the retrieval pack carries a third-party HTTP client dependency, so
// this is the one ambient concern built directly on the standard
// library rather than an ecosystem package.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher returns an HTTPFetcher using http.DefaultClient.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{Client: http.DefaultClient}
}

// Fetch performs a GET request against url and returns the complete
// response body, or an error if the request fails or returns a
// non-2xx status.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("registry: fetch %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
