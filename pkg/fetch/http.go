package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp/go-cleanhttp"
)

// HTTP downloads over plain HTTP(S)
type HTTP struct {
	client *http.Client
}

// NewHTTP creates an HTTP fetcher. A nil client uses a pooled cleanhttp client.
func NewHTTP(client *http.Client) *HTTP {
	if client == nil {
		client = cleanhttp.DefaultPooledClient()
	}
	return &HTTP{client: client}
}

func (h *HTTP) Fetch(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("failed to download %s: unexpected status %s", rawURL, resp.Status)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to read %s: %w", rawURL, err)
	}
	return n, nil
}
