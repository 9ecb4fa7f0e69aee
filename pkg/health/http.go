package health

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// maxBodySize caps how much of a health response is read
const maxBodySize = 64 << 10

// HTTPChecker performs HTTP-based health checks
type HTTPChecker struct {
	// URL is the full HTTP URL to check
	URL string

	// ExpectedStatusMin is the minimum acceptable HTTP status code (default: 200)
	ExpectedStatusMin int

	// ExpectedStatusMax is the maximum acceptable HTTP status code (default: 299)
	ExpectedStatusMax int

	// Client is the HTTP client to use
	Client *http.Client
}

// NewHTTPChecker creates a new HTTP health checker
func NewHTTPChecker(url string) *HTTPChecker {
	client := cleanhttp.DefaultClient()
	client.Timeout = 5 * time.Second
	return &HTTPChecker{
		URL:               url,
		ExpectedStatusMin: 200,
		ExpectedStatusMax: 299,
		Client:            client,
	}
}

// roleHealth is one entry of the agent health body
type roleHealth struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Check performs the HTTP health check. When the body is the agent's
// per-role health document every reported role must be ok.
func (h *HTTPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("failed to create request: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("request failed: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}
	defer resp.Body.Close()

	healthy := resp.StatusCode >= h.ExpectedStatusMin && resp.StatusCode <= h.ExpectedStatusMax
	message := fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	if !healthy {
		message = fmt.Sprintf("%s (expected %d-%d)", message, h.ExpectedStatusMin, h.ExpectedStatusMax)
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if roles, ok := parseRoleHealth(body); ok {
		var parts []string
		for _, name := range sortedKeys(roles) {
			r := roles[name]
			if !r.OK {
				healthy = false
			}
			parts = append(parts, fmt.Sprintf("%s: %s", name, r.Message))
		}
		message = fmt.Sprintf("%s; %s", message, strings.Join(parts, "; "))
	}

	return Result{
		Healthy:   healthy,
		Message:   message,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

func parseRoleHealth(body []byte) (map[string]roleHealth, bool) {
	var roles map[string]roleHealth
	if len(body) == 0 || json.Unmarshal(body, &roles) != nil || len(roles) == 0 {
		return nil, false
	}
	return roles, true
}

func sortedKeys(m map[string]roleHealth) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Type returns the health check type
func (h *HTTPChecker) Type() CheckType {
	return CheckTypeHTTP
}
