package hibp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the upstream breach-data API root.
	DefaultBaseURL = "https://haveibeenpwned.com/api/v3"
	// userAgent identifies this proxy to the upstream API.
	userAgent = "pwned_proxy_app/1.0"
	// requestTimeout bounds each upstream call so one slow request cannot
	// starve other tenants.
	requestTimeout = 15 * time.Second
)

// UpstreamResponse captures an upstream reply verbatim.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// TransportError wraps a network-level failure (DNS, connect, timeout),
// distinct from an upstream-returned error status.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("hibp: upstream unreachable: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client performs upstream GET calls, injecting the shared key and a
// constant user agent. It never retries and never rewrites status codes.
type Client struct {
	baseURL    string
	httpClient *http.Client
	keys       *KeyProvider
}

// NewClient constructs a Client. An empty baseURL selects the production
// upstream.
func NewClient(baseURL string, keys *KeyProvider) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		keys:       keys,
	}
}

// Fetch performs one synchronous GET against the upstream resource path.
// The path is appended to the base URL as-is; callers escape any user
// supplied segments.
func (c *Client) Fetch(ctx context.Context, resourcePath string, query url.Values) (*UpstreamResponse, error) {
	if c == nil {
		return nil, fmt.Errorf("hibp: client not initialized")
	}
	key, errKey := c.keys.Get(ctx)
	if errKey != nil {
		return nil, errKey
	}

	target := c.baseURL + "/" + strings.TrimLeft(resourcePath, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, errRequest := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if errRequest != nil {
		return nil, fmt.Errorf("hibp: build request: %w", errRequest)
	}
	req.Header.Set("hibp-api-key", key)
	req.Header.Set("User-Agent", userAgent)

	resp, errDo := c.httpClient.Do(req)
	if errDo != nil {
		return nil, &TransportError{Err: errDo}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, errRead := io.ReadAll(resp.Body)
	if errRead != nil {
		return nil, &TransportError{Err: errRead}
	}
	return &UpstreamResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}
