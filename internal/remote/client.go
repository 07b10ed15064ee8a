package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/distantorigin/butter-launcher/internal/version"
)

// DefaultTimeout bounds every request made by a client built without one
const DefaultTimeout = 30 * time.Second

// Fetcher is the network capability the resolver and installers depend on
type Fetcher interface {
	FetchJSON(ctx context.Context, url string, v interface{}) error
	Head(ctx context.Context, url string) (int, error)
}

// StatusError is returned when the server answers with an unexpected status
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
}

// IsStatus reports whether err is a StatusError with the given code
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Client handles catalog and existence requests against the patch servers
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// NewClient creates a new remote client
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: DefaultTimeout,
		}
	}
	return &Client{
		httpClient: httpClient,
		userAgent:  version.UserAgent(),
	}
}

// SetHTTPClient sets the HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// HTTPClient returns the underlying HTTP client
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

func (c *Client) newRequest(ctx context.Context, method, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

// FetchJSON GETs url and decodes the JSON body into v
func (c *Client) FetchJSON(ctx context.Context, url string, v interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, url)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", url, err)
	}

	return nil
}

// Head returns the status code of a HEAD request. Servers that refuse HEAD
// are asked again with a GET whose body is discarded.
func (c *Client) Head(ctx context.Context, url string) (int, error) {
	code, err := c.status(ctx, http.MethodHead, url)
	if err != nil {
		return 0, err
	}
	if code == http.StatusMethodNotAllowed {
		return c.status(ctx, http.MethodGet, url)
	}
	return code, nil
}

func (c *Client) status(ctx context.Context, method, url string) (int, error) {
	req, err := c.newRequest(ctx, method, url)
	if err != nil {
		return 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to probe %s: %w", url, err)
	}
	defer resp.Body.Close()

	if method == http.MethodGet {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	}

	return resp.StatusCode, nil
}
