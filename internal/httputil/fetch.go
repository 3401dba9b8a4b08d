package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http/httpproxy"

	"github.com/breeze-rmm/osupgrade/internal/logging"
)

var log = logging.L("httputil")

// maxDrain caps how much of a response body is read before it is discarded.
const maxDrain = 64 * 1024

// StatusError indicates the server answered with a non-2xx status.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request to %s failed with status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Client performs single-attempt GET requests. It honours the
// http_proxy/https_proxy/no_proxy environment the way ftp(1) does.
type Client struct {
	http *http.Client
}

// NewClient returns a Client whose requests time out after timeout.
func NewClient(timeout time.Duration) *Client {
	proxy := httpproxy.FromEnvironment().ProxyFunc()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = func(req *http.Request) (*url.URL, error) {
		return proxy(req.URL)
	}

	return &Client{
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// Fetch issues a GET for rawURL and succeeds on any 2xx status. The body is
// drained and discarded; callers only learn whether the resource is there.
func (c *Client) Fetch(ctx context.Context, rawURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "breeze-osupgrade")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))

	log.Debug("fetched", "url", rawURL, "status", resp.StatusCode, logging.KeyDurationMs, time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, URL: rawURL}
	}
	return nil
}
