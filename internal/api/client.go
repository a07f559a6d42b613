package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrHttpRequest wraps failures to build or send a request. It never wraps a
// status code; status interpretation belongs to the callers.
var ErrHttpRequest = errors.New("HTTP request creation/execution error")

// OsuBaseUrl is the root of every endpoint the downloader talks to.
const OsuBaseUrl = "https://osu.ppy.sh"

const defaultUserAgent = "go-osu-download"

// Client is the shared transport. One instance is built at start-up and handed
// to the session and the downloader; it is safe for concurrent use.
type Client struct {
	HttpClient *http.Client
	BaseUrl    string
	UserAgent  string
}

// NewClient creates a client around httpClient. A nil httpClient gets the
// download-friendly defaults from NewHttpClient.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = NewHttpClient(nil, 60*time.Second)
	}
	return &Client{
		HttpClient: httpClient,
		BaseUrl:    OsuBaseUrl,
		UserAgent:  defaultUserAgent,
	}
}

// NewHttpClient builds an http.Client suited for large archive downloads:
// connection and header timeouts live on the transport and the client itself has
// no overall deadline. A non-nil wrap is given the base transport so a
// LoggingTransport can sit on top of it.
func NewHttpClient(wrap func(http.RoundTripper) http.RoundTripper, headerTimeout time.Duration) *http.Client {
	if headerTimeout <= 0 {
		headerTimeout = 60 * time.Second
	}
	var transport http.RoundTripper = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: headerTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConnsPerHost:   8,
	}
	if wrap != nil {
		transport = wrap(transport)
	}
	return &http.Client{
		Timeout:   0,
		Transport: transport,
	}
}

// Url resolves an endpoint path against BaseUrl. Absolute URLs pass through.
func (c *Client) Url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(c.BaseUrl, "/") + "/" + strings.TrimLeft(path, "/")
}

// Get issues a GET with the given headers. The caller owns the response body.
func (c *Client) Get(ctx context.Context, path string, headers http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Url(path), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating GET request for %s: %w", ErrHttpRequest, path, err)
	}
	return c.do(req, headers)
}

// PostForm issues a url-form-encoded POST. The form body is never logged.
func (c *Client) PostForm(ctx context.Context, path string, headers http.Header, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Url(path), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: creating POST request for %s: %w", ErrHttpRequest, path, err)
	}
	if headers.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return c.do(req, headers)
}

func (c *Client) do(req *http.Request, headers http.Header) (*http.Response, error) {
	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if req.Header.Get("User-Agent") == "" && c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		log.WithError(err).Debugf("%s %s failed", req.Method, req.URL.Path)
		return nil, fmt.Errorf("%w: %s %s: %w", ErrHttpRequest, req.Method, req.URL.Path, err)
	}
	log.Debugf("%s %s -> %d", req.Method, req.URL.Path, resp.StatusCode)
	return resp, nil
}
