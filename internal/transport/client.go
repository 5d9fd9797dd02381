package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/appthwack/thwack/internal/observability"
	"github.com/rs/zerolog"
)

const (
	DefaultDomain  = "https://appthwack.com"
	DefaultAPIRoot = "/api"

	maxErrorBody   = 4096
	defaultTimeout = 30 * time.Second
)

// Client talks to the AppThwack REST API with HTTP basic auth, the API key
// being the user name. Redirects are followed by the underlying http.Client.
type Client struct {
	domain     string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	timeout    time.Duration
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds each round trip. It applies to a copy of the HTTP
// client, so a client passed to WithHTTPClient is never modified.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a client for the API rooted at domain+apiRoot. Empty domain
// and apiRoot take the public service defaults.
func New(apiKey, domain, apiRoot string, opts ...Option) *Client {
	if domain == "" {
		domain = DefaultDomain
	}
	if apiRoot == "" {
		apiRoot = DefaultAPIRoot
	}
	domain = strings.TrimRight(domain, "/")
	c := &Client{
		domain:  domain,
		baseURL: domain + "/" + strings.Trim(apiRoot, "/"),
		apiKey:  apiKey,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	hc := http.Client{Timeout: defaultTimeout}
	if c.httpClient != nil {
		hc = *c.httpClient
	}
	if c.timeout > 0 {
		hc.Timeout = c.timeout
	}
	c.httpClient = &hc
	return c
}

// Domain is the site address that web URLs are built from.
func (c *Client) Domain() string { return c.domain }

// BaseURL is the API root every request path is resolved against.
func (c *Client) BaseURL() string { return c.baseURL }

// Get fetches path and decodes the JSON body into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	apiURL := c.resolve(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return &Error{Method: http.MethodGet, URL: apiURL, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	return c.do(req, out)
}

// Post sends form as multipart/form-data and decodes the JSON body into out.
func (c *Client) Post(ctx context.Context, path string, form Form, out any) error {
	return c.PostFile(ctx, path, form, nil, out)
}

// PostFile is Post with an additional binary part.
func (c *Client) PostFile(ctx context.Context, path string, form Form, file *FilePart, out any) error {
	apiURL := c.resolve(path)
	var body bytes.Buffer
	contentType, err := writeMultipart(&body, form, file)
	if err != nil {
		return &Error{Method: http.MethodPost, URL: apiURL, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, &body)
	if err != nil {
		return &Error{Method: http.MethodPost, URL: apiURL, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", contentType)
	return c.do(req, out)
}

// Download streams the resource at ref into w. ref is either an absolute URL
// or a path on the site domain. Credentials are only sent to the site domain.
func (c *Client) Download(ctx context.Context, ref string, w io.Writer) error {
	target := ref
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		target = c.domain + "/" + strings.TrimPrefix(ref, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return &Error{Method: http.MethodGet, URL: target, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	resp, err := c.send(req, c.sameSite(req.URL))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(w, resp.Body); err != nil {
		return &Error{Method: req.Method, URL: target, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	return nil
}

func (c *Client) resolve(path string) string {
	return c.baseURL + "/" + strings.TrimPrefix(path, "/")
}

func (c *Client) sameSite(u *url.URL) bool {
	site, err := url.Parse(c.domain)
	if err != nil {
		return false
	}
	return strings.EqualFold(site.Host, u.Host)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.send(req, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Method: req.Method, URL: req.URL.String(), StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	return nil
}

// send performs the round trip and turns every non-2xx response into an
// *Error. On success the caller owns resp.Body.
func (c *Client) send(req *http.Request, authorize bool) (*http.Response, error) {
	if authorize && c.apiKey != "" {
		req.SetBasicAuth(c.apiKey, "")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.ObserveRequest(req.Method, 0, elapsed)
		c.logger.Debug().Str("method", req.Method).Str("url", req.URL.String()).Err(err).Msg("api request failed")
		return nil, &Error{Method: req.Method, URL: req.URL.String(), Err: fmt.Errorf("API request failed: %w", err)}
	}
	c.metrics.ObserveRequest(req.Method, resp.StatusCode, elapsed)
	c.logger.Debug().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("api request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, &Error{
			Method:     req.Method,
			URL:        req.URL.String(),
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	return resp, nil
}
