// Package indexclient implements the HTTP client of the remote portal index.
package indexclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/portaldiscoverer/discoverer/bounds"
	"github.com/portaldiscoverer/discoverer/common/types"
	"github.com/portaldiscoverer/discoverer/log"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrUnexpectedBody = errors.New("unexpected response body")
)

type Config struct {
	MaxRequestRetries int           `mapstructure:"max-request-retries"`
	RequestRetryDelay time.Duration `mapstructure:"request-retry-delay"`
	RequestTimeout    time.Duration `mapstructure:"request-timeout"`
	// Reporter is sent with every submission to attribute discoveries.
	Reporter string `mapstructure:"reporter"`
}

func DefaultConfig() Config {
	return Config{
		MaxRequestRetries: 3,
		RequestRetryDelay: time.Second,
		RequestTimeout:    30 * time.Second,
	}
}

func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if resp != nil && resp.StatusCode == http.StatusNotModified {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// retryableHttpLogger is a wrapper around zap.Logger that implements the
// retryablehttp.LeveledLogger interface.
type retryableHttpLogger struct {
	inner *zap.Logger
}

func (r retryableHttpLogger) Error(format string, args ...any) {
	r.inner.Sugar().Errorw(format, args...)
}

func (r retryableHttpLogger) Info(format string, args ...any) {
	r.inner.Sugar().Infow(format, args...)
}

func (r retryableHttpLogger) Warn(format string, args ...any) {
	r.inner.Sugar().Warnw(format, args...)
}

func (r retryableHttpLogger) Debug(format string, args ...any) {
	r.inner.Sugar().Debugw(format, args...)
}

type Opt func(*Client)

func WithLogger(logger *zap.Logger) Opt {
	return func(c *Client) {
		c.logger = logger
		c.client.Logger = &retryableHttpLogger{inner: logger}
		c.client.ResponseLogHook = func(_ retryablehttp.Logger, resp *http.Response) {
			c.logger.Debug(
				"response received",
				zap.Stringer("url", resp.Request.URL),
				zap.Int("status", resp.StatusCode),
			)
		}
	}
}

func WithHTTPClient(client *http.Client) Opt {
	return func(c *Client) {
		c.client.HTTPClient = client
	}
}

// Client talks to the index service rooted at a base URL.
// It implements portalsync.RemoteIndexClient and portalsync.RegionSource.
type Client struct {
	baseURL  *url.URL
	client   *retryablehttp.Client
	logger   *zap.Logger
	reporter string

	mu     sync.Mutex
	etag   string
	region bounds.Region
	known  bool
}

// NormalizeEndpoint defaults the scheme to http and makes sure the path ends
// with a slash, so that endpoint paths are resolved below it.
func NormalizeEndpoint(endpoint string) (*url.URL, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("empty endpoint")
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing endpoint: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("endpoint %q has no host", endpoint)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u, nil
}

func New(endpoint string, cfg Config, opts ...Opt) (*Client, error) {
	baseURL, err := NormalizeEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL: baseURL,
		client: &retryablehttp.Client{
			HTTPClient:   &http.Client{Timeout: cfg.RequestTimeout},
			RetryMax:     cfg.MaxRequestRetries,
			RetryWaitMin: cfg.RequestRetryDelay,
			RetryWaitMax: 2 * cfg.RequestRetryDelay,
			Backoff:      retryablehttp.LinearJitterBackoff,
			CheckRetry:   checkRetry,
			ErrorHandler: retryablehttp.PassthroughErrorHandler,
		},
		logger:   zap.NewNop(),
		reporter: cfg.Reporter,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint returns the normalized base URL.
func (c *Client) Endpoint() string {
	return c.baseURL.String()
}

// Fetch downloads the published index. The full index is returned every
// time; after the first fetch an unchanged index yields an empty delta.
func (c *Client) Fetch(ctx context.Context) (types.Delta, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.url(IndexPath), nil)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}
	c.mu.Lock()
	if c.etag != "" {
		req.Header.Set("If-None-Match", c.etag)
	}
	c.mu.Unlock()

	res, data, err := c.do(ctx, req, IndexPath)
	if err != nil {
		return nil, err
	}
	if res.StatusCode == http.StatusNotModified {
		return types.Delta{}, nil
	}
	env, err := DecodeIndex(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnexpectedBody, err)
	}
	c.mu.Lock()
	c.etag = res.Header.Get("ETag")
	if region, ok := env.SearchRegion(); ok {
		c.region, c.known = region, true
	}
	c.mu.Unlock()
	return env.Index, nil
}

// Submit posts a batch of records.
func (c *Client) Submit(ctx context.Context, records []types.CanonicalRecord) error {
	portals := make([]Portal, 0, len(records))
	for _, r := range records {
		portals = append(portals, FromRecord(r))
	}
	body, err := json.Marshal(portals)
	if err != nil {
		return fmt.Errorf("marshaling request body: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.url(SubmitPath), body)
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(BatchHeader, uuid.NewString())
	if c.reporter != "" {
		req.Header.Set(ReporterHeader, c.reporter)
	}
	_, data, err := c.do(ctx, req, SubmitPath)
	if err != nil {
		return err
	}
	if reply := strings.Trim(string(bytes.TrimSpace(data)), `"`); reply != "ok" {
		return fmt.Errorf("%w: %q", ErrUnexpectedBody, reply)
	}
	return nil
}

// SearchRegion returns the region published with the last fetched index.
func (c *Client) SearchRegion() (bounds.Region, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.region, c.known
}

func (c *Client) url(path string) string {
	return c.baseURL.ResolveReference(&url.URL{Path: path}).String()
}

func (c *Client) do(ctx context.Context, req *retryablehttp.Request, path string) (*http.Response, []byte, error) {
	if id, ok := log.ExtractRequestID(ctx); ok {
		req.Header.Set(RequestHeader, id)
	}
	start := time.Now()
	res, err := c.client.Do(req)
	if err != nil {
		requestDuration.WithLabelValues(path, "error").Observe(time.Since(start).Seconds())
		return nil, nil, fmt.Errorf("doing request: %w", err)
	}
	defer res.Body.Close()
	requestDuration.WithLabelValues(path, strconv.Itoa(res.StatusCode)).Observe(time.Since(start).Seconds())

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading response body (%w)", err)
	}

	switch res.StatusCode {
	case http.StatusOK, http.StatusNotModified:
		return res, data, nil
	}
	c.logger.Debug("index request failed",
		log.ZContext(ctx),
		zap.String("path", path),
		zap.String("status", res.Status),
		zap.String("body", string(data)),
	)
	switch res.StatusCode {
	case http.StatusBadRequest:
		return nil, nil, fmt.Errorf("%w: response status code: %s, body: %s", ErrInvalidRequest, res.Status, string(data))
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, nil, fmt.Errorf("%w: response status code: %s, body: %s", ErrUnauthorized, res.Status, string(data))
	default:
		return nil, nil, fmt.Errorf("unrecognized error: status code: %s, body: %s", res.Status, string(data))
	}
}
