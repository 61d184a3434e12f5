package scene

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultFetchTimeout is the default HTTP request timeout for asset fetches.
	DefaultFetchTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of attempts per asset.
	DefaultMaxRetries = 3

	// defaultBaseBackoff is the base delay for exponential backoff.
	defaultBaseBackoff = 500 * time.Millisecond

	// maxAssetBytes limits a single asset to 64 MB.
	maxAssetBytes = 64 << 20
)

// AssetFetcher resolves an asset URL to its bytes and content type.
type AssetFetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, string, error)
}

// FetchOption configures a Fetcher.
type FetchOption func(*fetchConfig)

type fetchConfig struct {
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
	client      *http.Client
	baseURL     string
	assetDir    string
	s3          ObjectGetter
}

func defaultFetchConfig() fetchConfig {
	return fetchConfig{
		timeout:     DefaultFetchTimeout,
		maxRetries:  DefaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) FetchOption {
	return func(c *fetchConfig) {
		c.timeout = d
	}
}

// WithMaxRetries sets the maximum number of attempts.
func WithMaxRetries(n int) FetchOption {
	return func(c *fetchConfig) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// WithBaseBackoff sets the base delay for exponential backoff between retries.
func WithBaseBackoff(d time.Duration) FetchOption {
	return func(c *fetchConfig) {
		c.baseBackoff = d
	}
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) FetchOption {
	return func(c *fetchConfig) {
		c.client = client
	}
}

// WithBaseURL resolves rooted paths such as /maps/x.png against base.
func WithBaseURL(base string) FetchOption {
	return func(c *fetchConfig) {
		c.baseURL = strings.TrimSuffix(base, "/")
	}
}

// WithAssetDir resolves rooted paths against a local directory. It takes
// precedence over WithBaseURL.
func WithAssetDir(dir string) FetchOption {
	return func(c *fetchConfig) {
		c.assetDir = dir
	}
}

// WithS3 enables s3://bucket/key URLs.
func WithS3(getter ObjectGetter) FetchOption {
	return func(c *fetchConfig) {
		c.s3 = getter
	}
}

// Fetcher loads assets over http(s), from the local filesystem or from S3.
type Fetcher struct {
	cfg    fetchConfig
	client *http.Client
}

// NewFetcher creates a Fetcher.
func NewFetcher(opts ...FetchOption) *Fetcher {
	cfg := defaultFetchConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	client := cfg.client
	if client == nil {
		client = &http.Client{Timeout: cfg.timeout}
	}
	return &Fetcher{cfg: cfg, client: client}
}

// Fetch returns the bytes and content type of rawURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	if rawURL == "" {
		return nil, "", &AssetError{URL: rawURL, Err: errors.New("empty URL")}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", &AssetError{URL: rawURL, Err: err}
	}

	var (
		data        []byte
		contentType string
	)
	switch u.Scheme {
	case "http", "https":
		data, contentType, err = f.fetchHTTP(ctx, rawURL)
	case "s3":
		data, contentType, err = f.fetchS3(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	case "file":
		data, err = readLocal(u.Path)
	case "":
		switch {
		case f.cfg.assetDir != "":
			data, err = readLocal(filepath.Join(f.cfg.assetDir, filepath.FromSlash(path.Clean("/"+u.Path))))
		case f.cfg.baseURL != "":
			data, contentType, err = f.fetchHTTP(ctx, f.cfg.baseURL+path.Clean("/"+u.Path))
		default:
			err = fmt.Errorf("relative asset path without base URL or asset dir")
		}
	default:
		err = fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if err != nil {
		return nil, "", &AssetError{URL: rawURL, Err: err}
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

// fetchHTTP retries transient failures with exponential backoff. Client
// errors (4xx) are not retried.
func (f *Fetcher) fetchHTTP(ctx context.Context, target string) ([]byte, string, error) {
	var lastErr error
	for attempt := range f.cfg.maxRetries {
		if attempt > 0 {
			backoff := f.cfg.baseBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return nil, "", fmt.Errorf("fetch: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		body, contentType, err := doFetch(ctx, f.client, target)
		if err == nil {
			return body, contentType, nil
		}
		lastErr = err
		var se *statusError
		if errors.As(err, &se) && se.code >= 400 && se.code < 500 {
			return nil, "", err
		}
	}
	return nil, "", fmt.Errorf("fetch: all %d attempts failed: %w", f.cfg.maxRetries, lastErr)
}

type statusError struct {
	url  string
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP GET %s: status %d", e.url, e.code)
}

// doFetch performs a single HTTP GET and returns the body and content type.
func doFetch(ctx context.Context, client *http.Client, target string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("HTTP GET %s: %w", target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", &statusError{url: target, code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetBytes))
	if err != nil {
		return nil, "", fmt.Errorf("reading response from %s: %w", target, err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func readLocal(p string) ([]byte, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxAssetBytes {
		return nil, fmt.Errorf("%s exceeds %d bytes", p, maxAssetBytes)
	}
	return os.ReadFile(p)
}
