package shopify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/standardbeagle/themescan/internal/debug"
)

// DefaultAPIVersion is the Admin API version requested when none is configured
const DefaultAPIVersion = "2024-10"

// Default retry budgets. Content fetches are many and must fail fast,
// so they get a smaller budget than the listing and definition calls.
const (
	DefaultMaxAttempts        = 5
	DefaultContentMaxAttempts = 3
	DefaultBaseDelay          = 500 * time.Millisecond
	DefaultRequestTimeout     = 30 * time.Second

	// MaxRetryAfter caps how long a single Retry-After header can park a request
	MaxRetryAfter = 60 * time.Second
)

// Sleeper pauses for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep is the real Sleeper
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Options configures a Client
type Options struct {
	Domain      string
	AccessToken string
	APIVersion  string

	MaxAttempts        int
	ContentMaxAttempts int
	BaseDelay          time.Duration
	RequestTimeout     time.Duration
	PageSize           int

	// BaseURL overrides https://<domain>; used against local fakes
	BaseURL    string
	HTTPClient *http.Client
	Sleep      Sleeper
	Now        func() time.Time
	Logger     *zap.Logger
}

// Client talks to the Shopify Admin REST and GraphQL APIs for one store
type Client struct {
	domain      string
	accessToken string
	apiVersion  string
	baseURL     string

	maxAttempts        int
	contentMaxAttempts int
	baseDelay          time.Duration
	pageSize           int

	httpClient *http.Client
	sleep      Sleeper
	now        func() time.Time
	logger     *zap.Logger
}

// NewClient creates a client for the store in opts
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Domain) == "" && opts.BaseURL == "" {
		return nil, fmt.Errorf("shopify: store domain is required")
	}
	if strings.TrimSpace(opts.AccessToken) == "" {
		return nil, fmt.Errorf("shopify: access token is required")
	}

	c := &Client{
		domain:             normalizeDomain(opts.Domain),
		accessToken:        opts.AccessToken,
		apiVersion:         opts.APIVersion,
		maxAttempts:        opts.MaxAttempts,
		contentMaxAttempts: opts.ContentMaxAttempts,
		baseDelay:          opts.BaseDelay,
		pageSize:           opts.PageSize,
		httpClient:         opts.HTTPClient,
		sleep:              opts.Sleep,
		now:                opts.Now,
		logger:             opts.Logger,
	}

	if c.apiVersion == "" {
		c.apiVersion = DefaultAPIVersion
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultMaxAttempts
	}
	if c.contentMaxAttempts <= 0 {
		c.contentMaxAttempts = DefaultContentMaxAttempts
	}
	if c.baseDelay <= 0 {
		c.baseDelay = DefaultBaseDelay
	}
	if c.pageSize <= 0 || c.pageSize > 250 {
		c.pageSize = 250
	}
	if c.httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = DefaultRequestTimeout
		}
		c.httpClient = &http.Client{Timeout: timeout}
	}
	if c.sleep == nil {
		c.sleep = ContextSleep
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = debug.Component("fetch")
	}

	c.baseURL = strings.TrimRight(opts.BaseURL, "/")
	if c.baseURL == "" {
		c.baseURL = "https://" + c.domain
	}
	return c, nil
}

// Domain returns the normalized store domain
func (c *Client) Domain() string {
	return c.domain
}

func (c *Client) adminURL(path string) string {
	return fmt.Sprintf("%s/admin/api/%s/%s", c.baseURL, c.apiVersion, strings.TrimLeft(path, "/"))
}

func (c *Client) authHeaders() map[string]string {
	return map[string]string{
		"X-Shopify-Access-Token": c.accessToken,
		"Accept":                 "application/json",
	}
}

// normalizeDomain strips scheme and trailing slashes: "https://shop.myshopify.com/" -> "shop.myshopify.com"
func normalizeDomain(domain string) string {
	d := strings.TrimSpace(domain)
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	return strings.TrimRight(d, "/")
}
