// Package transport implements the remote bulk job contract over HTTP JSON and
// transfers bulk files over HTTP(S) and S3.
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

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

// Header names of the remote contract.
const (
	HeaderAuthorization  = "Authorization"
	HeaderDeveloperToken = "DeveloperToken"
	HeaderCustomerID     = "CustomerId"
	HeaderAccountID      = "AccountId"
	HeaderTrackingID     = "TrackingId"
)

// Credentials identify the caller and the account a request acts on.
type Credentials struct {
	AccessToken    string
	DeveloperToken string
	CustomerID     string
	AccountID      string
}

// Config configures a Client.
type Config struct {
	// Endpoint is the base URL of the remote service.
	Endpoint    string
	Credentials Credentials
	// RetryMax is the number of retries for connection errors, 429 and 5xx.
	// Job submissions are never retried.
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// Timeout bounds every HTTP round trip. Zero means no limit.
	Timeout time.Duration
}

// Client talks to the remote bulk service.
type Client struct {
	endpoint *url.URL
	creds    Credentials
	http     *retryablehttp.Client
	s3       S3API
	logger   zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger of the client and of its retry loop.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithS3 enables s3:// file transfers through api.
func WithS3(api S3API) Option {
	return func(c *Client) { c.s3 = api }
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http.HTTPClient = hc
		}
	}
}

// New returns a Client for cfg.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	u, err := url.Parse(strings.TrimRight(cfg.Endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("endpoint must be an http or https URL, got %q", cfg.Endpoint)
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		rc.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		rc.RetryWaitMax = cfg.RetryWaitMax
	}
	if cfg.Timeout > 0 {
		rc.HTTPClient.Timeout = cfg.Timeout
	}
	// Hand the last response back so non-2xx bodies decode into FaultError.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.CheckRetry = checkRetry

	c := &Client{
		endpoint: u,
		creds:    cfg.Credentials,
		http:     rc,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	rc.Logger = leveledLogger{c.logger}
	return c, nil
}

type sendOnceKey struct{}

// sendOnce marks requests made with ctx as not retryable. A job submission
// that failed with a 5xx may still have created the job.
func sendOnce(ctx context.Context) context.Context {
	return context.WithValue(ctx, sendOnceKey{}, true)
}

func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if once, _ := ctx.Value(sendOnceKey{}).(bool); once {
		return false, ctx.Err()
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

func (c *Client) url(p string) string {
	return c.endpoint.String() + p
}

func (c *Client) authorize(req *retryablehttp.Request, trackingID string) {
	if c.creds.AccessToken != "" {
		req.Header.Set(HeaderAuthorization, "Bearer "+c.creds.AccessToken)
	}
	if c.creds.DeveloperToken != "" {
		req.Header.Set(HeaderDeveloperToken, c.creds.DeveloperToken)
	}
	if c.creds.CustomerID != "" {
		req.Header.Set(HeaderCustomerID, c.creds.CustomerID)
	}
	if c.creds.AccountID != "" {
		req.Header.Set(HeaderAccountID, c.creds.AccountID)
	}
	if trackingID != "" {
		req.Header.Set(HeaderTrackingID, trackingID)
	}
}

// doJSON sends body as JSON and decodes a 2xx response into out. It returns
// the tracking id echoed by the service.
func (c *Client) doJSON(ctx context.Context, method, p, trackingID string, body, out any) (string, error) {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return "", fmt.Errorf("failed to encode request: %w", err)
		}
		payload = b
	}
	var rawBody any
	if payload != nil {
		rawBody = payload
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.url(p), rawBody)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req, trackingID)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call %s %s: %w", method, p, err)
	}
	defer resp.Body.Close()

	echoed := resp.Header.Get(HeaderTrackingID)
	if echoed == "" {
		echoed = trackingID
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return echoed, decodeFault(resp, echoed)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return echoed, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return echoed, fmt.Errorf("failed to decode %s %s response: %w", method, p, err)
	}
	return echoed, nil
}

func decodeFault(resp *http.Response, trackingID string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	fe := &FaultError{StatusCode: resp.StatusCode, TrackingID: trackingID}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, fe); err != nil {
			fe.Message = strings.TrimSpace(string(body))
		}
	}
	fe.StatusCode = resp.StatusCode
	if fe.TrackingID == "" {
		fe.TrackingID = trackingID
	}
	return fe
}
