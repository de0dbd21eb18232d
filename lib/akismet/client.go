// Package akismet implements a client for the Akismet spam detection service.
//
// A Client is made for a single comment (submission). New verifies the API key with the
// service before returning, so an invalid key never produces a usable client. The comment is
// described with chained setters and sent with one of the remote operations:
//
//   - CheckIsSpam asks the service to classify the comment.
//   - ReportSpam reports a comment the service missed (submit-spam).
//   - ReportHam reports a comment incorrectly marked as spam (submit-ham).
//
// The service answers with short plain-text bodies and the client compares them literally.
// Any body other than the expected one is a negative result, not an error. Network failures,
// timeouts and non-2xx statuses are returned as *TransportError and never retried.
//
// The client is not safe for concurrent use, each caller should make its own.
package akismet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

//go:generate moq --out mocks/http_client.go --pkg mocks --skip-ensure --with-resets . HTTPClient

// default service endpoints and protocol version
const (
	DefaultServiceRoot = "https://rest.akismet.com"
	ProtocolVersion    = "1.1"
)

// operation names, used as the last path element of the endpoint
const (
	OpVerifyKey    = "verify-key"
	OpCommentCheck = "comment-check"
	OpSubmitSpam   = "submit-spam"
	OpSubmitHam    = "submit-ham"
)

const (
	validKeyResponse = "valid"
	spamResponse     = "true"
	thanksResponse   = "Thanks for making the web a better place."

	verifyTimeout = 10 * time.Second
	checkTimeout  = 15 * time.Second
	submitTimeout = 10 * time.Second

	maxResponseSize = 64 * 1024
)

var (
	// ErrInvalidCredentials returned by New if the service did not accept the API key.
	ErrInvalidCredentials = errors.New("invalid akismet api key")
	// ErrInvalidWebsite returned by New if the website is not an absolute http(s) url.
	ErrInvalidWebsite = errors.New("invalid website url")
	// ErrUnexpectedStatus wrapped by TransportError for non-2xx responses.
	ErrUnexpectedStatus = errors.New("unexpected status")
)

var defaultHTTPClient = &http.Client{Timeout: 30 * time.Second}

// HTTPClient is an interface for http client, satisfied by http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a verified Akismet client holding one submission record.
type Client struct {
	apiKey      string
	website     string
	serviceRoot string
	apiHost     func(apiKey string) string
	userAgent   string
	httpClient  HTTPClient
	ambient     Ambient
	record      map[string]string
}

// Option sets optional parameters of the Client.
type Option func(c *Client)

// WithAmbient seeds user_ip, user_agent and referrer from the hosting request context.
// Empty values are ignored. Setters called later override the seeded values.
func WithAmbient(a Ambient) Option {
	return func(c *Client) { c.ambient = a }
}

// WithHTTPClient sets http client used for all requests, http.Client with 30s timeout by default.
func WithHTTPClient(hc HTTPClient) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithServiceRoot sets the root url for verify-key, DefaultServiceRoot by default.
func WithServiceRoot(root string) Option {
	return func(c *Client) {
		if root != "" {
			c.serviceRoot = strings.TrimSuffix(root, "/")
		}
	}
}

// WithAPIHost sets the function making the per-key root url for comment-check and submit calls.
// The default routes to https://{apiKey}.rest.akismet.com as the service requires.
func WithAPIHost(fn func(apiKey string) string) Option {
	return func(c *Client) {
		if fn != nil {
			c.apiHost = fn
		}
	}
}

// WithUserAgent sets the User-Agent header of outgoing requests.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// New makes a client for the given website and verifies apiKey with the service.
// Returns ErrInvalidCredentials (wrapped) if the service does not answer "valid",
// and *TransportError if verification request failed.
func New(ctx context.Context, website, apiKey string, opts ...Option) (*Client, error) {
	if err := checkWebsite(website); err != nil {
		return nil, err
	}
	if apiKey == "" {
		return nil, fmt.Errorf("empty key: %w", ErrInvalidCredentials)
	}

	res := &Client{
		apiKey:      apiKey,
		website:     website,
		serviceRoot: DefaultServiceRoot,
		apiHost:     defaultAPIHost,
		userAgent:   "akismet-check | Akismet/" + ProtocolVersion,
		httpClient:  defaultHTTPClient,
		record:      map[string]string{FieldBlog: website},
	}
	for _, opt := range opts {
		opt(res)
	}
	res.seedAmbient()

	ok, err := res.verifyKey(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("key rejected for %s, obtain a valid one from https://akismet.com: %w", website, ErrInvalidCredentials)
	}
	return res, nil
}

// Website returns the site url the client was made for, it is sent as "blog" field.
func (c *Client) Website() string { return c.website }

// CheckIsSpam sends the comment to comment-check. Returns true only if the service answered "true".
func (c *Client) CheckIsSpam(ctx context.Context) (bool, error) {
	body, err := c.post(ctx, OpCommentCheck, c.apiURL(OpCommentCheck), c.values(), checkTimeout)
	if err != nil {
		return false, err
	}
	return body == spamResponse, nil
}

// ReportSpam sends the comment to submit-spam, reporting spam the service missed.
// Returns true if the service acknowledged the submission.
func (c *Client) ReportSpam(ctx context.Context) (bool, error) {
	return c.submit(ctx, OpSubmitSpam)
}

// ReportHam sends the comment to submit-ham, reporting a false positive.
// Returns true if the service acknowledged the submission.
func (c *Client) ReportHam(ctx context.Context) (bool, error) {
	return c.submit(ctx, OpSubmitHam)
}

func (c *Client) submit(ctx context.Context, op string) (bool, error) {
	body, err := c.post(ctx, op, c.apiURL(op), c.values(), submitTimeout)
	if err != nil {
		return false, err
	}
	return body == thanksResponse, nil
}

// verifyKey checks the api key. The blog value is url-escaped before form encoding,
// the service accepts it in this form.
func (c *Client) verifyKey(ctx context.Context) (bool, error) {
	form := url.Values{}
	form.Set("blog", url.QueryEscape(c.website))
	form.Set("key", c.apiKey)
	endpoint := c.serviceRoot + "/" + ProtocolVersion + "/" + OpVerifyKey
	body, err := c.post(ctx, OpVerifyKey, endpoint, form, verifyTimeout)
	if err != nil {
		return false, err
	}
	return body == validKeyResponse, nil
}

// post sends form to endpoint and returns the whole response body as is.
// The api key is part of the endpoint host, errors carry the url and messages with the key redacted.
func (c *Client) post(ctx context.Context, op, endpoint string, form url.Values, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	safeURL := redact(endpoint, c.apiKey)
	failed := func(status int, err error) error {
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = redact(ue.URL, c.apiKey)
		}
		return &TransportError{Op: op, URL: safeURL, StatusCode: status, Err: &redactedError{err: err, secret: c.apiKey}}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", failed(0, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", failed(0, err)
	}
	defer resp.Body.Close() // nolint

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &TransportError{Op: op, URL: safeURL, StatusCode: resp.StatusCode, Err: ErrUnexpectedStatus}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", failed(resp.StatusCode, fmt.Errorf("can't read body: %w", err))
	}
	log.Printf("[DEBUG] akismet %s response: %q", op, data)
	return string(data), nil
}

func (c *Client) apiURL(op string) string {
	return strings.TrimSuffix(c.apiHost(c.apiKey), "/") + "/" + ProtocolVersion + "/" + op
}

func defaultAPIHost(apiKey string) string {
	return "https://" + apiKey + ".rest.akismet.com"
}

func checkWebsite(website string) error {
	u, err := url.Parse(website)
	if err != nil {
		return fmt.Errorf("can't parse %q: %w", website, ErrInvalidWebsite)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an absolute http(s) url: %w", website, ErrInvalidWebsite)
	}
	return nil
}
