package zoom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/okzoomer/okzoomer/internal/browser"
)

// csrfTokenRe matches the entire /csrf_js response body. Anything else
// is a protocol mismatch.
var csrfTokenRe = regexp.MustCompile(`^ZOOM-CSRFTOKEN:([0-9A-Za-z_-]+)$`)

// Client calls the Zoom web application's internal endpoints with a
// captured browser session. Safe for use from a single goroutine.
type Client struct {
	httpClient   *http.Client
	logger       arbor.ILogger
	origin       string
	cookieHeader string
	userAgent    string
	csrfToken    string
	limiter      *rate.Limiter
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithOrigin overrides the Zoom web origin.
func WithOrigin(origin string) ClientOption {
	return func(c *Client) {
		c.origin = strings.TrimRight(origin, "/")
	}
}

// WithUserAgent overrides the browser user agent sent on every request.
// It should match the browser the session cookies came from.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithCSRFToken pins the CSRF token instead of probing /csrf_js per
// call. Tokens are scoped to a session; do not carry one across
// re-authentication.
func WithCSRFToken(token string) ClientOption {
	return func(c *Client) {
		c.csrfToken = token
	}
}

// WithPageInterval sets the delay between paginated list requests.
func WithPageInterval(interval time.Duration) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
}

// NewClient creates a client for the given session cookie header
// ("name=value; name=value" form, as sent on the Cookie header).
func NewClient(cookieHeader string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		logger:       arbor.Logger(),
		origin:       DefaultOrigin,
		cookieHeader: cookieHeader,
		userAgent:    browser.RandomUserAgent(),
		limiter:      rate.NewLimiter(rate.Every(DefaultPageInterval), 1),
	}

	for _, opt := range opts {
		opt(c)
	}

	// The bucket starts full; drain it so the first inter-page wait
	// honors the interval.
	c.limiter.Allow()

	return c
}

// Origin returns the Zoom web origin this client targets.
func (c *Client) Origin() string {
	return c.origin
}

// CSRFToken probes /csrf_js for a fresh token. Zoom replies with a
// single line, not JSON.
func (c *Client) CSRFToken(ctx context.Context) (string, error) {
	endpoint := c.origin + "/csrf_js"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create CSRF request: %w", err)
	}

	c.setCommonHeaders(req)
	req.Header.Set("FETCH-CSRF-TOKEN", "1")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("CSRF request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read CSRF response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &HTTPError{StatusCode: resp.StatusCode, Method: http.MethodPost, URL: endpoint}
	}

	m := csrfTokenRe.FindSubmatch(bytes.TrimSpace(body))
	if m == nil {
		return "", &ProtocolMismatchError{Endpoint: "/csrf_js", Body: string(body)}
	}

	token := string(m[1])
	c.logger.Debug().Str("token_prefix", tokenPrefix(token)).Msg("Fetched Zoom CSRF token")

	return token, nil
}

// Call POSTs a form-encoded request to an internal endpoint and returns
// the envelope's result payload.
func (c *Client) Call(ctx context.Context, path string, form url.Values) (json.RawMessage, error) {
	token := c.csrfToken
	if token == "" {
		var err error
		token, err = c.CSRFToken(ctx)
		if err != nil {
			return nil, err
		}
	}

	endpoint := c.origin + path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setCommonHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("ZOOM-CSRFTOKEN", token)

	c.logger.Debug().
		Str("path", path).
		Msg("Calling Zoom endpoint")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Method: http.MethodPost, URL: endpoint}
	}

	return classifyEnvelope(body)
}

// envelope is the wrapper every internal endpoint replies with.
type envelope struct {
	Status       bool            `json:"status"`
	ErrorCode    int             `json:"errorCode"`
	ErrorMessage string          `json:"errorMessage"`
	Result       json.RawMessage `json:"result"`
}

const errorCodeSessionExpired = 201

func classifyEnvelope(body []byte) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to parse response envelope: %w", err)
	}

	if env.ErrorCode == errorCodeSessionExpired {
		return nil, &SessionExpiredError{}
	}

	if !env.Status || env.ErrorCode != 0 || env.ErrorMessage != "" {
		return nil, &APIError{Code: env.ErrorCode, Message: env.ErrorMessage}
	}

	return env.Result, nil
}

// setCommonHeaders impersonates the browser the session came from. The
// CSRFGuard value is sent by Zoom's own frontend.
func (c *Client) setCommonHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Cookie", c.cookieHeader)
	req.Header.Set("Origin", c.origin)
	req.Header.Set("Referer", c.origin+"/meeting")
	req.Header.Set("X-Requested-With", "XMLHttpRequest, XMLHttpRequest, OWASP CSRFGuard Project")
	req.Header.Set("Sec-Fetch-Dest", "empty")
	req.Header.Set("Sec-Fetch-Mode", "cors")
	req.Header.Set("Sec-Fetch-Site", "same-origin")
}

func tokenPrefix(token string) string {
	if len(token) > 8 {
		return token[:8]
	}
	return token
}
