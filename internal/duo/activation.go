// Package duo enrolls this tool as a Duo Mobile device. Activation is a
// one-shot handshake: a short-lived code from the activation QR is
// exchanged for a long-lived HOTP secret and device metadata.
package duo

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/okzoomer/okzoomer/internal/otp"
)

const (
	activationUserAgent = "okhttp/4.9.0"

	// DefaultTimeout is the default HTTP timeout for the handshake.
	DefaultTimeout = 30 * time.Second
)

// deviceInfo is the fingerprint of the Android device we claim to be.
// The activation endpoint validates these fields loosely but profiles
// clients that always send them in the same order, so the request body
// is re-shuffled per call.
var deviceInfo = [][2]string{
	{"app_id", "com.duosecurity.duomobile"},
	{"app_version", "4.4.0"},
	{"app_build_number", "404000"},
	{"full_disk_encryption", "true"},
	{"manufacturer", "Samsung"},
	{"model", "SM-G998U"},
	{"platform", "Android"},
	{"jailbroken", "false"},
	{"version", "12"},
	{"security_patch_level", "2021-12-05"},
	{"passcode_status", "true"},
	{"touchid_status", "true"},
	{"language", "en"},
	{"region", "US"},
	{"architecture", "arm64"},
}

// ActivationError is a non-200 reply from the activation endpoint.
// Activation codes are single-use and expire quickly, so the usual cause
// is a stale QR.
type ActivationError struct {
	StatusCode int
	Body       string
}

func (e *ActivationError) Error() string {
	return fmt.Sprintf("duo: activation failed (status: %d): %s", e.StatusCode, e.Body)
}

// Enrollment is the outcome of a successful activation.
type Enrollment struct {
	OTP          otp.State
	DeviceKey    string
	CustomerName string
}

// Client performs activation handshakes.
type Client struct {
	httpClient *http.Client
	logger     arbor.ILogger
	shuffle    func(n int, swap func(i, j int))
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates an activation client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		shuffle:    rand.Shuffle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Activate exchanges an activation payload ("<code>-<base64(hostname)>")
// for an enrolled HOTP state. The payload is consumed server-side on
// first use; retrying a consumed code fails with ActivationError.
func (c *Client) Activate(ctx context.Context, payload string) (*Enrollment, error) {
	code, host, err := splitPayload(payload)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("https://%s/push/v2/activation/%s", host, code)
	body, err := c.fingerprintBody()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("duo: building activation request: %w", err)
	}
	req.Header.Set("User-Agent", activationUserAgent)
	req.Header.Set("Content-Type", "application/json")

	if c.logger != nil {
		c.logger.Debug().Str("host", host).Msg("Activating Duo device")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duo: activation request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("duo: reading activation response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ActivationError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var parsed struct {
		Response struct {
			HOTPSecret   string `json:"hotp_secret"`
			CustomerName string `json:"customer_name"`
			PKey         string `json:"pkey"`
		} `json:"response"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("duo: parsing activation response: %w", err)
	}
	if parsed.Response.HOTPSecret == "" {
		return nil, fmt.Errorf("duo: activation response carried no secret")
	}

	label := "Duo: " + parsed.Response.CustomerName
	state := otp.New(label, "Duo", latin1Bytes(parsed.Response.HOTPSecret))

	return &Enrollment{
		OTP:          state,
		DeviceKey:    parsed.Response.PKey,
		CustomerName: parsed.Response.CustomerName,
	}, nil
}

// fingerprintBody marshals deviceInfo with the key order randomized.
// Any order is valid JSON; the property that matters is that no fixed
// order repeats across calls.
func (c *Client) fingerprintBody() ([]byte, error) {
	fields := make([][2]string, len(deviceInfo))
	copy(fields, deviceInfo)
	c.shuffle(len(fields), func(i, j int) {
		fields[i], fields[j] = fields[j], fields[i]
	})

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(kv[0])
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(kv[1])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func splitPayload(payload string) (code, host string, err error) {
	code, encodedHost, ok := strings.Cut(strings.TrimSpace(payload), "-")
	if !ok || code == "" {
		return "", "", fmt.Errorf("duo: malformed activation payload")
	}

	decoded, err := base64.StdEncoding.DecodeString(encodedHost)
	if err != nil {
		decoded, err = base64.RawStdEncoding.DecodeString(encodedHost)
	}
	if err != nil {
		return "", "", fmt.Errorf("duo: decoding API hostname: %w", err)
	}
	return code, string(decoded), nil
}

// latin1Bytes recovers the raw key bytes from a JSON string whose code
// points are each one key byte (the provider serializes the secret as
// latin-1 text).
func latin1Bytes(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		out = append(out, byte(r))
	}
	return out
}
