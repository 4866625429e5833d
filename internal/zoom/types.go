// Package zoom is a client for the Zoom web application's internal API,
// authenticated with browser session cookies captured after SSO login.
package zoom

import (
	"fmt"
	"time"
)

const (
	// DefaultOrigin is the tenant's Zoom web origin.
	DefaultOrigin = "https://berkeley.zoom.us"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultPageInterval is the politeness delay between paginated
	// list requests. Not a correctness requirement.
	DefaultPageInterval = 2 * time.Second
)

// Recording is one cloud recording row from the host list.
type Recording struct {
	MeetingRoomID string `json:"meetingRoomID"`
	MeetingID     string `json:"meetingID"`
	// Timestamp is the recording creation time in ISO 8601.
	Timestamp string `json:"timestamp"`
	Topic     string `json:"topic"`
}

// ShareInfo is the resolved public share link for one recording.
type ShareInfo struct {
	Link string `json:"link"`
}

// HTTPError is a non-200 response. Fatal per call; whether to retry the
// surrounding operation is the caller's decision.
type HTTPError struct {
	StatusCode int
	Method     string
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("zoom: HTTP %d (%s %s)", e.StatusCode, e.Method, e.URL)
}

// APIError is a business error the API reports inside an HTTP 200
// envelope. Terminal.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("zoom: API error: %s (code: %d)", e.Message, e.Code)
}

// SessionExpiredError is the envelope's "stale session" code (201).
// Recoverable: re-authenticate and retry the call once.
type SessionExpiredError struct{}

func (e *SessionExpiredError) Error() string {
	return "zoom: session expired, re-authentication required"
}

// ReauthError means the re-login itself failed. The whole session is
// gone; batch callers must stop instead of retrying per record.
type ReauthError struct {
	Err error
}

func (e *ReauthError) Error() string {
	return fmt.Sprintf("zoom: re-authentication failed: %v", e.Err)
}

func (e *ReauthError) Unwrap() error { return e.Err }

// ProtocolMismatchError means a rigid endpoint (the CSRF probe) replied
// in a shape this client does not recognize. Terminal: the integration
// needs updating, this is not a transient fault.
type ProtocolMismatchError struct {
	Endpoint string
	Body     string
}

func (e *ProtocolMismatchError) Error() string {
	return fmt.Sprintf("zoom: unexpected %s response shape: %q", e.Endpoint, e.Body)
}
