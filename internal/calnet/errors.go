package calnet

import (
	"fmt"
	"strings"
)

// MissingConfigError names a configuration key required before the flow
// can run at all. Never retried; the operator has to fix their config.
type MissingConfigError struct {
	Key string
}

func (e *MissingConfigError) Error() string {
	return fmt.Sprintf("calnet: missing config option: %s", e.Key)
}

// PrimaryCredentialError is the SSO page rejecting the username or
// password. Deterministic, so never retried.
type PrimaryCredentialError struct {
	Message string
}

func (e *PrimaryCredentialError) Error() string {
	return fmt.Sprintf("calnet: login error: %s", e.Message)
}

// DeviceNotFoundError means the configured Duo device name matched none
// of the devices the prompt offered.
type DeviceNotFoundError struct {
	Name      string
	Available []string
}

func (e *DeviceNotFoundError) Error() string {
	return fmt.Sprintf("calnet: no Duo device named %q found (available devices: [%s])",
		e.Name, strings.Join(e.Available, ", "))
}

// ChallengeError is Duo rejecting the second factor. The attempted
// passcode is included so the operator can tell a desynced counter from
// a genuine rejection.
type ChallengeError struct {
	Message  string
	Passcode string
}

func (e *ChallengeError) Error() string {
	if e.Passcode == "" {
		return fmt.Sprintf("calnet: Duo login error: %s", e.Message)
	}
	return fmt.Sprintf("calnet: Duo login error: %s (passcode: %s)", e.Message, e.Passcode)
}

// VerificationError means the flow finished without an explicit error
// but the browser did not land where the caller expected. Usually a
// transient redirect race, so the login loop retries these.
type VerificationError struct {
	URL string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("calnet: login failed: unexpected URL: %s", e.URL)
}
