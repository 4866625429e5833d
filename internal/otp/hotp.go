// Package otp derives HOTP passcodes from an otpauth:// URI that carries
// the enrolled secret and counter. State is explicit: Generate returns
// the advanced state and the caller persists it. Persist BEFORE
// transmitting the passcode — a crash between generation and persistence
// leaves the stored counter behind the server's and every later passcode
// from the stale counter is rejected. This engine cannot detect or
// repair that; the login flow surfaces it as a verification failure.
package otp

import (
	"encoding/base32"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	potp "github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
)

// ErrNotProvisioned indicates no OTP secret has been enrolled yet.
var ErrNotProvisioned = errors.New("otp: no secret provisioned")

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// State is one snapshot of an enrolled HOTP device. The zero value is
// unprovisioned.
type State struct {
	uri       *url.URL
	secret    string
	counter   uint64
	algorithm potp.Algorithm
	digits    potp.Digits
}

// ParseURI loads a state from an otpauth://hotp/... URI.
func ParseURI(raw string) (State, error) {
	if raw == "" {
		return State{}, ErrNotProvisioned
	}
	u, err := url.Parse(raw)
	if err != nil {
		return State{}, fmt.Errorf("otp: invalid URI: %w", err)
	}
	if u.Scheme != "otpauth" {
		return State{}, fmt.Errorf("otp: unexpected URI scheme %q", u.Scheme)
	}
	if !strings.EqualFold(u.Host, "hotp") {
		return State{}, fmt.Errorf("otp: unsupported OTP type %q (counter-based required)", u.Host)
	}

	q := u.Query()
	secret := q.Get("secret")
	if secret == "" {
		return State{}, ErrNotProvisioned
	}

	var counter uint64
	if raw := q.Get("counter"); raw != "" {
		counter, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return State{}, fmt.Errorf("otp: invalid counter %q: %w", raw, err)
		}
	}

	s := State{
		uri:       u,
		secret:    strings.ToUpper(secret),
		counter:   counter,
		algorithm: potp.AlgorithmSHA1,
		digits:    potp.DigitsSix,
	}
	switch strings.ToUpper(q.Get("algorithm")) {
	case "", "SHA1":
	case "SHA256":
		s.algorithm = potp.AlgorithmSHA256
	case "SHA512":
		s.algorithm = potp.AlgorithmSHA512
	default:
		return State{}, fmt.Errorf("otp: unsupported algorithm %q", q.Get("algorithm"))
	}
	if raw := q.Get("digits"); raw == "8" {
		s.digits = potp.DigitsEight
	}
	return s, nil
}

// New builds a fresh state at counter zero, as produced by device
// activation. The secret is raw key bytes.
func New(label, issuer string, secret []byte) State {
	encoded := b32.EncodeToString(secret)
	u := &url.URL{
		Scheme: "otpauth",
		Host:   "hotp",
		Path:   "/" + label,
	}
	q := url.Values{}
	q.Set("secret", encoded)
	q.Set("issuer", issuer)
	q.Set("algorithm", "SHA1")
	q.Set("digits", "6")
	q.Set("counter", "0")
	u.RawQuery = q.Encode()

	return State{
		uri:       u,
		secret:    encoded,
		counter:   0,
		algorithm: potp.AlgorithmSHA1,
		digits:    potp.DigitsSix,
	}
}

// Provisioned reports whether a secret is present.
func (s State) Provisioned() bool { return s.secret != "" }

// Counter returns the next counter value Generate will consume.
func (s State) Counter() uint64 { return s.counter }

// URI serializes the state, counter included, for persistence.
func (s State) URI() string {
	if s.uri == nil {
		return ""
	}
	u := *s.uri
	q := u.Query()
	q.Set("counter", strconv.FormatUint(s.counter, 10))
	u.RawQuery = q.Encode()
	return u.String()
}

// Generate derives the passcode for the current counter and returns the
// advanced state. Deterministic for a given (secret, counter) pair.
func (s State) Generate() (string, State, error) {
	if !s.Provisioned() {
		return "", s, ErrNotProvisioned
	}
	code, err := hotp.GenerateCodeCustom(s.secret, s.counter, hotp.ValidateOpts{
		Digits:    s.digits,
		Algorithm: s.algorithm,
	})
	if err != nil {
		return "", s, fmt.Errorf("otp: generating passcode at counter %d: %w", s.counter, err)
	}
	next := s
	next.counter = s.counter + 1
	return code, next, nil
}
