// Package calnet drives a browser through the CalNet CAS login flow,
// including the embedded Duo second-factor prompt.
package calnet

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/okzoomer/okzoomer/internal/browser"
	"github.com/okzoomer/okzoomer/internal/otp"
)

const (
	// LoginURLPrefix is where CAS redirects unauthenticated requests.
	LoginURLPrefix = "https://auth.berkeley.edu/cas/login"

	// knownSuccessMessage is Duo's current success wording. Anything
	// else success-shaped logs a warning and proceeds, so an upstream
	// copy change doesn't break logins.
	knownSuccessMessage = "Success! Logging you in..."

	// DefaultRetries bounds full-flow restarts on verification failure.
	DefaultRetries = 3

	outcomePollInterval = 500 * time.Millisecond
)

const (
	selUsername         = "#loginForm input#username"
	selPassword         = "#loginForm input#password"
	selStatusOrFrame    = "#loginForm #status, #duo_iframe > iframe"
	selDuoIframe        = "#duo_iframe > iframe"
	selDeviceSelect     = "#login-form .device-selector select"
	selDeviceOptions    = "#login-form .device-selector select option"
	selErrorMessage     = "#messages-view .message.error .message-text"
	selSuccessMessage   = "#messages-view .message.success .message-text"
	fieldsetPasscodeFmt = "#auth_methods fieldset[data-device-index='%s'] %s"
)

// deviceLabelRe splits a device label into its name and an optional
// trailing parenthetical ("Phone (XXX-555-1234)" -> "Phone").
var deviceLabelRe = regexp.MustCompile(`^(.+?)(?: \(([^)]+)\))?$`)

// Credentials is the primary factor.
type Credentials struct {
	Username string
	Password string
}

// CheckFunc decides whether a final URL counts as "arrived".
type CheckFunc func(currentURL string) bool

// ExactURL builds a CheckFunc matching one URL exactly.
func ExactURL(expected string) CheckFunc {
	return func(currentURL string) bool { return currentURL == expected }
}

// Options configures one login run.
type Options struct {
	Credentials Credentials

	// DeviceName selects the enrolled Duo device for the automatic
	// passcode path. Matched exactly against the label prefix before
	// any parenthetical annotation.
	DeviceName string

	// Manual2FA waits (without any timeout, deliberately: a human may
	// legitimately be slow) for the operator to resolve the Duo
	// challenge out-of-band instead of submitting a passcode.
	Manual2FA bool

	// OTP is the enrolled HOTP state for the automatic path.
	OTP otp.State

	// PersistOTP stores the advanced OTP state. It is called before the
	// passcode is transmitted; losing the advance after transmission
	// desynchronizes the counter.
	PersistOTP func(otp.State) error

	// SkipURLs are known intermediate redirect pages to wait out.
	SkipURLs []string

	// MaxRedirectHops bounds each skip pass.
	MaxRedirectHops int

	// Check verifies the final URL. Nil skips verification.
	Check CheckFunc

	// Retries bounds full-flow restarts after a failed Check. Primary
	// credential and device errors are never retried.
	Retries int

	// OnRetry, if set, observes each restart.
	OnRetry func(attempt int, lastURL string)

	// OnDuoFrame, if set, observes the Duo prompt frame URL. Useful for
	// capturing the Duo origin's cookies afterwards.
	OnDuoFrame func(frameURL string)

	Logger arbor.ILogger
}

// Login navigates to targetURL, authenticating through CAS and Duo on
// the way if needed. Calling it when the session is already live is
// cheap: a URL that never reaches the CAS login page short-circuits
// straight to verification.
func Login(ctx context.Context, d browser.Driver, targetURL string, opts Options) error {
	if opts.Logger == nil {
		opts.Logger = arbor.NewLogger()
	}
	retries := opts.Retries
	if retries == 0 {
		retries = DefaultRetries
	}

	for attempt := 0; ; attempt++ {
		err := loginOnce(ctx, d, targetURL, &opts)
		var verr *VerificationError
		if err != nil && errors.As(err, &verr) && attempt < retries {
			opts.Logger.Warn().
				Int("attempt", attempt+1).
				Str("url", verr.URL).
				Msg("Retrying failed login: unexpected URL")
			if opts.OnRetry != nil {
				opts.OnRetry(attempt+1, verr.URL)
			}
			continue
		}
		return err
	}
}

func loginOnce(ctx context.Context, d browser.Driver, targetURL string, opts *Options) error {
	log := opts.Logger

	if err := d.Navigate(ctx, targetURL); err != nil {
		return fmt.Errorf("calnet: navigating to %s: %w", targetURL, err)
	}
	if err := browser.SkipKnownRedirects(ctx, d, opts.SkipURLs, opts.MaxRedirectHops); err != nil {
		return err
	}

	current, err := d.URL(ctx)
	if err != nil {
		return err
	}

	if strings.HasPrefix(current, LoginURLPrefix) {
		if err := submitCredentials(ctx, d, current, opts); err != nil {
			return err
		}
		log.Info().Msg("Logged in")

		if err := browser.SkipKnownRedirects(ctx, d, opts.SkipURLs, opts.MaxRedirectHops); err != nil {
			return err
		}
	}

	if opts.Check == nil {
		return nil
	}
	final, err := d.URL(ctx)
	if err != nil {
		return err
	}
	if !opts.Check(final) {
		return &VerificationError{URL: final}
	}
	return nil
}

func submitCredentials(ctx context.Context, d browser.Driver, casURL string, opts *Options) error {
	log := opts.Logger

	if opts.Credentials.Username == "" {
		return &MissingConfigError{Key: "calnet.username"}
	}
	if opts.Credentials.Password == "" {
		return &MissingConfigError{Key: "calnet.password"}
	}

	log.Info().Msg("Entering credentials")

	usernameElem, err := d.WaitVisible(ctx, selUsername)
	if err != nil {
		return fmt.Errorf("calnet: locating username field: %w", err)
	}
	if err := usernameElem.Type(ctx, opts.Credentials.Username); err != nil {
		return err
	}

	passwordElem, err := d.WaitVisible(ctx, selPassword)
	if err != nil {
		return fmt.Errorf("calnet: locating password field: %w", err)
	}
	if err := passwordElem.Type(ctx, opts.Credentials.Password); err != nil {
		return err
	}
	if err := passwordElem.Press(ctx, "Enter"); err != nil {
		return err
	}

	// The page now shows either an inline error region or the Duo
	// iframe; whichever appears first decides the branch.
	statusOrFrame, err := d.WaitVisible(ctx, selStatusOrFrame)
	if err != nil {
		return fmt.Errorf("calnet: waiting for login outcome: %w", err)
	}
	tag, err := statusOrFrame.Tag(ctx)
	if err != nil {
		return err
	}
	if tag != "IFRAME" {
		text, err := statusOrFrame.Text(ctx)
		if err != nil {
			return err
		}
		return &PrimaryCredentialError{Message: text}
	}

	passcode := ""
	if opts.Manual2FA {
		log.Info().Msg("Waiting for manual 2FA")
	} else {
		log.Info().Msg("Entering 2FA passcode")
		passcode, err = resolveChallenge(ctx, d, opts)
		if err != nil {
			return err
		}
	}

	if err := awaitChallengeOutcome(ctx, d, passcode, opts); err != nil {
		return err
	}

	// Settle: either the submission triggers a navigation away from the
	// CAS page, or we're already moving and just need the document.
	now, err := d.URL(ctx)
	if err != nil {
		return err
	}
	if now == casURL {
		if err := d.WaitNavigation(ctx); err != nil {
			return err
		}
	} else if err := d.WaitReady(ctx); err != nil {
		return err
	}
	return nil
}

// resolveChallenge selects the enrolled device inside the Duo frame,
// switches it to the passcode method, and submits a freshly generated
// HOTP code. The advanced counter is persisted before the code is
// typed: persisting after transmission risks a permanently desynced
// counter if the process dies in between.
func resolveChallenge(ctx context.Context, d browser.Driver, opts *Options) (string, error) {
	if opts.DeviceName == "" {
		return "", &MissingConfigError{Key: "calnet.duo.device_name"}
	}

	frame, err := d.WaitFrame(ctx, func(u *url.URL) bool {
		return strings.HasSuffix(u.Hostname(), ".duosecurity.com") &&
			strings.HasPrefix(u.Path, "/frame/prompt")
	})
	if err != nil {
		return "", fmt.Errorf("calnet: waiting for Duo prompt: %w", err)
	}
	defer frame.Close()

	if opts.OnDuoFrame != nil {
		frameURL, err := frame.URL(ctx)
		if err == nil {
			opts.OnDuoFrame(frameURL)
		}
	}

	selectElem, err := frame.WaitVisible(ctx, selDeviceSelect)
	if err != nil {
		return "", fmt.Errorf("calnet: locating Duo device selector: %w", err)
	}

	optionElems, err := frame.QueryAll(ctx, selDeviceOptions)
	if err != nil {
		return "", err
	}
	devices := make(map[string]string, len(optionElems))
	available := make([]string, 0, len(optionElems))
	for _, optionElem := range optionElems {
		label, err := optionElem.Text(ctx)
		if err != nil {
			return "", err
		}
		deviceID, err := optionElem.Attr(ctx, "value")
		if err != nil {
			return "", err
		}
		name := deviceLabelName(label)
		devices[name] = deviceID
		available = append(available, name)
	}

	deviceID, ok := devices[opts.DeviceName]
	if !ok {
		return "", &DeviceNotFoundError{Name: opts.DeviceName, Available: available}
	}
	if err := selectElem.SelectOption(ctx, deviceID); err != nil {
		return "", err
	}

	passcodeBtn, err := frame.WaitVisible(ctx, fmt.Sprintf(fieldsetPasscodeFmt, deviceID, "button#passcode"))
	if err != nil {
		return "", fmt.Errorf("calnet: locating passcode method button: %w", err)
	}
	if err := passcodeBtn.Click(ctx); err != nil {
		return "", err
	}

	code, next, err := opts.OTP.Generate()
	if err != nil {
		if errors.Is(err, otp.ErrNotProvisioned) {
			return "", &MissingConfigError{Key: "calnet.duo.otp_uri"}
		}
		return "", err
	}
	// Advance in place so a retried flow never reuses a counter.
	opts.OTP = next
	if opts.PersistOTP != nil {
		if err := opts.PersistOTP(next); err != nil {
			return "", fmt.Errorf("calnet: persisting advanced OTP counter: %w", err)
		}
	}

	passcodeInput, err := frame.WaitVisible(ctx, fmt.Sprintf(fieldsetPasscodeFmt, deviceID, "input[name='passcode']"))
	if err != nil {
		return "", fmt.Errorf("calnet: locating passcode input: %w", err)
	}
	if err := passcodeInput.Type(ctx, code); err != nil {
		return "", err
	}
	if err := passcodeInput.Press(ctx, "Enter"); err != nil {
		return "", err
	}
	return code, nil
}

// awaitChallengeOutcome polls until the Duo iframe disappears (the page
// moved on without a status message) or a success/error message shows.
// In manual mode the poll is unbounded by design.
func awaitChallengeOutcome(ctx context.Context, d browser.Driver, passcode string, opts *Options) error {
	for {
		if _, err := d.Query(ctx, selDuoIframe); err != nil {
			if errors.Is(err, browser.ErrNoElement) {
				return nil
			}
			return err
		}

		if msgElem, err := d.Query(ctx, selErrorMessage); err == nil {
			text, err := msgElem.Text(ctx)
			if err != nil {
				return err
			}
			return &ChallengeError{Message: text, Passcode: passcode}
		} else if !errors.Is(err, browser.ErrNoElement) {
			return err
		}

		if msgElem, err := d.Query(ctx, selSuccessMessage); err == nil {
			text, err := msgElem.Text(ctx)
			if err != nil {
				return err
			}
			if text != knownSuccessMessage {
				opts.Logger.Warn().Str("message", text).Msg("Unknown Duo success message")
			}
			return nil
		} else if !errors.Is(err, browser.ErrNoElement) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(outcomePollInterval):
		}
	}
}

// deviceLabelName strips the trailing parenthetical annotation from a
// Duo device label.
func deviceLabelName(label string) string {
	m := deviceLabelRe.FindStringSubmatch(strings.TrimSpace(label))
	if m == nil {
		return strings.TrimSpace(label)
	}
	return m[1]
}
