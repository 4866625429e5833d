package main

import (
	"context"
	"fmt"

	"github.com/okzoomer/okzoomer/internal/browser"
	"github.com/okzoomer/okzoomer/internal/calnet"
	"github.com/okzoomer/okzoomer/internal/otp"
	"github.com/okzoomer/okzoomer/internal/session"
)

// authenticate starts a browser, restores any cached session, and logs
// in through CAS and Duo until checkURL is reached. The fresh session
// is captured back into the cookie cache before returning. The returned
// user agent is the one the browser presented; API calls reusing the
// session cookies must send the same one.
func authenticate(ctx context.Context, targetURL, checkURL string) (browser.Driver, string, func(), error) {
	browserCfg := browser.Config{
		Headless:  config.Browser.Headless,
		UserAgent: config.Browser.UserAgent,
	}
	if browserCfg.UserAgent == "" {
		browserCfg.UserAgent = browser.RandomUserAgent()
	}

	d, cleanup, err := browser.NewChromedp(ctx, browserCfg, logger)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to start browser: %w", err)
	}

	cache, err := session.Load(config.Session.CachePath)
	if err != nil {
		logger.Warn().Err(err).Msg("Ignoring unreadable session cache")
	}
	duoURL := ""
	if cache != nil {
		if err := cache.Restore(ctx, d, calnet.LoginURLPrefix, config.Zoom.Origin); err != nil {
			cleanup()
			return nil, "", nil, err
		}
		duoURL = cache.DuoURL
		logger.Debug().Str("path", config.Session.CachePath).Msg("Restored cached session cookies")
	}

	var otpState otp.State
	if config.CalNet.Duo.OTPURI != "" {
		otpState, err = otp.ParseURI(config.CalNet.Duo.OTPURI)
		if err != nil {
			cleanup()
			return nil, "", nil, fmt.Errorf("invalid calnet.duo.otp_uri: %w", err)
		}
	}

	err = calnet.Login(ctx, d, targetURL, calnet.Options{
		Credentials: calnet.Credentials{
			Username: config.CalNet.Username,
			Password: config.CalNet.Password,
		},
		DeviceName: config.CalNet.Duo.DeviceName,
		Manual2FA:  config.CalNet.Duo.Manual,
		OTP:        otpState,
		PersistOTP: persistOTP,
		SkipURLs:   config.Login.SkipURLs,
		Check:      calnet.ExactURL(checkURL),
		Retries:    config.Login.Retries,
		OnDuoFrame: func(frameURL string) { duoURL = frameURL },
		Logger:     logger,
	})
	if err != nil {
		cleanup()
		return nil, "", nil, err
	}

	captured, err := session.Capture(ctx, d, calnet.LoginURLPrefix, duoURL, config.Zoom.Origin)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to capture session cookies")
	} else if err := captured.Save(config.Session.CachePath); err != nil {
		logger.Warn().Err(err).Msg("Failed to save session cache")
	}

	return d, browserCfg.UserAgent, cleanup, nil
}

// persistOTP writes the advanced HOTP counter back to the config file.
// Runs before each passcode submission; a counter lost after
// transmission cannot be replayed.
func persistOTP(st otp.State) error {
	config.CalNet.Duo.OTPURI = st.URI()
	return config.Save(configPath)
}
