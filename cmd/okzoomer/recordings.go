package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okzoomer/okzoomer/internal/browser"
	"github.com/okzoomer/okzoomer/internal/common"
	"github.com/okzoomer/okzoomer/internal/roster"
	"github.com/okzoomer/okzoomer/internal/storage"
	"github.com/okzoomer/okzoomer/internal/zoom"
)

// runRecordingLinks logs in to Zoom through CalNet, fetches every cloud
// recording, and resolves a public share link for each one. Progress
// persists in the recording store, so an interrupted run resumes
// instead of starting over.
func runRecordingLinks(ctx context.Context) error {
	if len(config.Login.SkipURLs) == 0 {
		config.Login.SkipURLs = []string{
			config.Zoom.Origin + "/saml/login",
			"https://shib.berkeley.edu/idp/profile/SAML2/POST/SSO",
		}
	}

	client, err := newZoomClient(ctx)
	if err != nil {
		return err
	}

	// A stale cached session surfaces as a session-expired envelope on
	// the first call; one re-login recovers it.
	reauth := func(ctx context.Context) (*zoom.Client, error) {
		fresh, err := newZoomClient(ctx)
		if err != nil {
			return nil, err
		}
		client = fresh
		return fresh, nil
	}

	db, err := storage.Open(config.Storage.Path, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	store := storage.NewRecordingStore(db, logger)

	runID := common.NewRunID()

	var recordings []zoom.Recording
	err = zoom.WithReauth(ctx, client, reauth, func(ctx context.Context, c *zoom.Client) error {
		var err error
		recordings, err = c.ListRecordings(ctx)
		return err
	})
	if err != nil {
		return err
	}

	for _, rec := range recordings {
		if err := store.UpsertRecording(ctx, rec, runID); err != nil {
			return err
		}
	}

	unresolved, err := store.ListUnresolved(ctx)
	if err != nil {
		return err
	}
	logger.Info().
		Int("total", len(recordings)).
		Int("unresolved", len(unresolved)).
		Msg("Resolving recording share links")

	failed := 0
	for _, rec := range unresolved {
		var info *zoom.ShareInfo
		err := zoom.WithReauth(ctx, client, reauth, func(ctx context.Context, c *zoom.Client) error {
			var err error
			info, err = c.RecordingShareInfo(ctx, rec.MeetingID, "")
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Session-invalidating errors doom every remaining record;
			// only per-record failures are worth skipping past.
			var expired *zoom.SessionExpiredError
			var reauthFailed *zoom.ReauthError
			if errors.As(err, &expired) || errors.As(err, &reauthFailed) {
				return fmt.Errorf("aborting share link batch: %w", err)
			}
			failed++
			logger.Error().Err(err).Str("topic", rec.Topic).Msg("Failed to fetch recording share info")
			continue
		}

		if err := store.SetShareLink(ctx, rec.MeetingID, info.Link); err != nil {
			return err
		}
		fmt.Printf("fetched recording share info (topic: %s, link: %s)\n", rec.Topic, info.Link)
	}

	if failed > 0 {
		logger.Warn().Int("failed", failed).Msg("Some share links could not be resolved; rerun to retry")
	}

	if *rosterPath != "" {
		return writeRosterOutput(ctx, store)
	}
	return nil
}

// writeRosterOutput maps resolved share links back to students. Topics
// of per-student meetings embed the student's email, so a substring
// match pairs each recording with its owner.
func writeRosterOutput(ctx context.Context, store *storage.RecordingStore) error {
	r, err := roster.Read(*rosterPath)
	if err != nil {
		return err
	}
	if err := r.MergeOutput(*outputPath); err != nil {
		return err
	}

	all, err := store.ListAll(ctx)
	if err != nil {
		return err
	}

	matched := 0
	for _, entry := range r.Entries() {
		if entry.Link != "" {
			continue
		}
		for _, rec := range all {
			if rec.ShareLink != "" && strings.Contains(rec.Topic, entry.Email) {
				entry.Link = rec.ShareLink
				matched++
				break
			}
		}
	}

	if err := r.WriteOutput(*outputPath); err != nil {
		return err
	}
	logger.Info().Int("matched", matched).Str("path", *outputPath).Msg("Wrote roster output")
	return nil
}

// newZoomClient performs a full authenticated login and returns an API
// client bound to the captured Zoom session. The browser closes before
// returning; the client talks to Zoom directly.
func newZoomClient(ctx context.Context) (*zoom.Client, error) {
	recordingsURL := config.Zoom.Origin + "/recording"

	d, userAgent, cleanup, err := authenticate(ctx, recordingsURL, recordingsURL)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	cookieHeader, err := browser.CookieString(ctx, d, recordingsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to read Zoom session cookies: %w", err)
	}

	// The session cookies are tied to the browser's identity; the API
	// client must present the same agent that earned them.
	opts := []zoom.ClientOption{
		zoom.WithOrigin(config.Zoom.Origin),
		zoom.WithLogger(logger),
		zoom.WithUserAgent(userAgent),
	}
	if config.Zoom.PageInterval > 0 {
		opts = append(opts, zoom.WithPageInterval(config.Zoom.PageInterval))
	}

	return zoom.NewClient(cookieHeader, opts...), nil
}
