package zoom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// recordingPage is one page of the host recording list.
type recordingPage struct {
	Page         int             `json:"page"`
	PageSize     int             `json:"page_size"`
	TotalRecords int             `json:"total_records"`
	Recordings   []recordingItem `json:"recordings"`
}

type recordingItem struct {
	MeetingNumber json.Number `json:"meetingNumber"`
	MeetingID     string      `json:"meetingId"`
	CreateTime    string      `json:"createTime"`
	Topic         string      `json:"topic"`
}

// ListRecordings fetches every cloud recording owned by the session's
// user, walking the host list page by page in ascending order. A
// politeness delay applies between pages.
func (c *Client) ListRecordings(ctx context.Context) ([]Recording, error) {
	var recordings []Recording

	page := 1
	numPages := 1

	for page <= numPages {
		if page > 1 {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		result, err := c.Call(ctx, "/recording/host_list", hostListForm(page))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch recording list page %d: %w", page, err)
		}

		var pg recordingPage
		if err := json.Unmarshal(result, &pg); err != nil {
			return nil, fmt.Errorf("failed to parse recording list page %d: %w", page, err)
		}

		if page == 1 {
			if pg.PageSize > 0 {
				numPages = (pg.TotalRecords + pg.PageSize - 1) / pg.PageSize
			}
			c.logger.Info().
				Int("total_records", pg.TotalRecords).
				Int("pages", numPages).
				Msg("Fetching recording list")
		}

		for _, item := range pg.Recordings {
			recordings = append(recordings, Recording{
				MeetingRoomID: item.MeetingNumber.String(),
				MeetingID:     item.MeetingID,
				Timestamp:     normalizeCreateTime(item.CreateTime),
				Topic:         item.Topic,
			})
		}

		page++
	}

	return recordings, nil
}

func hostListForm(page int) url.Values {
	return url.Values{
		"from":               {""},
		"to":                 {""},
		"search_value":       {""},
		"transcript_keyword": {""},
		"search_type":        {"mixed"},
		"p":                  {strconv.Itoa(page)},
		"search_status":      {"0"},
		"assistant_host_id":  {""},
	}
}

// normalizeCreateTime converts Zoom's "2006-01-02 15:04:05" timestamps
// to ISO 8601. Unrecognized values pass through untouched.
func normalizeCreateTime(raw string) string {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(time.RFC3339)
		}
	}
	return raw
}

// shareInfoResult is the doubly encoded get_recordmeet_shareinfo
// payload. The envelope's result field holds a JSON string that itself
// contains JSON.
type shareInfoResult struct {
	EncryptMeetID string `json:"encryptMeetId"`
}

// RecordingShareInfo resolves the public share link for one recording.
// Setting the share password is Zoom's "ensure a share page exists"
// call; it is required even when no password is wanted (pass "").
func (c *Client) RecordingShareInfo(ctx context.Context, meetingID, passwd string) (*ShareInfo, error) {
	if _, err := c.Call(ctx, "/recording/update_meet_passwd", url.Values{
		"passwd": {passwd},
		"id":     {meetingID},
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize share page for %s: %w", meetingID, err)
	}

	result, err := c.Call(ctx, "/recording/get_recordmeet_shareinfo", url.Values{
		"meeting_id": {meetingID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch share info for %s: %w", meetingID, err)
	}

	var inner string
	if err := json.Unmarshal(result, &inner); err != nil {
		return nil, fmt.Errorf("failed to parse share info wrapper for %s: %w", meetingID, err)
	}

	var info shareInfoResult
	if err := json.Unmarshal([]byte(inner), &info); err != nil {
		return nil, fmt.Errorf("failed to parse share info for %s: %w", meetingID, err)
	}

	if info.EncryptMeetID == "" {
		return nil, &APIError{Message: "share info missing encrypted meeting id"}
	}

	return &ShareInfo{Link: c.origin + "/rec/share/" + info.EncryptMeetID}, nil
}

// ReauthFunc re-authenticates and returns a client bound to the fresh
// session.
type ReauthFunc func(ctx context.Context) (*Client, error)

// WithReauth runs fn and, if it fails with SessionExpiredError,
// re-authenticates exactly once and runs fn again against the new
// client. Any other error passes through.
func WithReauth(ctx context.Context, c *Client, reauth ReauthFunc, fn func(ctx context.Context, c *Client) error) error {
	err := fn(ctx, c)

	var expired *SessionExpiredError
	if !errors.As(err, &expired) {
		return err
	}

	c.logger.Warn().Msg("Zoom session expired, re-authenticating")

	fresh, rerr := reauth(ctx)
	if rerr != nil {
		return &ReauthError{Err: rerr}
	}

	return fn(ctx, fresh)
}
