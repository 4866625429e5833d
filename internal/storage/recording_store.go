package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/okzoomer/okzoomer/internal/zoom"
)

// StoredRecording is one recording row keyed by its meeting id, with
// the resolved share link once known. ShareLink empty means the link
// still needs resolving.
type StoredRecording struct {
	MeetingID     string `badgerhold:"key"`
	MeetingRoomID string
	Topic         string
	Timestamp     string
	ShareLink     string
	RunID         string
	CreatedAt     int64
	UpdatedAt     int64
}

// RecordingStore reads and writes recording rows
type RecordingStore struct {
	db     *DB
	logger arbor.ILogger
}

// NewRecordingStore creates a new RecordingStore instance
func NewRecordingStore(db *DB, logger arbor.ILogger) *RecordingStore {
	return &RecordingStore{
		db:     db,
		logger: logger,
	}
}

// UpsertRecording stores a recording from the host list. An existing
// row keeps its resolved share link; only the listing fields refresh.
func (s *RecordingStore) UpsertRecording(ctx context.Context, rec zoom.Recording, runID string) error {
	if rec.MeetingID == "" {
		return fmt.Errorf("recording meeting ID is required")
	}

	now := time.Now().Unix()

	var existing StoredRecording
	err := s.db.Store().Get(rec.MeetingID, &existing)
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to look up recording %s: %w", rec.MeetingID, err)
	}

	row := StoredRecording{
		MeetingID:     rec.MeetingID,
		MeetingRoomID: rec.MeetingRoomID,
		Topic:         rec.Topic,
		Timestamp:     rec.Timestamp,
		RunID:         runID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err == nil {
		row.ShareLink = existing.ShareLink
		row.CreatedAt = existing.CreatedAt
	}

	if err := s.db.Store().Upsert(rec.MeetingID, &row); err != nil {
		return fmt.Errorf("failed to store recording %s: %w", rec.MeetingID, err)
	}
	return nil
}

// SetShareLink records the resolved share link for a recording
func (s *RecordingStore) SetShareLink(ctx context.Context, meetingID, link string) error {
	var row StoredRecording
	if err := s.db.Store().Get(meetingID, &row); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("recording not found: %s", meetingID)
		}
		return fmt.Errorf("failed to get recording %s: %w", meetingID, err)
	}

	row.ShareLink = link
	row.UpdatedAt = time.Now().Unix()

	if err := s.db.Store().Update(meetingID, &row); err != nil {
		return fmt.Errorf("failed to update recording %s: %w", meetingID, err)
	}
	return nil
}

// ListUnresolved returns recordings whose share link is still unknown
func (s *RecordingStore) ListUnresolved(ctx context.Context) ([]StoredRecording, error) {
	var rows []StoredRecording
	if err := s.db.Store().Find(&rows, badgerhold.Where("ShareLink").Eq("")); err != nil {
		return nil, fmt.Errorf("failed to list unresolved recordings: %w", err)
	}
	return rows, nil
}

// ListAll returns every stored recording
func (s *RecordingStore) ListAll(ctx context.Context) ([]StoredRecording, error) {
	var rows []StoredRecording
	if err := s.db.Store().Find(&rows, nil); err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	return rows, nil
}
