package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sjawhar/meetscribe/internal/transcribe"
)

// ErrNotFound is returned when a meeting id has no record.
var ErrNotFound = errors.New("meeting not found")

// Meeting is the durable record for one meeting. Transcript only grows and
// Speakers is appended in arrival order.
type Meeting struct {
	ID         string                 `json:"meeting_id"`
	Title      string                 `json:"title"`
	Transcript string                 `json:"transcript"`
	Summary    string                 `json:"summary"`
	Speakers   []transcribe.Utterance `json:"speakers"`
	CreatedAt  time.Time              `json:"created_at"`
	FileName   string                 `json:"file_name,omitempty"`
	Duration   float64                `json:"duration,omitempty"`
}

// Listing is the short form returned by ListMeetings.
type Listing struct {
	ID        string    `json:"meeting_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	Summary   string    `json:"summary"`
}

// Store is implemented by SQLiteStore and PostgresStore.
type Store interface {
	MergePartial(ctx context.Context, id, title string, partial transcribe.Result) (Meeting, error)
	GetMeeting(ctx context.Context, id string) (Meeting, error)
	UpdateSummary(ctx context.Context, id, summary string) error
	SaveMeeting(ctx context.Context, m Meeting) error
	ListMeetings(ctx context.Context, limit int) ([]Listing, error)
	DeleteMeeting(ctx context.Context, id string) error
	Close() error
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// mergeTranscript appends partial to existing with one separating space.
func mergeTranscript(existing, partial string) string {
	if existing == "" {
		return partial
	}
	return strings.TrimSpace(existing + " " + partial)
}

func appendSpeakers(existing, partial []transcribe.Utterance) []transcribe.Utterance {
	out := make([]transcribe.Utterance, 0, len(existing)+len(partial))
	out = append(out, existing...)
	return append(out, partial...)
}

func speakersOrEmpty(s []transcribe.Utterance) []transcribe.Utterance {
	if s == nil {
		return []transcribe.Utterance{}
	}
	return s
}
