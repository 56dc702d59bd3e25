package ingest

import (
	"time"

	"github.com/sjawhar/meetscribe/internal/transcribe"
)

const EventVersion = 1

// Event types sent to a streaming client.
const (
	TypePartialTranscript = "partial_transcript"
	TypeHeartbeat         = "heartbeat"
	TypeError             = "error"
)

// Event is the envelope shared by every JSON message the service emits.
type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type PartialTranscriptEvent struct {
	Event
	ChunkID  int                    `json:"chunk_id"`
	Text     string                 `json:"text"`
	Speakers []transcribe.Utterance `json:"speakers"`
}

type HeartbeatEvent struct {
	Event
	ChunksReceived int     `json:"chunks_received"`
	Duration       float64 `json:"duration"`
}

type ErrorEvent struct {
	Event
	Message string `json:"message"`
}

func NewEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
