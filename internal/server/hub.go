package server

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/sjawhar/meetscribe/internal/ingest"
	"github.com/sjawhar/meetscribe/internal/session"
)

// Hub fans dashboard events out to every /ws subscriber. Slow subscribers
// miss events rather than block the sender.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
}

var _ ingest.Listener = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{clients: make(map[chan []byte]struct{})}
}

func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *Hub) MeetingStarted(meetingID string) {
	h.broadcastEvent(MeetingStartedEvent{
		Event:     newEvent(TypeMeetingStarted),
		MeetingID: meetingID,
	})
}

func (h *Hub) PartialMerged(meetingID string, chunkID int, text string) {
	h.broadcastEvent(PartialMergedEvent{
		Event:     newEvent(TypePartialMerged),
		MeetingID: meetingID,
		ChunkID:   chunkID,
		Text:      text,
	})
}

func (h *Hub) MeetingFinalized(report session.Report) {
	h.broadcastEvent(MeetingFinalizedEvent{
		Event:      newEvent(TypeMeetingFinalized),
		ReportView: newReportView(report),
	})
}

// TaskFailed reports a failed background task. Successful tasks are not
// broadcast.
func (h *Hub) TaskFailed(name string, err error) {
	if err == nil {
		return
	}
	h.broadcastEvent(TaskFailedEvent{
		Event: newEvent(TypeTaskFailed),
		Task:  name,
		Error: err.Error(),
	})
}

func (h *Hub) broadcastEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("event marshal failed", "error", err)
		return
	}
	h.Broadcast(payload)
}
