package server

import (
	"time"

	"github.com/sjawhar/meetscribe/internal/ingest"
	"github.com/sjawhar/meetscribe/internal/session"
)

// Dashboard event types broadcast on /ws.
const (
	TypeConnection       = "connection"
	TypeMeetingStarted   = "meeting_started"
	TypePartialMerged    = "partial_merged"
	TypeMeetingFinalized = "meeting_finalized"
	TypeTaskFailed       = "task_failed"
)

type ConnectionEvent struct {
	ingest.Event
	Connected bool `json:"connected"`
}

type MeetingStartedEvent struct {
	ingest.Event
	MeetingID string `json:"meeting_id"`
}

type PartialMergedEvent struct {
	ingest.Event
	MeetingID string `json:"meeting_id"`
	ChunkID   int    `json:"chunk_id"`
	Text      string `json:"text"`
}

type MeetingFinalizedEvent struct {
	ingest.Event
	ReportView
}

type TaskFailedEvent struct {
	ingest.Event
	Task  string `json:"task"`
	Error string `json:"error"`
}

type StepView struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ReportView is the JSON form of a finalization report.
type ReportView struct {
	MeetingID  string     `json:"meeting_id"`
	Outcome    string     `json:"outcome"`
	Summary    string     `json:"summary,omitempty"`
	ReportPath string     `json:"report_path,omitempty"`
	ElapsedMS  int64      `json:"elapsed_ms"`
	Steps      []StepView `json:"steps"`
}

func newReportView(r session.Report) ReportView {
	steps := make([]StepView, 0, len(r.Steps))
	for _, s := range r.Steps {
		v := StepView{Name: s.Name, Status: string(s.Status), Detail: s.Detail}
		if s.Err != nil && s.Status == session.StatusFailed {
			v.Error = s.Err.Error()
		}
		steps = append(steps, v)
	}
	return ReportView{
		MeetingID:  r.MeetingID,
		Outcome:    string(r.Outcome()),
		Summary:    r.Summary,
		ReportPath: r.ReportPath,
		ElapsedMS:  r.Elapsed.Milliseconds(),
		Steps:      steps,
	}
}

func newEvent(eventType string) ingest.Event {
	return ingest.NewEvent(eventType, time.Now().UTC())
}
