package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sjawhar/meetscribe/internal/storage"
	"github.com/sjawhar/meetscribe/internal/transcribe"
)

// Store reads the meeting record and saves its summary.
type Store interface {
	GetMeeting(ctx context.Context, id string) (storage.Meeting, error)
	UpdateSummary(ctx context.Context, id, summary string) error
}

type Summarizer interface {
	Summarize(ctx context.Context, meetingID, transcript string, speakers []transcribe.Utterance) (string, error)
}

// Renderer writes the report artifact and returns its path.
type Renderer interface {
	Render(m storage.Meeting) (string, error)
}

type Archiver interface {
	Archive(ctx context.Context, localPath, name string) error
}

type Notifier interface {
	Notify(ctx context.Context, m storage.Meeting, reportPath string) error
}

const (
	StepLoad      = "load"
	StepSummarize = "summarize"
	StepPersist   = "persist"
	StepRender    = "render"
	StepArchive   = "archive"
	StepNotify    = "notify"
)

type StepStatus string

const (
	StatusOK      StepStatus = "ok"
	StatusSkipped StepStatus = "skipped"
	StatusFailed  StepStatus = "failed"
)

type StepResult struct {
	Name   string     `json:"name"`
	Status StepStatus `json:"status"`
	Err    error      `json:"-"`
	Detail string     `json:"detail,omitempty"`
}

// Report is the outcome of one finalization run, one entry per step in
// execution order.
type Report struct {
	MeetingID  string        `json:"meeting_id"`
	Steps      []StepResult  `json:"steps"`
	Summary    string        `json:"summary,omitempty"`
	ReportPath string        `json:"report_path,omitempty"`
	Elapsed    time.Duration `json:"-"`
}

func (r Report) Step(name string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepResult{}, false
}

// Missing reports whether finalization found no record for the meeting.
func (r Report) Missing() bool {
	s, ok := r.Step(StepLoad)
	return ok && errors.Is(s.Err, ErrNoMeeting)
}

// Err joins the errors of failed steps.
func (r Report) Err() error {
	var errs []error
	for _, s := range r.Steps {
		if s.Status == StatusFailed {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, s.Err))
		}
	}
	return errors.Join(errs...)
}

// Outcome summarizes the report as ok, skipped or failed.
func (r Report) Outcome() StepStatus {
	if r.Err() != nil {
		return StatusFailed
	}
	for _, s := range r.Steps {
		if s.Status == StatusOK {
			return StatusOK
		}
	}
	return StatusSkipped
}

// Finalizer runs the end-of-meeting workflow: summarize, persist the summary,
// render the report, archive it and notify. Archive and notify are optional
// and their failures never undo earlier steps.
type Finalizer struct {
	store      Store
	summarizer Summarizer
	renderer   Renderer
	archiver   Archiver
	notifier   Notifier
}

func NewFinalizer(store Store, summarizer Summarizer, renderer Renderer, archiver Archiver, notifier Notifier) *Finalizer {
	return &Finalizer{
		store:      store,
		summarizer: summarizer,
		renderer:   renderer,
		archiver:   archiver,
		notifier:   notifier,
	}
}

func (f *Finalizer) Finalize(ctx context.Context, meetingID string) (report Report) {
	started := time.Now()
	report = Report{MeetingID: meetingID}
	defer func() {
		report.Elapsed = time.Since(started)
	}()

	record := func(name string, status StepStatus, err error, detail string) {
		report.Steps = append(report.Steps, StepResult{Name: name, Status: status, Err: err, Detail: detail})
		switch status {
		case StatusFailed:
			slog.Error("finalize step failed", "meeting_id", meetingID, "step", name, "error", err)
		default:
			slog.Debug("finalize step", "meeting_id", meetingID, "step", name, "status", status, "detail", detail)
		}
	}
	skipRest := func(reason string, steps ...string) {
		for _, name := range steps {
			record(name, StatusSkipped, nil, reason)
		}
	}

	meeting, err := f.store.GetMeeting(ctx, meetingID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			record(StepLoad, StatusSkipped, ErrNoMeeting, "no record")
			return report
		}
		record(StepLoad, StatusFailed, err, "")
		skipRest("record unavailable", StepSummarize, StepPersist, StepRender, StepArchive, StepNotify)
		return report
	}
	record(StepLoad, StatusOK, nil, "")

	if strings.TrimSpace(meeting.Transcript) == "" {
		skipRest("empty transcript", StepSummarize, StepPersist, StepRender, StepArchive, StepNotify)
		return report
	}

	summary, err := f.summarizer.Summarize(ctx, meetingID, meeting.Transcript, meeting.Speakers)
	if err != nil {
		record(StepSummarize, StatusFailed, err, "")
		skipRest("no summary", StepPersist, StepRender, StepArchive, StepNotify)
		return report
	}
	record(StepSummarize, StatusOK, nil, "")
	report.Summary = summary
	meeting.Summary = summary

	if err := f.store.UpdateSummary(ctx, meetingID, summary); err != nil {
		record(StepPersist, StatusFailed, err, "")
		skipRest("summary not persisted", StepRender, StepArchive, StepNotify)
		return report
	}
	record(StepPersist, StatusOK, nil, "")

	path, err := f.renderer.Render(meeting)
	if err != nil {
		record(StepRender, StatusFailed, err, "")
		skipRest("no report artifact", StepArchive, StepNotify)
		return report
	}
	record(StepRender, StatusOK, nil, path)
	report.ReportPath = path

	if f.archiver == nil {
		record(StepArchive, StatusSkipped, nil, "not configured")
	} else if err := f.archiver.Archive(ctx, path, meetingID+"_report.pdf"); err != nil {
		record(StepArchive, StatusFailed, err, "")
	} else {
		record(StepArchive, StatusOK, nil, "")
	}

	if f.notifier == nil {
		record(StepNotify, StatusSkipped, nil, "not configured")
	} else if err := f.notifier.Notify(ctx, meeting, path); err != nil {
		record(StepNotify, StatusFailed, err, "")
	} else {
		record(StepNotify, StatusOK, nil, "")
	}

	return report
}
