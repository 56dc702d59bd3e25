package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sjawhar/meetscribe/internal/storage"
	"github.com/sjawhar/meetscribe/internal/transcribe"
)

type storeMock struct {
	mu       sync.Mutex
	meetings map[string]storage.Meeting

	getErr    error
	updateErr error
}

func newStoreMock(meetings ...storage.Meeting) *storeMock {
	s := &storeMock{meetings: map[string]storage.Meeting{}}
	for _, m := range meetings {
		s.meetings[m.ID] = m
	}
	return s
}

func (s *storeMock) GetMeeting(_ context.Context, id string) (storage.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return storage.Meeting{}, s.getErr
	}
	m, ok := s.meetings[id]
	if !ok {
		return storage.Meeting{}, storage.ErrNotFound
	}
	return m, nil
}

func (s *storeMock) UpdateSummary(_ context.Context, id, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	m, ok := s.meetings[id]
	if !ok {
		return storage.ErrNotFound
	}
	m.Summary = summary
	s.meetings[id] = m
	return nil
}

type summarizerMock struct {
	calls int
	err   error
}

func (s *summarizerMock) Summarize(_ context.Context, meetingID, transcript string, _ []transcribe.Utterance) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return "summary of " + meetingID + ": " + transcript, nil
}

type rendererMock struct {
	calls   int
	err     error
	summary string
}

func (r *rendererMock) Render(m storage.Meeting) (string, error) {
	r.calls++
	r.summary = m.Summary
	if r.err != nil {
		return "", r.err
	}
	return "reports/" + m.ID + "_report.pdf", nil
}

type archiverMock struct {
	calls int
	name  string
	err   error
}

func (a *archiverMock) Archive(_ context.Context, _, name string) error {
	a.calls++
	a.name = name
	return a.err
}

type notifierMock struct {
	calls int
	path  string
	err   error
}

func (n *notifierMock) Notify(_ context.Context, _ storage.Meeting, reportPath string) error {
	n.calls++
	n.path = reportPath
	return n.err
}

func stepStatus(t *testing.T, r Report, name string) StepStatus {
	t.Helper()
	s, ok := r.Step(name)
	if !ok {
		t.Fatalf("step %q missing from report %+v", name, r.Steps)
	}
	return s.Status
}

func TestFinalizeHappyPath(t *testing.T) {
	store := newStoreMock(storage.Meeting{ID: "m1", Transcript: "we agreed to ship"})
	summarizer := &summarizerMock{}
	renderer := &rendererMock{}
	archiver := &archiverMock{}
	notifier := &notifierMock{}

	report := NewFinalizer(store, summarizer, renderer, archiver, notifier).Finalize(context.Background(), "m1")

	if err := report.Err(); err != nil {
		t.Fatalf("expected no failures, got %v", err)
	}
	if report.Outcome() != StatusOK {
		t.Fatalf("expected ok outcome, got %s", report.Outcome())
	}
	for _, name := range []string{StepLoad, StepSummarize, StepPersist, StepRender, StepArchive, StepNotify} {
		if got := stepStatus(t, report, name); got != StatusOK {
			t.Fatalf("step %s: expected ok, got %s", name, got)
		}
	}
	if report.ReportPath != "reports/m1_report.pdf" {
		t.Fatalf("unexpected report path %q", report.ReportPath)
	}
	if store.meetings["m1"].Summary != "summary of m1: we agreed to ship" {
		t.Fatalf("expected summary persisted, got %q", store.meetings["m1"].Summary)
	}
	if renderer.summary == "" {
		t.Fatal("expected renderer to receive the summary")
	}
	if archiver.name != "m1_report.pdf" {
		t.Fatalf("unexpected archive name %q", archiver.name)
	}
	if notifier.path != report.ReportPath {
		t.Fatalf("expected notifier to get artifact path, got %q", notifier.path)
	}
}

func TestFinalizeMissingRecordIsNoop(t *testing.T) {
	summarizer := &summarizerMock{}
	renderer := &rendererMock{}

	report := NewFinalizer(newStoreMock(), summarizer, renderer, nil, nil).Finalize(context.Background(), "ghost")

	if !report.Missing() {
		t.Fatalf("expected missing report, got %+v", report.Steps)
	}
	if len(report.Steps) != 1 {
		t.Fatalf("expected only the load step, got %+v", report.Steps)
	}
	if report.Err() != nil {
		t.Fatalf("missing record should not be a failure, got %v", report.Err())
	}
	if summarizer.calls != 0 || renderer.calls != 0 {
		t.Fatal("expected no downstream calls")
	}
}

func TestFinalizeEmptyTranscriptSkipsEverything(t *testing.T) {
	store := newStoreMock(storage.Meeting{ID: "m1", Transcript: "   \n\t"})
	summarizer := &summarizerMock{}
	renderer := &rendererMock{}
	notifier := &notifierMock{}

	report := NewFinalizer(store, summarizer, renderer, nil, notifier).Finalize(context.Background(), "m1")

	if summarizer.calls != 0 || renderer.calls != 0 || notifier.calls != 0 {
		t.Fatalf("expected no gateway calls, got summarize=%d render=%d notify=%d", summarizer.calls, renderer.calls, notifier.calls)
	}
	if stepStatus(t, report, StepSummarize) != StatusSkipped || stepStatus(t, report, StepNotify) != StatusSkipped {
		t.Fatalf("expected skipped steps, got %+v", report.Steps)
	}
	if store.meetings["m1"].Summary != "" {
		t.Fatal("expected summary untouched")
	}
	if report.Outcome() != StatusOK {
		t.Fatalf("load succeeded so outcome should be ok, got %s", report.Outcome())
	}
}

func TestFinalizeSummarizeFailureSkipsDownstream(t *testing.T) {
	store := newStoreMock(storage.Meeting{ID: "m1", Transcript: "hello"})
	renderer := &rendererMock{}
	notifier := &notifierMock{}

	report := NewFinalizer(store, &summarizerMock{err: errors.New("llm down")}, renderer, nil, notifier).Finalize(context.Background(), "m1")

	if stepStatus(t, report, StepSummarize) != StatusFailed {
		t.Fatalf("expected summarize failed, got %+v", report.Steps)
	}
	if renderer.calls != 0 || notifier.calls != 0 {
		t.Fatal("expected render and notify to be skipped")
	}
	if report.Err() == nil || report.Outcome() != StatusFailed {
		t.Fatal("expected failed outcome")
	}
}

func TestFinalizePersistFailureSkipsRender(t *testing.T) {
	store := newStoreMock(storage.Meeting{ID: "m1", Transcript: "hello"})
	store.updateErr = errors.New("disk full")
	renderer := &rendererMock{}

	report := NewFinalizer(store, &summarizerMock{}, renderer, nil, nil).Finalize(context.Background(), "m1")

	if stepStatus(t, report, StepPersist) != StatusFailed {
		t.Fatalf("expected persist failed, got %+v", report.Steps)
	}
	if renderer.calls != 0 {
		t.Fatal("expected render skipped")
	}
}

func TestFinalizeRenderFailureSkipsNotify(t *testing.T) {
	store := newStoreMock(storage.Meeting{ID: "m1", Transcript: "hello"})
	notifier := &notifierMock{}

	report := NewFinalizer(store, &summarizerMock{}, &rendererMock{err: errors.New("no font")}, nil, notifier).Finalize(context.Background(), "m1")

	if stepStatus(t, report, StepRender) != StatusFailed || stepStatus(t, report, StepNotify) != StatusSkipped {
		t.Fatalf("unexpected steps %+v", report.Steps)
	}
	if notifier.calls != 0 {
		t.Fatal("expected notifier not called")
	}
	if store.meetings["m1"].Summary == "" {
		t.Fatal("expected summary to stay persisted")
	}
}

func TestFinalizeNotifyFailureDoesNotUndoReport(t *testing.T) {
	store := newStoreMock(storage.Meeting{ID: "m1", Transcript: "hello"})
	archiver := &archiverMock{err: errors.New("drive quota")}
	notifier := &notifierMock{err: errors.New("webhook 500")}

	report := NewFinalizer(store, &summarizerMock{}, &rendererMock{}, archiver, notifier).Finalize(context.Background(), "m1")

	if stepStatus(t, report, StepRender) != StatusOK {
		t.Fatal("expected render ok")
	}
	if stepStatus(t, report, StepArchive) != StatusFailed || stepStatus(t, report, StepNotify) != StatusFailed {
		t.Fatalf("expected archive and notify failed, got %+v", report.Steps)
	}
	if notifier.calls != 1 {
		t.Fatal("expected notify attempted despite archive failure")
	}
	if report.ReportPath == "" || store.meetings["m1"].Summary == "" {
		t.Fatal("expected artifact and summary kept")
	}
}

func TestFinalizeUnconfiguredOptionalSteps(t *testing.T) {
	store := newStoreMock(storage.Meeting{ID: "m1", Transcript: "hello"})

	report := NewFinalizer(store, &summarizerMock{}, &rendererMock{}, nil, nil).Finalize(context.Background(), "m1")

	if stepStatus(t, report, StepArchive) != StatusSkipped || stepStatus(t, report, StepNotify) != StatusSkipped {
		t.Fatalf("expected optional steps skipped, got %+v", report.Steps)
	}
	if report.Err() != nil {
		t.Fatalf("expected no errors, got %v", report.Err())
	}
}

func TestFinalizeLoadErrorFails(t *testing.T) {
	store := newStoreMock()
	store.getErr = errors.New("database locked")

	report := NewFinalizer(store, &summarizerMock{}, &rendererMock{}, nil, nil).Finalize(context.Background(), "m1")

	if stepStatus(t, report, StepLoad) != StatusFailed {
		t.Fatalf("expected load failed, got %+v", report.Steps)
	}
	if report.Missing() {
		t.Fatal("a load error is not a missing record")
	}
	if len(report.Steps) != 6 {
		t.Fatalf("expected every step recorded, got %d", len(report.Steps))
	}
}
