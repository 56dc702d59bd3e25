package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sjawhar/meetscribe/internal/storage"
	"github.com/sjawhar/meetscribe/internal/transcribe"
)

func TestRenderWritesReportKeyedByMeeting(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	r := NewPDFRenderer(dir)
	r.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC) }

	var speakers []transcribe.Utterance
	for i := 0; i < 20; i++ {
		speakers = append(speakers, transcribe.Utterance{Speaker: transcribe.SpeakerLabel(i % 2), Text: fmt.Sprintf("line %d café", i)})
	}

	path, err := r.Render(storage.Meeting{
		ID:        "m1",
		Title:     "Streaming Meeting m1",
		Summary:   "1. Context\n- weekly sync\n\n2. Key Points Discussed\n- budget",
		Speakers:  speakers,
		CreatedAt: time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC),
		Duration:  95,
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if path != filepath.Join(dir, "m1_report.pdf") || path != r.Path("m1") {
		t.Fatalf("unexpected report path %q", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatalf("expected a PDF document, got prefix %q", data[:min(8, len(data))])
	}
}

func TestRenderWithoutSummaryOrSpeakers(t *testing.T) {
	r := NewPDFRenderer(t.TempDir())

	path, err := r.Render(storage.Meeting{ID: "empty", CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Fatalf("expected non-empty report file, stat err=%v", err)
	}
}

func TestRenderOverwritesExisting(t *testing.T) {
	r := NewPDFRenderer(t.TempDir())
	m := storage.Meeting{ID: "m2", Summary: "first", CreatedAt: time.Now()}

	if _, err := r.Render(m); err != nil {
		t.Fatalf("first render: %v", err)
	}
	m.Summary = "second, with a much longer body so the document size changes noticeably"
	if _, err := r.Render(m); err != nil {
		t.Fatalf("second render: %v", err)
	}
	entries, err := os.ReadDir(r.Dir())
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected a single report file, got %d", len(entries))
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "N/A"},
		{-3, "N/A"},
		{95, "1m35s"},
		{12.4, "12s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.seconds); got != tt.want {
			t.Fatalf("formatDuration(%v): expected %q, got %q", tt.seconds, tt.want, got)
		}
	}
}
