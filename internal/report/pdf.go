package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/sjawhar/meetscribe/internal/storage"
)

// maxSpeakerLines caps the transcript excerpt printed in a report.
const maxSpeakerLines = 15

// PDFRenderer writes one PDF report per meeting into dir.
type PDFRenderer struct {
	dir string
	now func() time.Time
}

func NewPDFRenderer(dir string) *PDFRenderer {
	return &PDFRenderer{dir: dir, now: time.Now}
}

func (r *PDFRenderer) Dir() string {
	return r.dir
}

// Path is where the report for meetingID lives, whether or not it exists yet.
func (r *PDFRenderer) Path(meetingID string) string {
	return filepath.Join(r.dir, FileName(meetingID))
}

// FileName is the report file name for meetingID.
func FileName(meetingID string) string {
	return meetingID + "_report.pdf"
}

// Render writes the report for m and returns its path. An existing report for
// the same meeting is overwritten.
func (r *PDFRenderer) Render(m storage.Meeting) (string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}

	pdf := fpdf.New("P", "mm", "Letter", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	generated := r.now().Format("2006-01-02 15:04")

	pdf.SetTitle(tr("Meeting Report "+m.ID), false)
	pdf.SetMargins(18, 20, 18)
	pdf.SetAutoPageBreak(true, 20)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.SetTextColor(107, 114, 128)
		pdf.CellFormat(0, 10, tr("Generated by meetscribe - "+generated), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFillColor(37, 99, 235)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, tr("Meeting Report"), "", 1, "C", true, 0, "")

	pdf.SetFillColor(245, 245, 245)
	pdf.SetTextColor(31, 41, 55)
	pdf.SetFont("Helvetica", "", 10)
	colW := 0.0
	if w, _ := pdf.GetPageSize(); w > 0 {
		left, _, right, _ := pdf.GetMargins()
		colW = (w - left - right) / 3
	}
	pdf.CellFormat(colW, 9, tr("ID: "+m.ID), "1", 0, "L", true, 0, "")
	pdf.CellFormat(colW, 9, tr("Date: "+m.CreatedAt.Format("2006-01-02 15:04")), "1", 0, "L", true, 0, "")
	pdf.CellFormat(colW, 9, tr("Duration: "+formatDuration(m.Duration)), "1", 1, "L", true, 0, "")
	pdf.Ln(8)

	section(pdf, tr, "Meeting Summary")
	summary := strings.TrimSpace(m.Summary)
	if summary == "" {
		summary = "No summary available"
	}
	for _, line := range strings.Split(summary, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		pdf.MultiCell(0, 6, tr("- "+line), "", "L", false)
		pdf.Ln(1)
	}
	pdf.Ln(6)

	section(pdf, tr, "Speakers & Transcript")
	for i, u := range m.Speakers {
		if i == maxSpeakerLines {
			break
		}
		pdf.SetFont("Helvetica", "B", 11)
		pdf.Write(6, tr(u.Speaker+": "))
		pdf.SetFont("Helvetica", "", 11)
		pdf.Write(6, tr(u.Text))
		pdf.Ln(8)
	}

	path := r.Path(m.ID)
	if err := pdf.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("write report %s: %w", path, err)
	}
	return path, nil
}

func section(pdf *fpdf.Fpdf, tr func(string) string, title string) {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetTextColor(37, 99, 235)
	pdf.CellFormat(0, 9, tr(title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.SetTextColor(17, 24, 39)
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "N/A"
	}
	return (time.Duration(seconds * float64(time.Second))).Round(time.Second).String()
}
