package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sjawhar/meetscribe/internal/session"
	"github.com/sjawhar/meetscribe/internal/storage"
	"github.com/sjawhar/meetscribe/internal/summary"
	"github.com/sjawhar/meetscribe/internal/transcribe"
	"github.com/sjawhar/meetscribe/internal/worker"
)

var meetingIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

const (
	maxUploadBytes   = 512 << 20
	maxMemoryBytes   = 32 << 20
	defaultListLimit = 10
	maxListLimit     = 100

	// secondsPerUtterance approximates a recording's duration when the
	// transcription backend reports none.
	secondsPerUtterance = 5
)

func registerAPIRoutes(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("POST /api/upload-audio/{meeting_id}", func(w http.ResponseWriter, r *http.Request) {
		meetingID := r.PathValue("meeting_id")
		if !validMeetingID(meetingID) {
			writeJSONError(w, http.StatusForbidden, "invalid meeting id")
			return
		}

		chunkIndex := 0
		if raw := r.URL.Query().Get("chunk_index"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeJSONError(w, http.StatusBadRequest, "invalid chunk_index")
				return
			}
			chunkIndex = n
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		file, header, err := r.FormFile("file")
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("read file: %v", err))
			return
		}
		defer func() { _ = file.Close() }()

		result, err := deps.Uploader.Upload(r.Context(), meetingID, chunkIndex, header.Filename, file)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("process chunk: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	mux.HandleFunc("POST /api/finalize-meeting/{id}", func(w http.ResponseWriter, r *http.Request) {
		meetingID := r.PathValue("id")
		if !validMeetingID(meetingID) {
			writeJSONError(w, http.StatusForbidden, "invalid meeting id")
			return
		}
		if _, active := deps.Registry.Get(meetingID); active {
			writeJSONError(w, http.StatusConflict, "meeting is still streaming")
			return
		}

		var report session.Report
		run := func(ctx context.Context) error {
			report = deps.Finalizer.Finalize(ctx, meetingID)
			return report.Err()
		}
		err := deps.Pool.Run(r.Context(), "finalize:"+meetingID, run)
		if report.MeetingID == "" {
			writeJSONError(w, http.StatusServiceUnavailable, fmt.Sprintf("finalize: %v", err))
			return
		}
		if report.Missing() {
			writeJSONError(w, http.StatusNotFound, "meeting not found")
			return
		}
		deps.Hub.MeetingFinalized(report)
		writeJSON(w, http.StatusOK, newReportView(report))
	})

	mux.HandleFunc("POST /api/transcribe", func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxMemoryBytes); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("parse form: %v", err))
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("read file: %v", err))
			return
		}
		defer func() { _ = file.Close() }()

		meetingID := uuid.NewString()
		path, err := deps.Spool.SaveUpload("full_"+meetingID, header.Filename, file)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("save upload: %v", err))
			return
		}
		defer func() { _ = deps.Spool.Remove(path) }()

		result, err := deps.Transcriber.Transcribe(r.Context(), path, meetingID)
		if err != nil {
			writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("transcribe: %v", err))
			return
		}

		text, err := deps.Summarizer.Summarize(r.Context(), meetingID, result.Text, result.Utterances)
		if err != nil && !errors.Is(err, summary.ErrEmptyTranscript) {
			writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("summarize: %v", err))
			return
		}

		title := strings.TrimSpace(r.FormValue("meeting_title"))
		if title == "" {
			title = header.Filename
		}
		speakers := result.Utterances
		if speakers == nil {
			speakers = []transcribe.Utterance{}
		}
		meeting := storage.Meeting{
			ID:         meetingID,
			Title:      title,
			Transcript: result.Text,
			Summary:    text,
			Speakers:   speakers,
			CreatedAt:  time.Now().UTC(),
			FileName:   header.Filename,
			Duration:   float64(len(speakers) * secondsPerUtterance),
		}
		if err := deps.Store.SaveMeeting(r.Context(), meeting); err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("save meeting: %v", err))
			return
		}

		if meeting.Summary != "" {
			if err := deps.Pool.Go("report:"+meetingID, publishReport(deps, meeting)); err != nil {
				slog.Warn("report task not scheduled", "meeting_id", meetingID, "error", err)
			}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"meeting_id": meeting.ID,
			"transcript": meeting.Transcript,
			"summary":    meeting.Summary,
			"speakers":   meeting.Speakers,
			"created_at": meeting.CreatedAt,
		})
	})

	mux.HandleFunc("POST /api/question", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			MeetingID string `json:"meeting_id"`
			Question  string `json:"question"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
			return
		}
		if !validMeetingID(req.MeetingID) {
			writeJSONError(w, http.StatusForbidden, "invalid meeting id")
			return
		}

		meeting, ok := loadMeeting(w, r, deps.Store, req.MeetingID)
		if !ok {
			return
		}

		answer, excerpt, err := deps.Answerer.Ask(r.Context(), meeting.Transcript, meeting.Speakers, req.Question)
		switch {
		case errors.Is(err, summary.ErrEmptyQuestion):
			writeJSONError(w, http.StatusBadRequest, "question is required")
			return
		case errors.Is(err, summary.ErrEmptyTranscript):
			writeJSONError(w, http.StatusBadRequest, "meeting has no transcript")
			return
		case err != nil:
			writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("answer question: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"answer": answer, "context": excerpt})
	})

	mux.HandleFunc("GET /api/meetings", func(w http.ResponseWriter, r *http.Request) {
		limit := defaultListLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeJSONError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = min(n, maxListLimit)
		}

		meetings, err := deps.Store.ListMeetings(r.Context(), limit)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list meetings: %v", err))
			return
		}
		if meetings == nil {
			meetings = []storage.Listing{}
		}
		writeJSON(w, http.StatusOK, meetings)
	})

	mux.HandleFunc("GET /api/meeting/{id}", func(w http.ResponseWriter, r *http.Request) {
		meetingID := r.PathValue("id")
		if !validMeetingID(meetingID) {
			writeJSONError(w, http.StatusForbidden, "invalid meeting id")
			return
		}
		meeting, ok := loadMeeting(w, r, deps.Store, meetingID)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, meeting)
	})

	mux.HandleFunc("DELETE /api/meeting/{id}", func(w http.ResponseWriter, r *http.Request) {
		meetingID := r.PathValue("id")
		if !validMeetingID(meetingID) {
			writeJSONError(w, http.StatusForbidden, "invalid meeting id")
			return
		}

		if err := deps.Store.DeleteMeeting(r.Context(), meetingID); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, storage.ErrNotFound) {
				status = http.StatusNotFound
			}
			writeJSONError(w, status, fmt.Sprintf("delete meeting: %v", err))
			return
		}
		if err := os.Remove(deps.Renderer.Path(meetingID)); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("report cleanup failed", "meeting_id", meetingID, "error", err)
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": meetingID})
	})

	mux.HandleFunc("GET /api/download/{id}", func(w http.ResponseWriter, r *http.Request) {
		meetingID := r.PathValue("id")
		if !validMeetingID(meetingID) {
			writeJSONError(w, http.StatusForbidden, "invalid meeting id")
			return
		}

		path := deps.Renderer.Path(meetingID)
		f, err := os.Open(path)
		if err != nil {
			writeJSONError(w, http.StatusNotFound, "report not found")
			return
		}
		defer func() { _ = f.Close() }()

		info, err := f.Stat()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("stat report: %v", err))
			return
		}

		name := filepath.Base(path)
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		http.ServeContent(w, r, name, info.ModTime(), f)
	})

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		warnings := deps.Warnings
		if warnings == nil {
			warnings = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"warnings":        warnings,
			"active_sessions": deps.Registry.Len(),
			"busy_workers":    deps.Pool.Busy(),
		})
	})
}

// publishReport renders and announces a meeting that already has its
// summary.
func publishReport(deps Deps, meeting storage.Meeting) worker.Task {
	return func(ctx context.Context) error {
		path, err := deps.Renderer.Render(meeting)
		if err != nil {
			return fmt.Errorf("render report: %w", err)
		}
		if deps.Notifier == nil {
			return nil
		}
		if err := deps.Notifier.Notify(ctx, meeting, path); err != nil {
			return fmt.Errorf("notify: %w", err)
		}
		return nil
	}
}

func loadMeeting(w http.ResponseWriter, r *http.Request, store MeetingStore, id string) (storage.Meeting, bool) {
	meeting, err := store.GetMeeting(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "meeting not found")
		} else {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get meeting: %v", err))
		}
		return storage.Meeting{}, false
	}
	return meeting, true
}

func validMeetingID(id string) bool {
	return meetingIDPattern.MatchString(id)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
