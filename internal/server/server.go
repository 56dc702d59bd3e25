// Package server exposes the HTTP and websocket surface: live meeting
// streams, chunk uploads, meeting queries and the dashboard event feed.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sjawhar/meetscribe/internal/audio"
	"github.com/sjawhar/meetscribe/internal/ingest"
	"github.com/sjawhar/meetscribe/internal/observe"
	"github.com/sjawhar/meetscribe/internal/session"
	"github.com/sjawhar/meetscribe/internal/storage"
	"github.com/sjawhar/meetscribe/internal/transcribe"
	"github.com/sjawhar/meetscribe/internal/worker"
)

type MeetingStore interface {
	GetMeeting(ctx context.Context, id string) (storage.Meeting, error)
	SaveMeeting(ctx context.Context, m storage.Meeting) error
	ListMeetings(ctx context.Context, limit int) ([]storage.Listing, error)
	DeleteMeeting(ctx context.Context, id string) error
}

type Streamer interface {
	Serve(ctx context.Context, conn ingest.Conn, meetingID string) session.Report
}

type Uploader interface {
	Upload(ctx context.Context, meetingID string, chunkIndex int, filename string, r io.Reader) (ingest.UploadResult, error)
}

type Answerer interface {
	Ask(ctx context.Context, transcript string, speakers []transcribe.Utterance, question string) (answer, excerpt string, err error)
}

type ReportRenderer interface {
	session.Renderer
	Path(meetingID string) string
}

// Deps wires the handlers. Notifier, Metrics and MetricsHandler may be nil.
type Deps struct {
	Store       MeetingStore
	Registry    *session.Registry
	Stream      Streamer
	Uploader    Uploader
	Finalizer   ingest.Finalizer
	Transcriber ingest.Transcriber
	Summarizer  session.Summarizer
	Answerer    Answerer
	Renderer    ReportRenderer
	Notifier    session.Notifier
	Spool       *audio.Spool
	Pool        *worker.Pool
	Hub         *Hub

	Metrics        *observe.Metrics
	MetricsHandler http.Handler
	Warnings       []string
	Version        string
}

func Handler(deps Deps) http.Handler {
	if deps.Hub == nil {
		deps.Hub = NewHub()
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}

	mux := http.NewServeMux()
	registerWSRoutes(mux, deps)
	registerAPIRoutes(mux, deps)
	if deps.MetricsHandler != nil {
		mux.Handle("GET /metrics", deps.MetricsHandler)
	}

	if deps.Metrics == nil {
		return mux
	}
	return observe.Middleware(deps.Metrics)(mux)
}

// Serve listens on addr until ctx is done, then shuts down gracefully. Live
// streams are hijacked connections and are not waited for here; callers
// close them with ingest.Handler.Shutdown.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
