// Package ingest drives live meeting audio from a connection into durable
// transcripts, and accepts one-off chunk uploads.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sjawhar/meetscribe/internal/audio"
	"github.com/sjawhar/meetscribe/internal/observe"
	"github.com/sjawhar/meetscribe/internal/session"
	"github.com/sjawhar/meetscribe/internal/storage"
	"github.com/sjawhar/meetscribe/internal/transcribe"
	"github.com/sjawhar/meetscribe/internal/worker"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024

	sendBuffer = 64
	flushQueue = 16
)

// Conn is the subset of *websocket.Conn used by a stream.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

// Transcriber turns one spooled audio file into text and utterances.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, meetingID string) (transcribe.Result, error)
}

// Merger appends a partial transcript to the meeting record.
type Merger interface {
	MergePartial(ctx context.Context, id, title string, partial transcribe.Result) (storage.Meeting, error)
}

// Finalizer runs the end-of-meeting workflow once the last connection leaves.
type Finalizer interface {
	Finalize(ctx context.Context, meetingID string) session.Report
}

// Listener receives lifecycle notifications, e.g. for a dashboard.
type Listener interface {
	MeetingStarted(meetingID string)
	PartialMerged(meetingID string, chunkID int, text string)
	MeetingFinalized(report session.Report)
}

// State is the lifecycle position of one streaming connection.
type State int32

const (
	StateOpen State = iota
	StateBuffering
	StateFlushing
	StateClosing
	StateFinalizing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateBuffering:
		return "buffering"
	case StateFlushing:
		return "flushing"
	case StateClosing:
		return "closing"
	case StateFinalizing:
		return "finalizing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Options sets the chunk counts that trigger flushes and heartbeats.
type Options struct {
	// FlushEvery transcribes the buffer whenever the chunk count is a multiple of it.
	FlushEvery int
	// HeartbeatEvery emits a heartbeat whenever the chunk count is a multiple of it.
	HeartbeatEvery int
}

// Deps are the collaborators of a Handler. Metrics, Listener and Pool may be nil.
type Deps struct {
	Registry    *session.Registry
	Spool       *audio.Spool
	Transcriber Transcriber
	Store       Merger
	Finalizer   Finalizer
	Pool        *worker.Pool
	Metrics     *observe.Metrics
	Listener    Listener
}

// Handler serves streaming connections and tracks them until they have
// finalized.
type Handler struct {
	Deps
	opts Options
	now  func() time.Time

	mu      sync.Mutex
	conns   map[Conn]struct{}
	closing bool
	active  sync.WaitGroup
}

func NewHandler(deps Deps, opts Options) *Handler {
	if opts.FlushEvery <= 0 {
		opts.FlushEvery = 10
	}
	if opts.HeartbeatEvery <= 0 {
		opts.HeartbeatEvery = 30
	}
	return &Handler{
		Deps:  deps,
		opts:  opts,
		now:   func() time.Time { return time.Now().UTC() },
		conns: make(map[Conn]struct{}),
	}
}

// Shutdown closes every open stream and waits until each one has finalized
// its meeting, or until ctx is done. Streams arriving afterwards are refused.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	open := len(h.conns)
	for conn := range h.conns {
		_ = conn.Close()
	}
	h.mu.Unlock()

	if open > 0 {
		slog.Info("closing live streams", "streams", open)
	}

	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for streams to finalize: %w", ctx.Err())
	}
}

func (h *Handler) track(conn Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.conns[conn] = struct{}{}
	h.active.Add(1)
	return true
}

func (h *Handler) untrack(conn Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	h.active.Done()
}

// StreamTitle is the title given to records created by a live stream.
func StreamTitle(meetingID string) string {
	return "Streaming Meeting " + meetingID
}

// Serve runs one streaming connection for meetingID until it disconnects.
// Connections for the same meeting share its session; the last one to leave
// finalizes the meeting and releases the session, returning the finalization
// report. Earlier leavers return a report with no steps.
//
// Gateway and store calls use a context detached from ctx's cancellation so
// a flush in flight at disconnect still completes before finalization reads
// the record.
func (h *Handler) Serve(ctx context.Context, conn Conn, meetingID string) session.Report {
	if !h.track(conn) {
		slog.Warn("stream refused, shutting down", "meeting_id", meetingID)
		_ = conn.Close()
		return session.Report{MeetingID: meetingID}
	}
	defer h.untrack(conn)

	work := context.WithoutCancel(ctx)

	sess, created := h.Registry.Acquire(meetingID)
	if created && h.Listener != nil {
		h.Listener.MeetingStarted(meetingID)
	}
	if h.Metrics != nil {
		h.Metrics.SessionOpened(work)
		defer h.Metrics.SessionClosed(work)
	}

	s := &stream{
		h:          h,
		conn:       conn,
		sess:       sess,
		id:         meetingID,
		out:        make(chan []byte, sendBuffer),
		writerDone: make(chan struct{}),
		flushes:    make(chan int, flushQueue),
	}
	s.setState(StateOpen)
	slog.Info("stream opened", "meeting_id", meetingID, "resumed", !created)

	go s.writePump()

	flusherDone := make(chan struct{})
	go func() {
		defer close(flusherDone)
		for upTo := range s.flushes {
			s.flush(work, upTo)
		}
	}()

	s.setState(StateBuffering)
	s.readLoop(work)

	s.setState(StateClosing)
	close(s.flushes)
	<-flusherDone
	close(s.out)
	<-s.writerDone

	if !h.Registry.Detach(sess) {
		s.setState(StateClosed)
		slog.Info("stream closed, meeting continues on another connection",
			"meeting_id", meetingID,
			"chunks", sess.Count(),
		)
		return session.Report{MeetingID: meetingID}
	}

	s.setState(StateFinalizing)
	report := h.finalize(work, meetingID)
	if !h.Registry.Release(sess) {
		slog.Info("meeting reconnected during finalization", "meeting_id", meetingID)
	}
	s.setState(StateClosed)

	slog.Info("stream closed",
		"meeting_id", meetingID,
		"chunks", sess.Count(),
		"unflushed", sess.Buffered(),
		"finalize", report.Outcome(),
		"elapsed", report.Elapsed,
	)
	return report
}

func (h *Handler) finalize(ctx context.Context, meetingID string) session.Report {
	var report session.Report
	run := func(ctx context.Context) error {
		report = h.Finalizer.Finalize(ctx, meetingID)
		return report.Err()
	}

	var err error
	if h.Pool != nil {
		err = h.Pool.Run(ctx, "finalize:"+meetingID, run)
		if errors.Is(err, worker.ErrClosed) {
			err = run(ctx)
		}
	} else {
		err = run(ctx)
	}
	if err != nil && report.MeetingID == "" {
		report = session.Report{
			MeetingID: meetingID,
			Steps:     []session.StepResult{{Name: session.StepLoad, Status: session.StatusFailed, Err: err}},
		}
	}

	if h.Metrics != nil {
		h.Metrics.RecordFinalization(ctx, string(report.Outcome()), report.Elapsed)
	}
	if h.Listener != nil {
		h.Listener.MeetingFinalized(report)
	}
	return report
}

type stream struct {
	h     *Handler
	conn  Conn
	sess  *session.Session
	id    string
	state atomic.Int32

	out        chan []byte
	writerDone chan struct{}
	flushes    chan int
}

func (s *stream) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	slog.Debug("stream state", "meeting_id", s.id, "from", prev, "to", st)
}

// transition moves between from and to only when the stream is still in from.
func (s *stream) transition(from, to State) {
	if s.state.CompareAndSwap(int32(from), int32(to)) {
		slog.Debug("stream state", "meeting_id", s.id, "from", from, "to", to)
	}
}

func (s *stream) readLoop(ctx context.Context) {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				slog.Warn("stream read failed", "meeting_id", s.id, "error", err)
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		if messageType != websocket.BinaryMessage && messageType != websocket.TextMessage {
			continue
		}
		s.handleChunk(ctx, data)
	}
}

func (s *stream) handleChunk(ctx context.Context, data []byte) {
	count, ok := s.sess.Append(data)
	if !ok {
		return
	}
	if s.h.Metrics != nil {
		s.h.Metrics.RecordChunk(ctx)
	}

	if count%s.h.opts.FlushEvery == 0 {
		select {
		case s.flushes <- count:
		default:
			slog.Warn("flush queue full, chunks stay buffered", "meeting_id", s.id, "chunk", count)
		}
	}
	if count%s.h.opts.HeartbeatEvery == 0 {
		s.send(HeartbeatEvent{
			Event:          NewEvent(TypeHeartbeat, s.h.now()),
			ChunksReceived: count,
			Duration:       s.h.now().Sub(s.sess.StartedAt).Seconds(),
		})
	}
}

// flush transcribes the buffered chunks up to upTo and merges the result.
// On failure the chunks stay buffered for the next trigger.
func (s *stream) flush(ctx context.Context, upTo int) {
	var (
		result  transcribe.Result
		started time.Time
	)
	ran, err := s.sess.Flush(upTo, func(chunks [][]byte) error {
		s.transition(StateBuffering, StateFlushing)
		started = time.Now()
		var err error
		result, err = s.transcribeAndMerge(ctx, upTo, chunks)
		return err
	})
	if !ran {
		return
	}
	defer s.transition(StateFlushing, StateBuffering)

	if s.h.Metrics != nil {
		s.h.Metrics.RecordFlush(ctx, time.Since(started), err)
	}
	if err != nil {
		slog.Error("flush failed", "meeting_id", s.id, "chunk", upTo, "buffered", s.sess.Buffered(), "error", err)
		s.send(ErrorEvent{
			Event:   NewEvent(TypeError, s.h.now()),
			Message: "Transcription error: " + err.Error(),
		})
		return
	}

	speakers := result.Utterances
	if speakers == nil {
		speakers = []transcribe.Utterance{}
	}
	s.send(PartialTranscriptEvent{
		Event:    NewEvent(TypePartialTranscript, s.h.now()),
		ChunkID:  upTo,
		Text:     result.Text,
		Speakers: speakers,
	})

	if s.h.Listener != nil {
		s.h.Listener.PartialMerged(s.id, upTo, result.Text)
	}
	slog.Debug("flush merged", "meeting_id", s.id, "chunk", upTo, "utterances", len(speakers))
}

func (s *stream) transcribeAndMerge(ctx context.Context, upTo int, chunks [][]byte) (transcribe.Result, error) {
	path, err := s.h.Spool.WriteStream(s.id, upTo, chunks)
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("spool audio: %w", err)
	}
	defer func() {
		if err := s.h.Spool.Remove(path); err != nil {
			slog.Warn("spool cleanup failed", "path", path, "error", err)
		}
	}()

	started := time.Now()
	result, err := s.h.Transcriber.Transcribe(ctx, path, s.id)
	if s.h.Metrics != nil {
		s.h.Metrics.RecordGateway(ctx, "transcribe", time.Since(started), err)
	}
	if err != nil {
		return transcribe.Result{}, err
	}

	if _, err := s.h.Store.MergePartial(ctx, s.id, StreamTitle(s.id), result); err != nil {
		return transcribe.Result{}, fmt.Errorf("merge partial: %w", err)
	}
	return result, nil
}

// send queues an event for the write pump. Events are dropped once the pump
// has stopped.
func (s *stream) send(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("event marshal failed", "meeting_id", s.id, "error", err)
		return
	}
	select {
	case s.out <- payload:
	case <-s.writerDone:
	}
}

func (s *stream) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
		close(s.writerDone)
	}()

	for {
		select {
		case msg, ok := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				slog.Debug("stream write failed", "meeting_id", s.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
