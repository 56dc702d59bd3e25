package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sjawhar/meetscribe/internal/audio"
	"github.com/sjawhar/meetscribe/internal/observe"
	"github.com/sjawhar/meetscribe/internal/transcribe"
)

// UploadTitle is the title given to records created by chunk uploads.
const UploadTitle = "Streaming Meeting"

type UploadResult struct {
	Success    bool                   `json:"success"`
	ChunkIndex int                    `json:"chunk_index"`
	Transcript string                 `json:"transcript"`
	Speakers   []transcribe.Utterance `json:"speakers"`
}

// Uploader transcribes one uploaded audio unit and merges it into the
// meeting record. It does not touch the live session registry, so an upload
// and a stream for the same meeting may interleave their merges in any order.
type Uploader struct {
	spool       *audio.Spool
	transcriber Transcriber
	store       Merger
	metrics     *observe.Metrics
}

func NewUploader(spool *audio.Spool, transcriber Transcriber, store Merger, metrics *observe.Metrics) *Uploader {
	return &Uploader{spool: spool, transcriber: transcriber, store: store, metrics: metrics}
}

func (u *Uploader) Upload(ctx context.Context, meetingID string, chunkIndex int, filename string, r io.Reader) (UploadResult, error) {
	path, err := u.spool.SaveUpload(fmt.Sprintf("upload_%s_%d", meetingID, chunkIndex), filename, r)
	if err != nil {
		return UploadResult{}, err
	}
	defer func() {
		if err := u.spool.Remove(path); err != nil {
			slog.Warn("upload cleanup failed", "path", path, "error", err)
		}
	}()

	started := time.Now()
	result, err := u.transcriber.Transcribe(ctx, path, meetingID)
	if u.metrics != nil {
		u.metrics.RecordGateway(ctx, "transcribe", time.Since(started), err)
	}
	if err != nil {
		return UploadResult{}, err
	}

	if _, err := u.store.MergePartial(ctx, meetingID, UploadTitle, result); err != nil {
		return UploadResult{}, fmt.Errorf("merge upload: %w", err)
	}

	speakers := result.Utterances
	if speakers == nil {
		speakers = []transcribe.Utterance{}
	}
	slog.Info("audio chunk merged", "meeting_id", meetingID, "chunk_index", chunkIndex, "utterances", len(speakers))
	return UploadResult{
		Success:    true,
		ChunkIndex: chunkIndex,
		Transcript: result.Text,
		Speakers:   speakers,
	}, nil
}
