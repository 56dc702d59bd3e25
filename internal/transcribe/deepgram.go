package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

var deepgramInit sync.Once

// Deepgram transcribes files with the prerecorded REST API, diarization on.
type Deepgram struct {
	client   *api.Client
	model    string
	language string
}

func NewDeepgram(opts Options) *Deepgram {
	deepgramInit.Do(func() {
		client.Init(client.InitLib{LogLevel: client.LogLevelDefault})
	})

	model := opts.Model
	if model == "" {
		model = "nova-2"
	}
	c := client.NewREST(opts.APIKey, &interfaces.ClientOptions{Host: opts.BaseURL})
	return &Deepgram{client: api.New(c), model: model, language: opts.Language}
}

func (d *Deepgram) Transcribe(ctx context.Context, audioPath, meetingID string) (Result, error) {
	res, err := d.client.FromFile(ctx, audioPath, &interfaces.PreRecordedTranscriptionOptions{
		Model:       d.model,
		Language:    d.language,
		Diarize:     true,
		Punctuate:   true,
		SmartFormat: true,
		Utterances:  true,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: deepgram meeting %s: %v", ErrTranscription, meetingID, err)
	}

	utterances := make([]Utterance, 0, len(res.Results.Utterances))
	for _, u := range res.Results.Utterances {
		speaker := -1
		if u.Speaker != nil {
			speaker = *u.Speaker
		}
		text := strings.TrimSpace(u.Transcript)
		if text == "" {
			continue
		}
		utterances = append(utterances, Utterance{
			Speaker: SpeakerLabel(speaker),
			Text:    text,
			Start:   u.Start,
			End:     u.End,
		})
	}

	// Responses without utterance grouping still carry diarized words.
	if len(utterances) == 0 && len(res.Results.Channels) > 0 && len(res.Results.Channels[0].Alternatives) > 0 {
		alt := res.Results.Channels[0].Alternatives[0]
		words := make([]Word, 0, len(alt.Words))
		for _, w := range alt.Words {
			punctuated := w.PunctuatedWord
			if punctuated == "" {
				punctuated = w.Word
			}
			words = append(words, Word{Speaker: w.Speaker, PunctuatedWord: punctuated, Start: w.Start, End: w.End})
		}
		utterances = GroupWordsBySpeaker(words)
	}

	utterances = NormalizeSpeakers(utterances)
	slog.Debug("deepgram transcription complete", "meeting_id", meetingID, "utterances", len(utterances))
	return Result{Text: JoinText(utterances), Utterances: utterances}, nil
}
