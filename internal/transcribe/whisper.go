package transcribe

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Whisper transcribes through the OpenAI audio API. It does not diarize, so
// every utterance is attributed to a single speaker.
type Whisper struct {
	client   *openai.Client
	model    string
	language string
}

func NewWhisper(opts Options) *Whisper {
	config := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		config.BaseURL = opts.BaseURL
	}
	model := opts.Model
	if model == "" || model == "nova-2" {
		model = openai.Whisper1
	}
	return &Whisper{client: openai.NewClientWithConfig(config), model: model, language: opts.Language}
}

func (w *Whisper) Transcribe(ctx context.Context, audioPath, meetingID string) (Result, error) {
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: audioPath,
		Language: w.language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: whisper meeting %s: %v", ErrTranscription, meetingID, err)
	}

	utterances := make([]Utterance, 0, len(resp.Segments))
	for _, seg := range resp.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		utterances = append(utterances, Utterance{
			Speaker: SpeakerLabel(0),
			Text:    text,
			Start:   seg.Start,
			End:     seg.End,
		})
	}

	text := strings.TrimSpace(resp.Text)
	if len(utterances) == 0 && text != "" {
		utterances = append(utterances, Utterance{Speaker: SpeakerLabel(0), Text: text})
	}
	if text == "" {
		text = JoinText(utterances)
	}
	return Result{Text: text, Utterances: utterances}, nil
}
