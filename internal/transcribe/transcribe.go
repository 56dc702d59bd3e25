// Package transcribe turns audio files into speaker-attributed utterances.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrTranscription wraps every failure reported by a transcription backend.
var ErrTranscription = errors.New("transcription failed")

// Utterance is one contiguous stretch of speech by a single speaker. Start and
// End are offsets in seconds from the beginning of the transcribed audio.
type Utterance struct {
	Speaker string  `json:"speaker"`
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// Result is the output of one transcription call.
type Result struct {
	Text       string
	Utterances []Utterance
}

// Empty reports whether the result carries no speech.
func (r Result) Empty() bool {
	return strings.TrimSpace(r.Text) == "" && len(r.Utterances) == 0
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, meetingID string) (Result, error)
}

type Options struct {
	Provider string
	APIKey   string
	Model    string
	Language string
	BaseURL  string
}

// New returns the backend named by opts.Provider.
func New(opts Options) (Transcriber, error) {
	switch opts.Provider {
	case "", "deepgram":
		return NewDeepgram(opts), nil
	case "openai":
		return NewWhisper(opts), nil
	default:
		return nil, fmt.Errorf("unknown transcription provider %q: supported providers are deepgram, openai", opts.Provider)
	}
}

// SpeakerLabel formats a zero-based diarization index.
func SpeakerLabel(index int) string {
	if index < 0 {
		return "Speaker ?"
	}
	return fmt.Sprintf("Speaker %d", index+1)
}

// NormalizeSpeakers collapses the labels to "Speaker 1" when only one
// distinct speaker is present. It returns a new slice.
func NormalizeSpeakers(utterances []Utterance) []Utterance {
	out := make([]Utterance, len(utterances))
	copy(out, utterances)

	distinct := make(map[string]struct{}, 4)
	for _, u := range out {
		distinct[u.Speaker] = struct{}{}
	}
	if len(distinct) == 1 {
		for i := range out {
			out[i].Speaker = SpeakerLabel(0)
		}
	}
	return out
}

// JoinText concatenates the utterance texts with single spaces.
func JoinText(utterances []Utterance) string {
	parts := make([]string, 0, len(utterances))
	for _, u := range utterances {
		if text := strings.TrimSpace(u.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// FormatLines renders utterances as "[speaker]: text" lines for prompts.
func FormatLines(utterances []Utterance) string {
	var b strings.Builder
	for _, u := range utterances {
		text := strings.TrimSpace(u.Text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "[%s]: %s\n", u.Speaker, text)
	}
	return strings.TrimRight(b.String(), "\n")
}
