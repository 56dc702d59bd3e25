package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/sjawhar/meetscribe/internal/llm"
	"github.com/sjawhar/meetscribe/internal/transcribe"
)

// NoContext is returned as the context when no utterance matches the question.
const NoContext = "No specific context found"

const maxContextLines = 3

var ErrEmptyQuestion = errors.New("summary: question is empty")

const qaSystemPrompt = "You are an AI assistant answering questions about a meeting. " +
	"Use only the provided transcript to answer the user's question. " +
	"If the answer is not present, respond with 'Information not available in the transcript.'"

// Answerer answers free-form questions about a stored meeting transcript.
type Answerer struct {
	model   string
	factory ClientFactory
}

func NewAnswerer(model string, factory ClientFactory) *Answerer {
	return &Answerer{model: model, factory: factory}
}

// Ask returns the model's answer and up to three transcript lines that share
// a word with the question.
func (a *Answerer) Ask(ctx context.Context, transcript string, speakers []transcribe.Utterance, question string) (answer, excerpt string, err error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", "", ErrEmptyQuestion
	}
	if strings.TrimSpace(transcript) == "" && len(speakers) == 0 {
		return "", "", ErrEmptyTranscript
	}

	provider, model, err := llm.ParseModel(a.model)
	if err != nil {
		return "", "", err
	}
	client, err := a.factory(provider, model)
	if err != nil {
		return "", "", fmt.Errorf("create llm client: %w", err)
	}

	body := transcript
	if len(speakers) > 0 {
		body = transcribe.FormatLines(speakers)
	}

	answer, err = client.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: qaSystemPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Transcript:\n%s\n\nQuestion: %s", body, question)},
	})
	if err != nil {
		return "", "", fmt.Errorf("answer question: %w", err)
	}
	return answer, RelevantContext(speakers, question), nil
}

// RelevantContext returns the first utterances containing any word of the
// question, ignoring case and punctuation, formatted as "[speaker]: text" lines.
func RelevantContext(speakers []transcribe.Utterance, question string) string {
	words := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return NoContext
	}

	var matched []transcribe.Utterance
	for _, u := range speakers {
		text := strings.ToLower(u.Text)
		for _, w := range words {
			if strings.Contains(text, w) {
				matched = append(matched, u)
				break
			}
		}
		if len(matched) == maxContextLines {
			break
		}
	}
	if len(matched) == 0 {
		return NoContext
	}
	return transcribe.FormatLines(matched)
}
