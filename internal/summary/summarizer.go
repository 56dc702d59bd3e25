package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sjawhar/meetscribe/internal/config"
	"github.com/sjawhar/meetscribe/internal/llm"
	"github.com/sjawhar/meetscribe/internal/transcribe"
)

// ErrEmptyTranscript is returned when there is nothing to summarize.
var ErrEmptyTranscript = errors.New("summary: transcript is empty")

type ClientFactory func(provider, model string) (llm.Client, error)

type Summarizer struct {
	cfg     config.Summarization
	factory ClientFactory
	router  *Router
	sleep   func(time.Duration)
	now     func() time.Time
}

func New(cfg config.Summarization, factory ClientFactory) *Summarizer {
	if len(cfg.Presets) == 0 {
		cfg.Presets = map[string]config.Preset{"default": config.DefaultPreset()}
	}
	var router *Router
	if len(cfg.Presets) > 1 {
		router = NewRouter(cfg, factory)
	}
	return &Summarizer{
		cfg:     cfg,
		factory: factory,
		router:  router,
		sleep:   time.Sleep,
		now:     time.Now,
	}
}

// Summarize produces the structured summary for a meeting. When speaker
// utterances are available the prompt uses one "[speaker]: text" line per
// utterance, otherwise the raw transcript.
func (s *Summarizer) Summarize(ctx context.Context, meetingID, transcript string, speakers []transcribe.Utterance) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", ErrEmptyTranscript
	}

	body := transcript
	if len(speakers) > 0 {
		body = transcribe.FormatLines(speakers)
	}

	presetName, err := s.selectPreset(ctx, body)
	if err != nil {
		return "", fmt.Errorf("select preset: %w", err)
	}
	slog.Info("summarizing meeting", "meeting_id", meetingID, "preset", presetName, "utterances", len(speakers))
	return s.SummarizeWithPreset(ctx, meetingID, body, presetName)
}

func (s *Summarizer) SummarizeWithPreset(ctx context.Context, _ string, transcript, presetName string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", ErrEmptyTranscript
	}

	preset, ok := s.cfg.Presets[presetName]
	if !ok {
		return "", fmt.Errorf("unknown preset %q", presetName)
	}

	modelStr := preset.Model
	if modelStr == "" {
		modelStr = s.cfg.Model
	}

	provider, model, err := llm.ParseModel(modelStr)
	if err != nil {
		return "", err
	}

	client, err := s.factory(provider, model)
	if err != nil {
		return "", fmt.Errorf("create llm client: %w", err)
	}

	date := s.now().UTC().Format("2006-01-02")
	userContent := strings.ReplaceAll(preset.UserTemplate, "{{transcript}}", transcript)
	userContent = strings.ReplaceAll(userContent, "{{date}}", date)

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: preset.SystemPrompt},
		{Role: llm.RoleUser, Content: userContent},
	}

	backoff := []time.Duration{1 * time.Second, 4 * time.Second, 16 * time.Second}
	var lastErr error
	for attempt := range backoff {
		result, err := client.Complete(ctx, messages)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < len(backoff)-1 {
			s.sleep(backoff[attempt])
		}
	}
	return "", fmt.Errorf("summarize failed after retries: %w", lastErr)
}

func (s *Summarizer) selectPreset(ctx context.Context, transcript string) (string, error) {
	if s.router == nil {
		for name := range s.cfg.Presets {
			return name, nil
		}
		return "default", nil
	}
	return s.router.SelectPreset(ctx, transcript)
}

func (s *Summarizer) Presets() map[string]config.Preset {
	return s.cfg.Presets
}
