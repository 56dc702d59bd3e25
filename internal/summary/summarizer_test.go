package summary

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sjawhar/meetscribe/internal/config"
	"github.com/sjawhar/meetscribe/internal/llm"
	"github.com/sjawhar/meetscribe/internal/transcribe"
)

type mockLLMClient struct {
	calls        int
	response     string
	err          error
	lastMessages []llm.Message
}

func (m *mockLLMClient) Complete(_ context.Context, messages []llm.Message) (string, error) {
	m.calls++
	m.lastMessages = append([]llm.Message(nil), messages...)
	if m.err != nil && m.calls < 3 {
		return "", m.err
	}
	return m.response, nil
}

func TestSummarizeSinglePreset(t *testing.T) {
	transcript := buildTranscript(25)
	client := &mockLLMClient{response: "## Summary"}
	factoryCalls := 0

	cfg := config.Summarization{
		Model: "openai/gpt-4o-mini",
		Presets: map[string]config.Preset{
			"default": {
				Description:  "general",
				SystemPrompt: "system",
				UserTemplate: "{{transcript}}",
			},
		},
	}

	s := New(cfg, func(provider, model string) (llm.Client, error) {
		if provider != "openai" {
			t.Fatalf("expected provider openai, got %q", provider)
		}
		if model != "gpt-4o-mini" {
			t.Fatalf("expected model gpt-4o-mini, got %q", model)
		}
		factoryCalls++
		return client, nil
	})
	s.sleep = func(time.Duration) {}

	summaryText, err := s.Summarize(context.Background(), "m1", transcript, nil)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if summaryText != "## Summary" {
		t.Fatalf("expected summary ## Summary, got %q", summaryText)
	}
	if client.calls != 1 {
		t.Fatalf("expected 1 llm call, got %d", client.calls)
	}
	if factoryCalls != 1 {
		t.Fatalf("expected 1 factory call, got %d", factoryCalls)
	}
}

func TestSummarizeRejectsEmptyTranscript(t *testing.T) {
	client := &mockLLMClient{response: "should-not-be-used"}

	cfg := config.Summarization{
		Model: "openai/gpt-4o-mini",
		Presets: map[string]config.Preset{
			"default": {
				Description:  "general",
				SystemPrompt: "system",
				UserTemplate: "{{transcript}}",
			},
		},
	}

	s := New(cfg, func(_, _ string) (llm.Client, error) {
		return client, nil
	})

	for _, transcript := range []string{"", "   ", "\n\t"} {
		_, err := s.Summarize(context.Background(), "m1", transcript, nil)
		if !errors.Is(err, ErrEmptyTranscript) {
			t.Fatalf("expected ErrEmptyTranscript for %q, got %v", transcript, err)
		}
	}
	if client.calls != 0 {
		t.Fatalf("expected zero llm calls, got %d", client.calls)
	}
}

func TestSummarizeShortTranscriptStillSummarized(t *testing.T) {
	client := &mockLLMClient{response: "1. Context"}
	s := New(config.Summarization{Model: "openai/gpt-4o-mini"}, func(_, _ string) (llm.Client, error) {
		return client, nil
	})
	s.sleep = func(time.Duration) {}

	got, err := s.Summarize(context.Background(), "m1", "ship it", nil)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if got != "1. Context" || client.calls != 1 {
		t.Fatalf("expected one call returning the summary, got %q after %d calls", got, client.calls)
	}
	if !strings.Contains(client.lastMessages[0].Content, "Action Items") {
		t.Fatalf("expected default five-section prompt, got %q", client.lastMessages[0].Content)
	}
}

func TestSummarizeFormatsSpeakerLines(t *testing.T) {
	client := &mockLLMClient{response: "ok"}
	cfg := config.Summarization{
		Model: "openai/gpt-4o-mini",
		Presets: map[string]config.Preset{
			"default": {SystemPrompt: "system", UserTemplate: "{{transcript}}"},
		},
	}
	s := New(cfg, func(_, _ string) (llm.Client, error) {
		return client, nil
	})

	speakers := []transcribe.Utterance{
		{Speaker: "Speaker 1", Text: "Let's ship on Friday."},
		{Speaker: "Speaker 2", Text: "I'll write the release notes."},
	}
	if _, err := s.Summarize(context.Background(), "m1", "Let's ship on Friday. I'll write the release notes.", speakers); err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}

	want := "[Speaker 1]: Let's ship on Friday.\n[Speaker 2]: I'll write the release notes."
	if client.lastMessages[1].Content != want {
		t.Fatalf("expected speaker lines %q, got %q", want, client.lastMessages[1].Content)
	}
	if client.lastMessages[0].Role != llm.RoleSystem || client.lastMessages[1].Role != llm.RoleUser {
		t.Fatalf("unexpected roles %#v", client.lastMessages)
	}
}

func TestSummarizeStopsRetryingOnCancel(t *testing.T) {
	client := &mockLLMClient{err: errors.New("timeout")}
	s := New(config.Summarization{Model: "openai/gpt-4o-mini"}, func(_, _ string) (llm.Client, error) {
		return client, nil
	})
	sleeps := 0
	s.sleep = func(time.Duration) { sleeps++ }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Summarize(ctx, "m1", "hello there", nil); err == nil {
		t.Fatal("expected error")
	}
	if client.calls != 1 || sleeps != 0 {
		t.Fatalf("expected a single attempt, got calls=%d sleeps=%d", client.calls, sleeps)
	}
}

func TestSummarizeRendersTemplate(t *testing.T) {
	transcript := buildTranscript(25)
	client := &mockLLMClient{response: "ok"}

	cfg := config.Summarization{
		Model: "openai/gpt-4o-mini",
		Presets: map[string]config.Preset{
			"default": {
				Description:  "general",
				SystemPrompt: "system",
				UserTemplate: "Date={{date}}\nBody={{transcript}}",
			},
		},
	}

	s := New(cfg, func(_, _ string) (llm.Client, error) {
		return client, nil
	})

	s.now = func() time.Time { return time.Date(2026, 3, 9, 23, 30, 0, 0, time.FixedZone("PST", -8*3600)) }

	_, err := s.SummarizeWithPreset(context.Background(), "m1", transcript, "default")
	if err != nil {
		t.Fatalf("SummarizeWithPreset failed: %v", err)
	}

	if len(client.lastMessages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(client.lastMessages))
	}
	if !strings.Contains(client.lastMessages[1].Content, "Date=2026-03-10") {
		t.Fatalf("expected rendered date in user content, got %q", client.lastMessages[1].Content)
	}
	if !strings.Contains(client.lastMessages[1].Content, "Body="+transcript) {
		t.Fatalf("expected rendered transcript in user content, got %q", client.lastMessages[1].Content)
	}
}

func TestSummarizeWithPreset(t *testing.T) {
	transcript := buildTranscript(25)
	client := &mockLLMClient{response: "preset-summary"}

	cfg := config.Summarization{
		Model: "not/a-valid/global-model",
		Presets: map[string]config.Preset{
			"default": {
				Description:  "general",
				SystemPrompt: "system",
				UserTemplate: "{{transcript}}",
				Model:        "openai/gpt-4o-mini",
			},
			"detailed": {
				Description:  "detailed",
				SystemPrompt: "system",
				UserTemplate: "{{transcript}}",
				Model:        "openai/gpt-4o-mini",
			},
		},
	}

	s := New(cfg, func(_, _ string) (llm.Client, error) {
		return client, nil
	})

	summaryText, err := s.SummarizeWithPreset(context.Background(), "m1", transcript, "detailed")
	if err != nil {
		t.Fatalf("SummarizeWithPreset failed: %v", err)
	}
	if summaryText != "preset-summary" {
		t.Fatalf("expected preset-summary, got %q", summaryText)
	}
	if client.calls != 1 {
		t.Fatalf("expected one llm call, got %d", client.calls)
	}
}

func TestSummarizeRetries(t *testing.T) {
	transcript := buildTranscript(25)
	client := &mockLLMClient{response: "retry-success", err: errors.New("temporary")}
	var sleeps []time.Duration

	cfg := config.Summarization{
		Model: "openai/gpt-4o-mini",
		Presets: map[string]config.Preset{
			"default": {
				Description:  "general",
				SystemPrompt: "system",
				UserTemplate: "{{transcript}}",
			},
		},
	}

	s := New(cfg, func(_, _ string) (llm.Client, error) {
		return client, nil
	})
	s.sleep = func(d time.Duration) {
		sleeps = append(sleeps, d)
	}

	summaryText, err := s.SummarizeWithPreset(context.Background(), "m1", transcript, "default")
	if err != nil {
		t.Fatalf("SummarizeWithPreset failed: %v", err)
	}
	if summaryText != "retry-success" {
		t.Fatalf("expected retry-success, got %q", summaryText)
	}
	if client.calls != 3 {
		t.Fatalf("expected 3 llm calls, got %d", client.calls)
	}
	if len(sleeps) != 2 {
		t.Fatalf("expected 2 sleep calls, got %d", len(sleeps))
	}
	if sleeps[0] != time.Second || sleeps[1] != 4*time.Second {
		t.Fatalf("unexpected sleep durations: %#v", sleeps)
	}
}

func TestSummarizeUnknownPreset(t *testing.T) {
	cfg := config.Summarization{
		Model: "openai/gpt-4o-mini",
		Presets: map[string]config.Preset{
			"default": {
				Description:  "general",
				SystemPrompt: "system",
				UserTemplate: "{{transcript}}",
			},
		},
	}

	s := New(cfg, func(_, _ string) (llm.Client, error) {
		return &mockLLMClient{response: "ok"}, nil
	})

	_, err := s.SummarizeWithPreset(context.Background(), "m1", buildTranscript(25), "missing")
	if err == nil {
		t.Fatal("expected unknown preset error")
	}
	if !strings.Contains(err.Error(), "unknown preset") {
		t.Fatalf("expected unknown preset error, got %v", err)
	}
}

func buildTranscript(wordCount int) string {
	words := make([]string, 0, wordCount)
	for i := 0; i < wordCount; i++ {
		words = append(words, "word")
	}
	return strings.Join(words, " ")
}
