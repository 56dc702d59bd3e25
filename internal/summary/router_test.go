package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sjawhar/meetscribe/internal/config"
	"github.com/sjawhar/meetscribe/internal/llm"
)

func twoPresets(extra string) config.Summarization {
	return config.Summarization{
		Model: "openai/gpt-4o-mini",
		Presets: map[string]config.Preset{
			"default": {Description: "general meeting notes"},
			extra:     {Description: extra + " meetings"},
		},
	}
}

func TestRouterSelectsPreset(t *testing.T) {
	client := &mockLLMClient{response: "standup"}
	router := NewRouter(twoPresets("standup"), func(provider, model string) (llm.Client, error) {
		if provider != "openai" || model != "gpt-4o-mini" {
			t.Fatalf("unexpected provider/model %q/%q", provider, model)
		}
		return client, nil
	})

	preset, err := router.SelectPreset(context.Background(), speakerTranscript(120))
	if err != nil {
		t.Fatalf("SelectPreset failed: %v", err)
	}
	if preset != "standup" {
		t.Fatalf("expected standup preset, got %q", preset)
	}
	if client.calls != 1 {
		t.Fatalf("expected one llm call, got %d", client.calls)
	}
	prompt := client.lastMessages[0].Content
	if !strings.Contains(prompt, "- default: general meeting notes\n- standup: standup meetings") {
		t.Fatalf("expected sorted preset list in prompt, got %q", prompt)
	}
}

func TestRouterAcceptsDecoratedAnswer(t *testing.T) {
	client := &mockLLMClient{response: "  `Retro`. "}
	router := NewRouter(twoPresets("retro"), func(_, _ string) (llm.Client, error) { return client, nil })

	preset, err := router.SelectPreset(context.Background(), "[Speaker 1]: what went well")
	if err != nil {
		t.Fatalf("SelectPreset failed: %v", err)
	}
	if preset != "retro" {
		t.Fatalf("expected retro preset, got %q", preset)
	}
}

func TestRouterFallsBackToDefault(t *testing.T) {
	client := &mockLLMClient{response: "gibberish-output"}
	router := NewRouter(twoPresets("sales"), func(_, _ string) (llm.Client, error) { return client, nil })

	preset, err := router.SelectPreset(context.Background(), speakerTranscript(10))
	if err != nil {
		t.Fatalf("SelectPreset failed: %v", err)
	}
	if preset != "default" {
		t.Fatalf("expected default preset fallback, got %q", preset)
	}
}

func TestRouterFallbackUsesFirstSortedPreset(t *testing.T) {
	cfg := config.Summarization{
		Model: "openai/gpt-4o-mini",
		Presets: map[string]config.Preset{
			"detailed": {Description: "detailed notes"},
			"brief":    {Description: "quick summary"},
		},
	}
	router := NewRouter(cfg, func(_, _ string) (llm.Client, error) {
		return nil, errors.New("no key")
	})

	preset, err := router.SelectPreset(context.Background(), speakerTranscript(10))
	if err != nil {
		t.Fatalf("SelectPreset failed: %v", err)
	}
	if preset != "brief" {
		t.Fatalf("expected first sorted preset 'brief', got %q", preset)
	}
}

func TestExcerptPlainWords(t *testing.T) {
	sampled := Excerpt(numberedWords(1000), 300, 200, 200)

	if strings.Count(sampled, "[...]") != 2 {
		t.Fatalf("expected two omission markers, got %q", sampled)
	}
	if !strings.HasPrefix(sampled, "w1 w2") || !strings.Contains(sampled, "w300\n") {
		t.Fatalf("expected head w1..w300, got %q", sampled[:40])
	}
	if !strings.Contains(sampled, "\nw401 ") || !strings.Contains(sampled, " w600\n") {
		t.Fatalf("expected middle w401..w600")
	}
	if !strings.Contains(sampled, "\nw801 ") || !strings.HasSuffix(sampled, "w1000") {
		t.Fatalf("expected tail w801..w1000")
	}
}

func TestExcerptKeepsSpeakerLines(t *testing.T) {
	transcript := speakerTranscript(300)
	sampled := Excerpt(transcript, 40, 20, 20)

	if strings.Count(sampled, "[...]") != 2 {
		t.Fatalf("expected two omission markers, got %q", sampled)
	}
	for _, line := range strings.Split(sampled, "\n") {
		if line == "" || line == "[...]" {
			continue
		}
		if !strings.HasPrefix(line, "[Speaker ") {
			t.Fatalf("expected whole speaker lines, got %q", line)
		}
	}
	if !strings.HasPrefix(sampled, "[Speaker 2]: line 1 ok\n") || !strings.HasSuffix(sampled, "line 300 ok") {
		t.Fatalf("expected head and tail lines preserved, got %q", sampled)
	}
}

func TestExcerptShortText(t *testing.T) {
	transcript := numberedWords(10)
	if got := Excerpt(transcript, 5, 3, 3); got != transcript {
		t.Fatalf("expected full transcript, got %q", got)
	}
}

func numberedWords(n int) string {
	words := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		words = append(words, fmt.Sprintf("w%d", i))
	}
	return strings.Join(words, " ")
}

// speakerTranscript builds n five-word lines alternating two speakers.
func speakerTranscript(n int) string {
	lines := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		lines = append(lines, fmt.Sprintf("[Speaker %d]: line %d ok", i%2+1, i))
	}
	return strings.Join(lines, "\n")
}
