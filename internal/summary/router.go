package summary

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/sjawhar/meetscribe/internal/config"
	"github.com/sjawhar/meetscribe/internal/llm"
)

// Excerpt budget, in words, for preset classification.
const (
	excerptHead   = 300
	excerptMiddle = 200
	excerptTail   = 200
)

// Router picks a summary preset by asking the summarization model to classify
// an excerpt of the meeting. Any failure falls back to a fixed preset.
type Router struct {
	cfg     config.Summarization
	factory ClientFactory
}

func NewRouter(cfg config.Summarization, factory ClientFactory) *Router {
	return &Router{cfg: cfg, factory: factory}
}

// Excerpt keeps the head, middle and tail of a transcript. Speaker-labelled
// transcripts are cut on line boundaries so every kept line keeps its label;
// plain text is cut on words.
func Excerpt(transcript string, head, middle, tail int) string {
	lines := strings.Split(strings.TrimSpace(transcript), "\n")
	if len(lines) > 1 {
		return excerptUnits(lines, "\n", head, middle, tail, wordsIn)
	}
	return excerptUnits(strings.Fields(transcript), " ", head, middle, tail, func(string) int { return 1 })
}

func wordsIn(line string) int {
	return len(strings.Fields(line))
}

// excerptUnits selects whole units until each section's word budget is spent.
func excerptUnits(units []string, sep string, head, middle, tail int, weight func(string) int) string {
	total := 0
	for _, u := range units {
		total += weight(u)
	}
	if total <= head+middle+tail {
		return strings.Join(units, sep)
	}

	take := func(from, step, budget int) []int {
		var idx []int
		for i := from; i >= 0 && i < len(units) && budget > 0; i += step {
			idx = append(idx, i)
			budget -= weight(units[i])
		}
		return idx
	}

	midStart, acc := 0, 0
	for i, u := range units {
		if acc >= (total-middle)/2 {
			midStart = i
			break
		}
		acc += weight(u)
	}

	headIdx := take(0, 1, head)
	midIdx := take(midStart, 1, middle)
	tailIdx := take(len(units)-1, -1, tail)

	seen := map[int]bool{}
	section := func(idx []int) string {
		sort.Ints(idx)
		var parts []string
		for _, i := range idx {
			if !seen[i] {
				seen[i] = true
				parts = append(parts, units[i])
			}
		}
		return strings.Join(parts, sep)
	}

	sections := []string{section(headIdx), section(midIdx), section(tailIdx)}
	var kept []string
	for _, s := range sections {
		if s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, "\n\n[...]\n\n")
}

func (r *Router) SelectPreset(ctx context.Context, transcript string) (string, error) {
	names := make([]string, 0, len(r.cfg.Presets))
	for name := range r.cfg.Presets {
		names = append(names, name)
	}
	sort.Strings(names)

	var presetList strings.Builder
	for _, name := range names {
		fmt.Fprintf(&presetList, "- %s: %s\n", name, r.cfg.Presets[name].Description)
	}

	prompt := fmt.Sprintf(`Given this meeting transcript excerpt, choose the single best summary preset for the meeting.

Transcript excerpt:
%s

Available presets:
%s
Reply with ONLY the preset name, nothing else.`, Excerpt(transcript, excerptHead, excerptMiddle, excerptTail), presetList.String())

	provider, model, err := llm.ParseModel(r.cfg.Model)
	if err != nil {
		slog.Warn("preset router: using fallback preset", "reason", "parse model failed", "error", err)
		return r.fallbackPreset(), nil
	}

	client, err := r.factory(provider, model)
	if err != nil {
		slog.Warn("preset router: using fallback preset", "reason", "create client failed", "error", err)
		return r.fallbackPreset(), nil
	}

	result, err := client.Complete(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		slog.Warn("preset router: using fallback preset", "reason", "llm complete failed", "error", err)
		return r.fallbackPreset(), nil
	}

	chosen := normalizeChoice(result)
	for _, name := range names {
		if strings.EqualFold(name, chosen) {
			return name, nil
		}
	}

	slog.Warn("preset router: using fallback preset", "reason", "chosen preset not found", "chosen", chosen)
	return r.fallbackPreset(), nil
}

// normalizeChoice strips the quoting and punctuation models tend to add
// around a one-word answer.
func normalizeChoice(s string) string {
	return strings.Trim(strings.TrimSpace(s), "\"'`*.")
}

func (r *Router) fallbackPreset() string {
	if _, ok := r.cfg.Presets["default"]; ok {
		return "default"
	}
	keys := make([]string, 0, len(r.cfg.Presets))
	for k := range r.cfg.Presets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[0]
}
