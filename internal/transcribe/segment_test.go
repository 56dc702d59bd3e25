package transcribe

import (
	"testing"
)

func intPtr(i int) *int { return &i }

func TestGroupWordsBySpeaker(t *testing.T) {
	words := []Word{
		{Speaker: intPtr(0), PunctuatedWord: "Hello", Start: 0.0, End: 0.5},
		{Speaker: intPtr(0), PunctuatedWord: "world.", Start: 0.5, End: 1.0},
		{Speaker: intPtr(1), PunctuatedWord: "Hi", Start: 1.2, End: 1.5},
		{Speaker: intPtr(1), PunctuatedWord: "there.", Start: 1.5, End: 2.0},
		{Speaker: intPtr(0), PunctuatedWord: "How", Start: 2.2, End: 2.5},
		{Speaker: intPtr(0), PunctuatedWord: "are", Start: 2.5, End: 2.7},
		{Speaker: intPtr(0), PunctuatedWord: "you?", Start: 2.7, End: 3.0},
	}

	utterances := GroupWordsBySpeaker(words)

	if len(utterances) != 3 {
		t.Fatalf("expected 3 utterances, got %d", len(utterances))
	}
	if utterances[0].Speaker != "Speaker 1" || utterances[0].Text != "Hello world." {
		t.Errorf("utterance 0: got speaker=%q text=%q", utterances[0].Speaker, utterances[0].Text)
	}
	if utterances[1].Speaker != "Speaker 2" || utterances[1].Text != "Hi there." {
		t.Errorf("utterance 1: got speaker=%q text=%q", utterances[1].Speaker, utterances[1].Text)
	}
	if utterances[2].Start != 2.2 || utterances[2].End != 3.0 {
		t.Errorf("utterance 2: got start=%v end=%v", utterances[2].Start, utterances[2].End)
	}
}

func TestGroupWordsNilSpeaker(t *testing.T) {
	utterances := GroupWordsBySpeaker([]Word{{Speaker: nil, PunctuatedWord: "Hello", Start: 0.0, End: 0.5}})
	if len(utterances) != 1 {
		t.Fatalf("expected 1 utterance, got %d", len(utterances))
	}
	if utterances[0].Speaker != "Speaker ?" {
		t.Errorf("expected unknown speaker label, got %q", utterances[0].Speaker)
	}
}

func TestGroupWordsEmpty(t *testing.T) {
	if got := GroupWordsBySpeaker(nil); got != nil {
		t.Fatalf("expected nil, got %#v", got)
	}
}
