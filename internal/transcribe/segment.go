package transcribe

type Word struct {
	Speaker        *int
	PunctuatedWord string
	Start          float64
	End            float64
}

// GroupWordsBySpeaker merges consecutive words from the same speaker into
// utterances. Words without a diarization index are attributed to speaker -1.
func GroupWordsBySpeaker(words []Word) []Utterance {
	if len(words) == 0 {
		return nil
	}

	var utterances []Utterance
	var current Utterance
	currentSpeaker := 0
	started := false

	for _, w := range words {
		speaker := -1
		if w.Speaker != nil {
			speaker = *w.Speaker
		}

		if started && speaker == currentSpeaker {
			current.Text += " " + w.PunctuatedWord
			current.End = w.End
			continue
		}

		if started {
			utterances = append(utterances, current)
		}
		current = Utterance{
			Speaker: SpeakerLabel(speaker),
			Text:    w.PunctuatedWord,
			Start:   w.Start,
			End:     w.End,
		}
		currentSpeaker = speaker
		started = true
	}

	return append(utterances, current)
}
