package wakeword

import "testing"

func TestMatchConfidence_ExactPhrase(t *testing.T) {
	t.Parallel()

	if got := MatchConfidence("hey earshot", "hey earshot"); got != 1.0 {
		t.Errorf("MatchConfidence(exact) = %f, want 1.0", got)
	}
}

func TestMatchConfidence_IgnoresPunctuationAndCase(t *testing.T) {
	t.Parallel()

	if got := MatchConfidence("Hey, Earshot!", "hey earshot"); got != 1.0 {
		t.Errorf("MatchConfidence(punctuated) = %f, want 1.0", got)
	}
}

func TestMatchConfidence_PhraseEmbeddedInSentence(t *testing.T) {
	t.Parallel()

	got := MatchConfidence("okay hey earshot turn the lights on", "hey earshot")
	if got < 0.95 {
		t.Errorf("MatchConfidence(embedded) = %f, want >= 0.95", got)
	}
}

func TestMatchConfidence_NearMiss(t *testing.T) {
	t.Parallel()

	// A plausible whisper mishearing should still score reasonably high.
	got := MatchConfidence("hey ear shot", "hey earshot")
	if got < 0.6 {
		t.Errorf("MatchConfidence(near miss) = %f, want >= 0.6", got)
	}
}

func TestMatchConfidence_UnrelatedSpeech(t *testing.T) {
	t.Parallel()

	got := MatchConfidence("banana", "hey earshot")
	if got >= 0.5 {
		t.Errorf("MatchConfidence(unrelated) = %f, want < 0.5", got)
	}
}

func TestMatchConfidence_EmptyInput(t *testing.T) {
	t.Parallel()

	if got := MatchConfidence("", "hey earshot"); got != 0 {
		t.Errorf("MatchConfidence(empty text) = %f, want 0", got)
	}
	if got := MatchConfidence("hey earshot", ""); got != 0 {
		t.Errorf("MatchConfidence(empty phrase) = %f, want 0", got)
	}
	if got := MatchConfidence("...", "hey earshot"); got != 0 {
		t.Errorf("MatchConfidence(punctuation only) = %f, want 0", got)
	}
}

func TestMatchConfidence_RangeIsBounded(t *testing.T) {
	t.Parallel()

	inputs := []string{"hey earshot", "hey earshot hey earshot", "xyz", "a b c d e"}
	for _, in := range inputs {
		got := MatchConfidence(in, "hey earshot")
		if got < 0 || got > 1 {
			t.Errorf("MatchConfidence(%q) = %f, out of [0, 1]", in, got)
		}
	}
}
