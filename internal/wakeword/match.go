package wakeword

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// MatchConfidence rates how well a transcript matches the wake phrase,
// returning a score in [0, 1].
//
// The transcript is scanned with a sliding window the size of the
// phrase, so "hey earshot turn the lights on" still matches "hey
// earshot". Jaro-Winkler similarity provides the raw score; a Double
// Metaphone overlap check guards against phrases that merely look
// alike on paper — without any shared phoneme the score is halved,
// which keeps unrelated speech under common thresholds.
func MatchConfidence(text, phrase string) float64 {
	textTokens := tokens(text)
	phraseTokens := tokens(phrase)

	if len(textTokens) == 0 || len(phraseTokens) == 0 {
		return 0
	}

	phraseJoined := strings.Join(phraseTokens, " ")
	phraseConcat := strings.Join(phraseTokens, "")

	best := 0.0

	// Slide a phrase-sized window across the transcript. Whisper often
	// glues words together, so the concatenated forms are compared too.
	n := len(phraseTokens)
	for start := 0; start+n <= len(textTokens); start++ {
		window := textTokens[start : start+n]
		if s := matchr.JaroWinkler(strings.Join(window, " "), phraseJoined, false); s > best {
			best = s
		}
		if s := matchr.JaroWinkler(strings.Join(window, ""), phraseConcat, false); s > best {
			best = s
		}
	}

	// Short transcripts (fewer tokens than the phrase) still get a shot
	// as a single blob.
	if len(textTokens) < n {
		if s := matchr.JaroWinkler(strings.Join(textTokens, ""), phraseConcat, false); s > best {
			best = s
		}
	}

	if best > 1 {
		best = 1
	}

	if !phoneticOverlap(textTokens, phraseTokens) {
		best /= 2
	}

	return best
}

// tokens lowercases, strips everything but letters, digits and spaces,
// and splits into words. Whisper decorates output with punctuation and
// bracketed annotations that must not affect matching.
func tokens(s string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return -1
		}
	}, s)

	return strings.Fields(cleaned)
}

func phoneticOverlap(a, b []string) bool {
	codes := make(map[string]struct{}, len(a)*2)
	for _, t := range a {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}

	for _, t := range b {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			if _, ok := codes[p]; ok {
				return true
			}
		}
		if s != "" {
			if _, ok := codes[s]; ok {
				return true
			}
		}
	}

	return false
}
