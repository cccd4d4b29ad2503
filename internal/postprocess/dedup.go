// Package postprocess cleans raw engine output. The engine is known to
// hallucinate verbatim repeats and trailing echoes of the opening sentence on
// short or noisy audio; both artifacts are collapsed here. All functions are
// pure and idempotent on already-clean text.
package postprocess

import (
	"strings"
	"unicode"
)

// minRepeatLen is the shortest phrase, in runes, considered a repeat
// hallucination rather than legitimate prose.
const minRepeatLen = 8

// Deduplicate returns the transcript with consecutive phrase repeats collapsed
// and near-duplicate trailing sentence fragments removed.
func Deduplicate(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return trimmed
	}
	collapsed := strings.TrimSpace(collapseRepeats(trimmed))
	return dropEchoedFragments(collapsed)
}

// collapseRepeats collapses any phrase of at least minRepeatLen runes that
// repeats two or more times consecutively, optionally separated by whitespace
// or punctuation, down to a single occurrence. Matching is case-insensitive
// and prefers the shortest repeating phrase at each position.
func collapseRepeats(s string) string {
	runes := []rune(s)
	folded := make([]rune, len(runes))
	for i, r := range runes {
		folded[i] = unicode.ToLower(r)
	}

	var out []rune
	i := 0
	for i < len(runes) {
		end := 0
		for l := minRepeatLen; i+2*l <= len(runes); l++ {
			if e := repeatEnd(folded, i, l); e > 0 {
				end = e
				out = append(out, runes[i:i+l]...)
				break
			}
		}
		if end > 0 {
			i = end
			continue
		}
		out = append(out, runes[i])
		i++
	}
	return string(out)
}

// repeatEnd reports where the run of repeats of folded[i:i+l] ends, or 0 when
// the phrase does not repeat at least once.
func repeatEnd(folded []rune, i, l int) int {
	j := i + l
	matched := false
	for {
		k := j
		for k < len(folded) && isSeparator(folded[k]) {
			k++
		}
		if k+l > len(folded) || !equalRunes(folded[k:k+l], folded[i:i+l]) {
			break
		}
		matched = true
		j = k + l
	}
	if !matched {
		return 0
	}
	return j
}

func equalRunes(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsPunct(r)
}

// dropEchoedFragments splits on sentence boundaries and removes later
// sentences that are a prefix echo of the first one. This catches the trailing
// near-duplicate that collapseRepeats misses because it is not contiguous.
func dropEchoedFragments(s string) string {
	sentences := splitSentences(s)
	if len(sentences) <= 1 {
		return s
	}

	firstLower := strings.ToLower(sentences[0])
	kept := []string{sentences[0]}
	for _, sentence := range sentences[1:] {
		clean := strings.ToLower(strings.TrimRight(sentence, "- "))
		if clean == "" || strings.HasPrefix(firstLower, clean) {
			continue
		}
		kept = append(kept, sentence)
	}
	return strings.Join(kept, " ")
}

// splitSentences splits after sentence-ending punctuation followed by
// whitespace, keeping the punctuation with its sentence.
func splitSentences(s string) []string {
	var out []string
	start := 0
	i := 0
	for i < len(s) {
		c := s[i]
		if (c == '.' || c == '?' || c == '!') && i+1 < len(s) && isSpaceByte(s[i+1]) {
			out = append(out, s[start:i+1])
			i++
			for i < len(s) && isSpaceByte(s[i]) {
				i++
			}
			start = i
			continue
		}
		i++
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
