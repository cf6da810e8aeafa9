// Package phrase turns raw journal text into normalized candidate phrases
// and derives fixed-width lookup identifiers from them.
//
// Normalization rule set (fixed for the lifetime of stored tags, since the
// identifier is a pure function of the normalized form):
//
//  1. NFKC normalization,
//  2. lowercasing,
//  3. every non-letter, non-digit rune is a separator,
//  4. separator runs collapse to a single space, leading/trailing trimmed.
//
// "My  Secret, Phrase!" and "my secret phrase" therefore normalize
// identically.
package phrase

import (
	"iter"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	// MaxPhraseWords bounds the n-gram width of generated candidates.
	// A registered phrase longer than this is still reachable through the
	// whole-text candidate.
	MaxPhraseWords = 8

	// MaxScanWords caps how many words of a submission are scanned, so the
	// candidate count (and the per-submission protocol cost) stays bounded.
	MaxScanWords = 512
)

// Span is a half-open byte range [Start, End) in the original raw text.
type Span struct {
	Start int
	End   int
}

// Token is one word of the raw text together with its normalized form and
// its position in the original bytes.
type Token struct {
	Normalized string
	Start      int
	End        int
}

// Candidate is a normalized phrase hypothesis covering Span in the raw text.
type Candidate struct {
	Normalized string
	Span       Span
}

// Tokenize splits text into word tokens carrying raw byte offsets. Words are
// maximal runs of letters and digits; everything else separates. Output is
// capped at MaxScanWords tokens.
func Tokenize(text string) []Token {
	var tokens []Token
	start := -1

	flush := func(end int) {
		if start < 0 {
			return
		}
		tokens = append(tokens, Token{
			Normalized: strings.ToLower(norm.NFKC.String(text[start:end])),
			Start:      start,
			End:        end,
		})
		start = -1
	}

	for i, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
		if len(tokens) >= MaxScanWords {
			return tokens
		}
	}
	flush(len(text))
	if len(tokens) > MaxScanWords {
		tokens = tokens[:MaxScanWords]
	}

	return tokens
}

// Normalize returns the canonical form of text: its tokens' normalized
// forms joined by single spaces. Empty or separator-only input yields "".
func Normalize(text string) string {
	tokens := Tokenize(text)
	parts := make([]string, len(tokens))
	for i, tok := range tokens {
		parts[i] = tok.Normalized
	}
	return strings.Join(parts, " ")
}

// Candidates produces a lazy, restartable sequence of candidate phrases for
// text: every word n-gram with 1 ≤ n ≤ MaxPhraseWords, plus the whole text
// when it is longer than MaxPhraseWords words. Candidates carry raw-text
// spans so matched phrases can later be excised from the original bytes.
//
// Malformed or empty input yields an empty sequence; the function never
// fails.
func Candidates(text string) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		tokens := Tokenize(text)
		if len(tokens) == 0 {
			return
		}

		joined := make([]string, 0, MaxPhraseWords)
		for i := range tokens {
			joined = joined[:0]
			for n := 1; n <= MaxPhraseWords && i+n <= len(tokens); n++ {
				joined = append(joined, tokens[i+n-1].Normalized)
				c := Candidate{
					Normalized: strings.Join(joined, " "),
					Span:       Span{Start: tokens[i].Start, End: tokens[i+n-1].End},
				}
				if !yield(c) {
					return
				}
			}
		}

		if len(tokens) > MaxPhraseWords {
			all := make([]string, len(tokens))
			for i, tok := range tokens {
				all[i] = tok.Normalized
			}
			yield(Candidate{
				Normalized: strings.Join(all, " "),
				Span:       Span{Start: tokens[0].Start, End: tokens[len(tokens)-1].End},
			})
		}
	}
}

// CollectCandidates drains Candidates(text) into a span index keyed by
// normalized form. Each key maps to every raw span it occurs at, so a single
// authenticated phrase removes all of its occurrences.
func CollectCandidates(text string) map[string][]Span {
	out := make(map[string][]Span)
	for c := range Candidates(text) {
		out[c.Normalized] = append(out[c.Normalized], c.Span)
	}
	return out
}
