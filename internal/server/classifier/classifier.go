// Package classifier implements the three-tier storage decision for a
// submission: Regular, PasswordOnly or Mixed. The decision is computed from
// the set of already-authenticated tags and never alters it.
package classifier

import (
	"sort"
	"strings"

	"github.com/ekurs/phrasevault/internal/server/phrase"
)

// Tier is the closed set of storage decisions.
type Tier int

const (
	// Regular stores the raw content unchanged.
	Regular Tier = iota
	// PasswordOnly persists nothing; only sessions are issued.
	PasswordOnly
	// Mixed persists the residual content with matched spans removed.
	Mixed
)

func (t Tier) String() string {
	switch t {
	case Regular:
		return "regular"
	case PasswordOnly:
		return "password_only"
	case Mixed:
		return "mixed"
	default:
		return "unknown"
	}
}

// Match is one authenticated tag together with every raw span its phrase
// occupies in the submission.
type Match struct {
	TagID phrase.Identifier
	Spans []phrase.Span
}

// Result carries the tier, the non-secret residual (exactly the raw content
// for Regular, empty for PasswordOnly) and the authenticated tag set.
type Result struct {
	Tier     Tier
	Residual string
	Tags     []phrase.Identifier
}

// Classify applies the tier rules:
//
//   - no authenticated tags → Regular, residual = raw content unchanged;
//   - matched spans cover everything but separators → PasswordOnly;
//   - otherwise → Mixed, residual = raw content with matched spans excised.
//
// Overlapping or adjacent spans are merged into a single removed region, so
// no fragment of a secret phrase survives in the residual.
func Classify(raw string, matches []Match) Result {
	if len(matches) == 0 {
		return Result{Tier: Regular, Residual: raw}
	}

	tags := make([]phrase.Identifier, 0, len(matches))
	var spans []phrase.Span
	for _, m := range matches {
		tags = append(tags, m.TagID)
		spans = append(spans, m.Spans...)
	}

	residual := remove(raw, mergeSpans(spans, len(raw)))
	// Separator-only residue (punctuation, whitespace) normalizes to
	// nothing and counts as no content, same regime the matcher uses.
	if phrase.Normalize(residual) == "" {
		return Result{Tier: PasswordOnly, Tags: tags}
	}
	return Result{Tier: Mixed, Residual: residual, Tags: tags}
}

// mergeSpans clamps spans to [0, limit), sorts them and merges overlaps.
func mergeSpans(spans []phrase.Span, limit int) []phrase.Span {
	clamped := make([]phrase.Span, 0, len(spans))
	for _, s := range spans {
		if s.Start < 0 {
			s.Start = 0
		}
		if s.End > limit {
			s.End = limit
		}
		if s.Start >= s.End {
			continue
		}
		clamped = append(clamped, s)
	}
	if len(clamped) == 0 {
		return nil
	}

	sort.Slice(clamped, func(i, j int) bool { return clamped[i].Start < clamped[j].Start })

	merged := clamped[:1]
	for _, s := range clamped[1:] {
		last := &merged[len(merged)-1]
		if s.Start <= last.End {
			if s.End > last.End {
				last.End = s.End
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

func remove(raw string, spans []phrase.Span) string {
	if len(spans) == 0 {
		return raw
	}

	var b strings.Builder
	prev := 0
	for _, s := range spans {
		b.WriteString(raw[prev:s.Start])
		prev = s.End
	}
	b.WriteString(raw[prev:])
	return b.String()
}
