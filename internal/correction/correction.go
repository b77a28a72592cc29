// Package correction detects language corrections in completed tutor turns.
//
// Detection is lexical cue matching, not understanding: the extractor looks
// for contrastive phrasings a tutor uses when correcting a learner ("instead
// of X, say Y", "not X, but Y", "X is pronounced Y") and pairs the learner's
// phrasing with the corrected form. This is best-effort by design. False
// negatives are fine; the cues are kept narrow so false positives stay rare
// enough not to pollute the correction log.
//
// Two string-similarity passes refine the raw matches. Jaro-Winkler locates
// the learner's actual phrasing inside their previous turn when the tutor
// only quoted the corrected form. Double Metaphone classifies sound-alike
// pairs as pronunciation corrections rather than grammar.
package correction

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/voxtutor/voxtutor/pkg/types"
)

const defaultSimilarityThreshold = 0.80

// Option is a functional option for configuring an [Extractor].
type Option func(*Extractor)

// WithSimilarityThreshold sets the minimum Jaro-Winkler score required to
// anchor a correction to a phrase from the learner's previous turn.
// Default: 0.80.
func WithSimilarityThreshold(t float64) Option {
	return func(e *Extractor) {
		e.similarityThreshold = t
	}
}

// Extractor scans tutor turns for correction cues. It is read-only after
// construction and safe for concurrent use.
type Extractor struct {
	similarityThreshold float64
}

// New returns an Extractor with the supplied options applied.
func New(opts ...Option) *Extractor {
	e := &Extractor{similarityThreshold: defaultSimilarityThreshold}
	for _, o := range opts {
		o(e)
	}
	return e
}

// cue is one recognised correction phrasing. Patterns with two capture groups
// yield (original, corrected); patterns with one group yield only the
// corrected form, and the original is recovered from the learner's turn.
type cue struct {
	re   *regexp.Regexp
	kind types.CorrectionKind // zero value means "classify from the pair"
	// swap indicates the pattern captures (corrected, original) order.
	swap bool
}

// Phrase delimiters: straight, typographic, and guillemet double quotes.
// Single quotes are deliberately not delimiters — apostrophes appear inside
// quoted phrases constantly ("j'ai mangé") and would truncate the match.
const quoteChars = `"` + "“”«»"

// cuePattern expands {q} to a quote character and (q) to a captured quoted
// phrase, then compiles case-insensitively.
func cuePattern(p string) *regexp.Regexp {
	p = strings.ReplaceAll(p, "(q)", "["+quoteChars+"]([^"+quoteChars+"]+)["+quoteChars+"]")
	p = strings.ReplaceAll(p, "{gap}", "[^"+quoteChars+"]{0,60}?")
	return regexp.MustCompile(`(?i)` + p)
}

var cues = []cue{
	// "instead of 'X', say 'Y'" / "instead of 'X' you should say 'Y'"
	{re: cuePattern(`instead of (q){gap}say (q)`)},
	// "say 'Y' instead of 'X'"
	{re: cuePattern(`say (q) instead of (q)`), swap: true},
	// "not 'X', but 'Y'"
	{re: cuePattern(`not (q),? but (q)`)},
	// "'X' is pronounced 'Y'"
	{re: cuePattern(`(q) is pronounced (q)`), kind: types.CorrectionPronunciation},
	// "you said 'X'; the correct form is 'Y'"
	{re: cuePattern(`you said (q){gap}(?:correct (?:form|way) is|should be) (q)`)},
	// "the word is 'Y'" / "the correct word is 'Y'" — original recovered from
	// the learner's turn.
	{re: cuePattern(`the (?:right |correct )?word (?:is|would be) (q)`), kind: types.CorrectionVocabulary},
}

// Extract scans the tutor turn for correction cues. userTurn is the learner's
// most recent turn; it anchors corrections whose original phrasing the tutor
// did not quote. Returns nil when no cue matches.
func (e *Extractor) Extract(tutorTurn, userTurn types.TranscriptTurn) []types.CorrectionRecord {
	if tutorTurn.Role != types.RoleTutor {
		return nil
	}
	text := tutorTurn.Text
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var records []types.CorrectionRecord
	seen := make(map[string]struct{})

	for _, c := range cues {
		for _, m := range c.re.FindAllStringSubmatch(text, -1) {
			var original, corrected string
			switch len(m) {
			case 3:
				original, corrected = m[1], m[2]
				if c.swap {
					original, corrected = corrected, original
				}
			case 2:
				corrected = m[1]
				original = e.locateOriginal(corrected, userTurn.Text)
			default:
				continue
			}

			original = strings.TrimSpace(original)
			corrected = strings.TrimSpace(corrected)
			if corrected == "" || strings.EqualFold(original, corrected) {
				continue
			}

			key := strings.ToLower(original) + "\x00" + strings.ToLower(corrected)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			records = append(records, types.CorrectionRecord{
				Kind:      classify(c.kind, original, corrected),
				Original:  original,
				Corrected: corrected,
			})
		}
	}
	return records
}

// locateOriginal finds the phrase in the learner's turn closest to the
// corrected form. When nothing scores above the threshold the learner's whole
// turn is used; a vague anchor beats a wrong one.
func (e *Extractor) locateOriginal(corrected, userText string) string {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return ""
	}

	correctedLower := strings.ToLower(corrected)
	window := len(strings.Fields(corrected))
	if window == 0 {
		return userText
	}

	words := strings.Fields(userText)
	best := ""
	bestScore := e.similarityThreshold
	for i := 0; i+window <= len(words); i++ {
		candidate := strings.Join(words[i:i+window], " ")
		score := matchr.JaroWinkler(strings.ToLower(candidate), correctedLower, true)
		if score > bestScore {
			best = candidate
			bestScore = score
		}
	}
	if best == "" {
		return userText
	}
	return best
}

// classify picks the correction kind. Cues with a fixed kind win; otherwise
// single-word pairs that share a Double Metaphone code are pronunciation
// (same sound, different spelling), multi-word rewrites are grammar, and
// single-word swaps that sound different are vocabulary.
func classify(fixed types.CorrectionKind, original, corrected string) types.CorrectionKind {
	if fixed != "" {
		return fixed
	}
	if strings.ContainsRune(strings.TrimSpace(original), ' ') ||
		strings.ContainsRune(strings.TrimSpace(corrected), ' ') {
		return types.CorrectionGrammar
	}
	if original != "" && soundsAlike(original, corrected) {
		return types.CorrectionPronunciation
	}
	return types.CorrectionVocabulary
}

// soundsAlike reports whether two words share a Double Metaphone code.
func soundsAlike(a, b string) bool {
	a1, a2 := matchr.DoubleMetaphone(a)
	b1, b2 := matchr.DoubleMetaphone(b)
	if a1 == "" && a2 == "" {
		return false
	}
	for _, ca := range []string{a1, a2} {
		if ca == "" {
			continue
		}
		for _, cb := range []string{b1, b2} {
			if cb != "" && ca == cb {
				return true
			}
		}
	}
	return false
}
