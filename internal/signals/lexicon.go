package signals

// #region imports
import (
	"context"
	"strings"
)

// #endregion

// #region keywords

type cue struct {
	phrase string
	value  float64
}

var moodCues = []cue{
	{"exhausted", -0.5}, {"overwhelmed", -0.7}, {"anxious", -0.6}, {"stressed", -0.5},
	{"sad", -0.7}, {"down", -0.5}, {"lonely", -0.6}, {"frustrated", -0.5},
	{"hopeless", -0.9}, {"awful", -0.8}, {"meh", -0.2}, {"fine", 0.1},
	{"okay", 0.1}, {"calm", 0.3}, {"good", 0.5}, {"happy", 0.7},
	{"grateful", 0.6}, {"great", 0.7}, {"excited", 0.8}, {"proud", 0.6},
}

var energyCues = []cue{
	{"exhausted", 0.05}, {"drained", 0.1}, {"tired", 0.2}, {"sleepy", 0.2},
	{"sluggish", 0.25}, {"rested", 0.6}, {"awake", 0.6}, {"energized", 0.85},
	{"energised", 0.85}, {"wired", 0.9}, {"pumped", 0.9},
}

var focusCues = []cue{
	{"distracted", 0.2}, {"scattered", 0.15}, {"drifting", 0.2}, {"can't focus", 0.1},
	{"cannot focus", 0.1}, {"procrastinating", 0.2}, {"foggy", 0.25},
	{"focused", 0.8}, {"in the zone", 0.9}, {"locked in", 0.9}, {"locked-in", 0.9},
	{"productive", 0.75}, {"clear headed", 0.7}, {"clear-headed", 0.7},
}

var negations = []string{"not ", "n't ", "never ", "no longer "}

// #endregion

// #region lexicon

// Lexicon is a keyword-heuristic Inferrer. No model call. It serves as the
// local fallback when the inference service is unreachable.
type Lexicon struct {
	// Confidence assigned to a dimension with exactly one matching cue; each
	// further match adds half the remaining gap to 1.
	BaseConfidence float64
}

// NewLexicon returns a Lexicon with the default base confidence.
func NewLexicon() *Lexicon {
	return &Lexicon{BaseConfidence: 0.4}
}

// Infer scans text for mood, energy and focus cues. Negated cues ("not
// tired") are ignored rather than inverted. A dimension without a match
// produces no hint.
func (l *Lexicon) Infer(ctx context.Context, text string) ([]Hint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lower := " " + strings.ToLower(strings.TrimSpace(text)) + " "

	var hints []Hint
	for _, d := range []struct {
		dim  Dimension
		cues []cue
	}{
		{Mood, moodCues},
		{Energy, energyCues},
		{Focus, focusCues},
	} {
		if h, ok := l.score(lower, d.dim, d.cues); ok {
			hints = append(hints, h)
		}
	}
	return hints, nil
}

// #endregion

// #region score

func (l *Lexicon) score(lower string, dim Dimension, cues []cue) (Hint, bool) {
	var sum float64
	var n int
	for _, c := range cues {
		idx := strings.Index(lower, c.phrase)
		if idx < 0 || isLetter(lower[idx-1]) || negated(lower[:idx]) {
			continue
		}
		sum += c.value
		n++
	}
	if n == 0 {
		return Hint{}, false
	}
	conf := l.BaseConfidence
	for i := 1; i < n; i++ {
		conf += (1 - conf) / 2
	}
	return Hint{Dimension: dim, Value: sum / float64(n), Confidence: conf}, true
}

func isLetter(b byte) bool {
	return b >= 'a' && b <= 'z'
}

// negated reports whether the text immediately before a cue ends in a
// negation word.
func negated(prefix string) bool {
	tail := prefix
	if len(tail) > 12 {
		tail = tail[len(tail)-12:]
	}
	for _, neg := range negations {
		if strings.HasSuffix(tail, neg) {
			return true
		}
	}
	return false
}

// #endregion
