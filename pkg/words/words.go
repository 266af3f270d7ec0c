// Package words synthesises per-word timings from parsed transcript sentences
// and answers which word is active at a given playback position.
//
// Sentences only carry a start and end, so every word of a sentence gets an
// equal share of the sentence's duration. The resulting slice is the canonical
// word sequence that the editor operations in this package transform and that
// [ActiveIndex] searches.
package words

import (
	"strings"

	"github.com/MrWong99/podsync/pkg/transcript"
)

// NoWord is returned by [ActiveIndex] when no word covers the position.
const NoWord = -1

// Default presentation values assigned to synthesised words.
const (
	DarkColor   = "#FFFFFF"
	LightColor  = "#2C3E50"
	DefaultSize = "20px"
)

// Word is one timed word of the transcript.
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`

	// SentenceIndex is the index of the sentence the word came from.
	SentenceIndex int `json:"sentence_index"`

	// WordIndex is the position in the whole sequence, not the sentence.
	WordIndex int `json:"word_index"`

	Speaker     string      `json:"speaker,omitempty"`
	Color       string      `json:"color"`
	Size        string      `json:"size"`
	Animation   Animation   `json:"animation"`
	Enhancement Enhancement `json:"enhancement"`
}

// Active reports whether t falls inside [Start, End).
func (w Word) Active(t float64) bool {
	return w.Start <= t && t < w.End
}

// Option configures [Synthesize].
type Option func(*synthConfig)

type synthConfig struct {
	dark bool
}

// WithDarkTheme selects the default word colour. Words are coloured for a
// light background unless dark is true.
func WithDarkTheme(dark bool) Option {
	return func(c *synthConfig) {
		c.dark = dark
	}
}

// ThemeColor returns the default word colour for the given theme.
func ThemeColor(dark bool) string {
	if dark {
		return DarkColor
	}
	return LightColor
}

// Synthesize splits every sentence on whitespace and distributes the
// sentence's duration evenly across its words. Sentences without words emit
// nothing but still consume their sentence index. Zero or negative sentence
// durations are passed through unchanged.
func Synthesize(sentences []transcript.Sentence, opts ...Option) []Word {
	cfg := synthConfig{}
	for _, o := range opts {
		o(&cfg)
	}
	color := ThemeColor(cfg.dark)

	out := make([]Word, 0, len(sentences)*8)
	for si, s := range sentences {
		tokens := strings.Fields(s.Text)
		if len(tokens) == 0 {
			continue
		}
		step := (s.End - s.Start) / float64(len(tokens))
		for j, tok := range tokens {
			out = append(out, Word{
				Word:          tok,
				Start:         s.Start + float64(j)*step,
				End:           s.Start + float64(j+1)*step,
				SentenceIndex: si,
				WordIndex:     len(out),
				Speaker:       s.Speaker,
				Color:         color,
				Size:          DefaultSize,
				Animation:     DefaultAnimation(),
				Enhancement:   DefaultEnhancement(),
			})
		}
	}
	return out
}

// ActiveIndex returns the index of the first word whose interval contains t,
// or [NoWord]. It is a linear scan so overlapping intervals resolve to the
// earliest word.
func ActiveIndex(words []Word, t float64) int {
	for i := range words {
		if words[i].Active(t) {
			return i
		}
	}
	return NoWord
}
