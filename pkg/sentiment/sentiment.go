// Package sentiment turns per-sentence sentiment labels into a cumulative
// mood score and eases the displayed score toward it over time.
//
// The score at a playback position is the running sum of +1 for every
// positive and -1 for every negative sentence from the start of the
// transcript up to and including the active sentence. [Engine] holds the
// target and the currently displayed value and interpolates between them
// with an ease-in-out cubic curve.
package sentiment

import (
	"fmt"
	"math"
	"time"
)

// Label is a sentence-level sentiment classification.
type Label string

// Known labels.
const (
	Positive Label = "positive"
	Neutral  Label = "neutral"
	Negative Label = "negative"
	Mixed    Label = "mixed"
)

// Labels lists every known label.
var Labels = []Label{Positive, Neutral, Negative, Mixed}

// ParseLabel validates s as a [Label].
func ParseLabel(s string) (Label, error) {
	l := Label(s)
	switch l {
	case Positive, Neutral, Negative, Mixed:
		return l, nil
	}
	return "", fmt.Errorf("sentiment: unknown label %q", s)
}

// Weight is the label's contribution to the cumulative score.
func (l Label) Weight() float64 {
	switch l {
	case Positive:
		return 1
	case Negative:
		return -1
	}
	return 0
}

// Entry is the sentiment of a single sentence.
type Entry struct {
	Sentiment Label             `json:"sentiment"`
	Scores    map[Label]float64 `json:"scores,omitempty"`
}

// Data maps sentence indices to their sentiment. It is sparse; missing
// sentences count as neutral.
type Data map[int]Entry

// Manual builds the entry for a label chosen by hand: the chosen label scores
// 1 and every other label 0.
func Manual(l Label) Entry {
	scores := make(map[Label]float64, len(Labels))
	for _, k := range Labels {
		scores[k] = 0
	}
	scores[l] = 1
	return Entry{Sentiment: l, Scores: scores}
}

// Target returns the cumulative score of sentences 0 through active. Keys
// outside that range never contribute and a negative active yields 0.
func Target(active int, data Data) float64 {
	if active < 0 || len(data) == 0 {
		return 0
	}
	var sum float64
	if len(data) <= active {
		for k, e := range data {
			if k >= 0 && k <= active {
				sum += e.Sentiment.Weight()
			}
		}
		return sum
	}
	for i := 0; i <= active; i++ {
		if e, ok := data[i]; ok {
			sum += e.Sentiment.Weight()
		}
	}
	return sum
}

// Ease is the ease-in-out cubic curve on [0, 1].
func Ease(p float64) float64 {
	if p < 0.5 {
		return 4 * p * p * p
	}
	return 1 - math.Pow(-2*p+2, 3)/2
}

// Animate returns the value at elapsed of an eased transition from start to
// target lasting total, and whether the transition has finished. A finished
// transition returns exactly target.
func Animate(start, target float64, elapsed, total time.Duration) (float64, bool) {
	if total <= 0 || elapsed >= total {
		return target, true
	}
	if elapsed < 0 {
		elapsed = 0
	}
	p := float64(elapsed) / float64(total)
	return start + (target-start)*Ease(p), false
}
