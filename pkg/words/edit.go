package words

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Errors returned by the editor operations.
var (
	ErrWordIndexOutOfRange = errors.New("words: word index out of range")
	ErrEmptyWord           = errors.New("words: word text must not be empty")
	ErrInvalidAnimation    = errors.New("words: invalid animation")
	ErrInvalidEnhancement  = errors.New("words: invalid enhancement")
)

// SentenceText is the joined text of one sentence.
type SentenceText struct {
	SentenceIndex int    `json:"sentenceIndex"`
	Text          string `json:"text"`
}

// Group splits words into runs that share a SentenceIndex. The order of
// words is preserved.
func Group(words []Word) [][]Word {
	var out [][]Word
	for i := 0; i < len(words); {
		j := i + 1
		for j < len(words) && words[j].SentenceIndex == words[i].SentenceIndex {
			j++
		}
		out = append(out, slices.Clone(words[i:j]))
		i = j
	}
	return out
}

// SentenceTexts rebuilds sentence text from the (possibly edited) words by
// joining each group with single spaces.
func SentenceTexts(words []Word) []SentenceText {
	groups := Group(words)
	out := make([]SentenceText, 0, len(groups))
	for _, g := range groups {
		parts := make([]string, len(g))
		for i, w := range g {
			parts[i] = w.Word
		}
		out = append(out, SentenceText{
			SentenceIndex: g[0].SentenceIndex,
			Text:          strings.Join(parts, " "),
		})
	}
	return out
}

// Rename returns a copy of words with word i's text replaced.
func Rename(words []Word, i int, text string) ([]Word, error) {
	if err := checkIndex(words, i); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyWord
	}
	out := slices.Clone(words)
	out[i].Word = text
	return out, nil
}

// SetAnimation returns a copy of words with word i's animation replaced. An
// empty intensity defaults to "normal".
func SetAnimation(words []Word, i int, a Animation) ([]Word, error) {
	if err := checkIndex(words, i); err != nil {
		return nil, err
	}
	if err := validateAnimation(a); err != nil {
		return nil, err
	}
	if a.Intensity == "" {
		a.Intensity = DefaultAnimation().Intensity
	}
	out := slices.Clone(words)
	out[i].Animation = a
	return out, nil
}

func validateAnimation(a Animation) error {
	var errs []error
	if !KnownAnimation(a.Type) {
		errs = append(errs, fmt.Errorf("unknown type %q", a.Type))
	}
	if a.Duration <= 0 {
		errs = append(errs, fmt.Errorf("duration must be positive, got %v", a.Duration))
	}
	if a.Delay < 0 {
		errs = append(errs, fmt.Errorf("delay must not be negative, got %v", a.Delay))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidAnimation, errors.Join(errs...))
	}
	return nil
}

// SetEnhancement returns a copy of words with word i's enhancement replaced.
// A link needs a URL, an image needs image data and "none" clears every
// field.
func SetEnhancement(words []Word, i int, e Enhancement) ([]Word, error) {
	if err := checkIndex(words, i); err != nil {
		return nil, err
	}
	switch e.Type {
	case EnhancementNone, "":
		e = DefaultEnhancement()
	case EnhancementLink:
		e.URL = strings.TrimSpace(e.URL)
		if e.URL == "" {
			return nil, fmt.Errorf("%w: link requires a url", ErrInvalidEnhancement)
		}
		e.ImageData = ""
	case EnhancementImage:
		if e.ImageData == "" {
			return nil, fmt.Errorf("%w: image requires image data", ErrInvalidEnhancement)
		}
		e.URL = ""
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidEnhancement, e.Type)
	}
	out := slices.Clone(words)
	out[i].Enhancement = e
	return out, nil
}

// Recolor returns a copy of words with every colour set to the theme
// default.
func Recolor(words []Word, dark bool) []Word {
	out := slices.Clone(words)
	color := ThemeColor(dark)
	for i := range out {
		out[i].Color = color
	}
	return out
}

func checkIndex(words []Word, i int) error {
	if i < 0 || i >= len(words) {
		return fmt.Errorf("%w: %d (have %d)", ErrWordIndexOutOfRange, i, len(words))
	}
	return nil
}
