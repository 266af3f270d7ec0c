package words

import (
	"slices"
)

// Animation describes how a word is animated when it becomes active.
type Animation struct {
	Type      string  `json:"type"`
	Duration  float64 `json:"duration"`
	Delay     float64 `json:"delay"`
	Intensity string  `json:"intensity"`
}

// AnimationNone is the animation type that disables animation.
const AnimationNone = "none"

// DefaultAnimation returns the animation assigned to fresh words.
func DefaultAnimation() Animation {
	return Animation{Type: AnimationNone, Duration: 1.2, Delay: 0, Intensity: "normal"}
}

// AnimationGroup is a named set of animation types offered to editors.
type AnimationGroup struct {
	Name  string   `json:"name"`
	Types []string `json:"types"`
}

// animationCatalogue lists every animation type a renderer knows how to draw.
var animationCatalogue = []AnimationGroup{
	{Name: "positive", Types: []string{"joy", "happiness", "excitement", "love", "gratitude", "hope", "pride", "relief"}},
	{Name: "negative", Types: []string{"sadness", "anger", "fear", "disgust", "envy", "shame", "guilt", "anxiety"}},
	{Name: "misc", Types: []string{"none", "surprise", "confusion", "curiosity", "determination", "mystery"}},
	{Name: "basic", Types: []string{"fadeIn", "bounce", "pulse", "glow", "slideUp", "typewriter", "shake"}},
}

// AnimationCatalogue returns a copy of the known animation groups.
func AnimationCatalogue() []AnimationGroup {
	out := make([]AnimationGroup, len(animationCatalogue))
	for i, g := range animationCatalogue {
		out[i] = AnimationGroup{Name: g.Name, Types: slices.Clone(g.Types)}
	}
	return out
}

// KnownAnimation reports whether typ is in the catalogue.
func KnownAnimation(typ string) bool {
	for _, g := range animationCatalogue {
		if slices.Contains(g.Types, typ) {
			return true
		}
	}
	return false
}

// Enhancement types.
const (
	EnhancementNone  = "none"
	EnhancementLink  = "link"
	EnhancementImage = "image"
)

// Enhancement attaches a hyperlink or an image to a word.
type Enhancement struct {
	Type      string `json:"type"`
	URL       string `json:"url,omitempty"`
	ImageData string `json:"image_data,omitempty"`
	Title     string `json:"title,omitempty"`
}

// DefaultEnhancement returns the empty enhancement.
func DefaultEnhancement() Enhancement {
	return Enhancement{Type: EnhancementNone}
}
