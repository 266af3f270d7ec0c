package transcript

// speakerPalette holds the colours assigned to discovered speakers.
var speakerPalette = [...]string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#96CEB4", "#FFEAA7",
	"#DDA0DD", "#98D8C8", "#F7DC6F", "#BB8FCE", "#85C1E9",
}

// Speaker is a speaker profile discovered in a transcript. DisplayName and
// Photo are editable by the user; Name is the label as it appears in the
// transcript and is the profile's key.
type Speaker struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Photo       string `json:"photo,omitempty"`
	Color       string `json:"color"`
}

// Speakers returns the unique speakers of sentences in order of first
// appearance. Sentences without a speaker are ignored.
func Speakers(sentences []Sentence) []Speaker {
	seen := make(map[string]struct{})
	var out []Speaker
	for _, s := range sentences {
		if s.Speaker == "" {
			continue
		}
		if _, ok := seen[s.Speaker]; ok {
			continue
		}
		seen[s.Speaker] = struct{}{}
		out = append(out, Speaker{
			Name:        s.Speaker,
			DisplayName: s.Speaker,
			Color:       SpeakerColor(s.Speaker),
		})
	}
	return out
}

// SpeakerColor picks a stable palette colour for name.
func SpeakerColor(name string) string {
	var h int32
	for _, r := range name {
		h = int32(r) + (h << 5) - h
	}
	idx := int64(h)
	if idx < 0 {
		idx = -idx
	}
	return speakerPalette[idx%int64(len(speakerPalette))]
}
