// Package export renders a session's word sequence as subtitles and imports
// subtitle files as transcript text.
//
// Subtitles are built with go-astisub at one of two granularities: one cue
// per sentence, or one cue per word for karaoke-style players. Speaker labels
// are resolved to display names when a speaker registry is supplied.
package export

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/asticode/go-astisub"

	"github.com/MrWong99/podsync/pkg/timecode"
	"github.com/MrWong99/podsync/pkg/transcript"
	"github.com/MrWong99/podsync/pkg/words"
)

// Format is a subtitle file format.
type Format string

// Supported formats.
const (
	SRT Format = "srt"
	VTT Format = "vtt"
)

// Granularity selects how words are grouped into cues.
type Granularity string

// Supported granularities.
const (
	BySentence Granularity = "sentence"
	ByWord     Granularity = "word"
)

// ErrUnsupportedFormat is returned for unknown formats or granularities.
var ErrUnsupportedFormat = errors.New("export: unsupported format")

// ParseFormat parses a format name. The empty string selects [SRT].
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return SRT, nil
	case SRT, VTT:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// ParseGranularity parses a granularity name. The empty string selects
// [BySentence].
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case "":
		return BySentence, nil
	case BySentence, ByWord:
		return g, nil
	default:
		return "", fmt.Errorf("%w: granularity %q", ErrUnsupportedFormat, s)
	}
}

// ContentType returns the MIME type for f.
func ContentType(f Format) string {
	if f == VTT {
		return "text/vtt; charset=utf-8"
	}
	return "application/x-subrip; charset=utf-8"
}

// Build converts ws into subtitles. speakers maps transcript labels to
// display names and may be nil.
func Build(ws []words.Word, speakers []transcript.Speaker, g Granularity) *astisub.Subtitles {
	names := make(map[string]string, len(speakers))
	for _, sp := range speakers {
		names[sp.Name] = sp.DisplayName
	}
	displayName := func(label string) string {
		if n, ok := names[label]; ok && n != "" {
			return n
		}
		return label
	}

	subs := astisub.NewSubtitles()
	add := func(start, end float64, speaker, text string) {
		subs.Items = append(subs.Items, &astisub.Item{
			Index:   len(subs.Items) + 1,
			StartAt: seconds(start),
			EndAt:   seconds(end),
			Lines: []astisub.Line{{
				VoiceName: displayName(speaker),
				Items:     []astisub.LineItem{{Text: text}},
			}},
		})
	}

	if g == ByWord {
		for _, w := range ws {
			add(w.Start, w.End, w.Speaker, w.Word)
		}
		return subs
	}
	for _, group := range words.Group(ws) {
		texts := make([]string, len(group))
		for i, w := range group {
			texts[i] = w.Word
		}
		first, last := group[0], group[len(group)-1]
		add(first.Start, last.End, first.Speaker, strings.Join(texts, " "))
	}
	return subs
}

func seconds(s float64) time.Duration {
	if s < 0 {
		s = 0
	}
	return time.Duration(s * float64(time.Second))
}

// Write renders ws in format f. SRT has no voice tags, so speakers are
// written as a "Name: " prefix instead.
func Write(w io.Writer, ws []words.Word, speakers []transcript.Speaker, f Format, g Granularity) error {
	subs := Build(ws, speakers, g)
	var err error
	switch f {
	case VTT:
		err = subs.WriteToWebVTT(w)
	case SRT:
		prefixSpeakers(subs)
		err = subs.WriteToSRT(w)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
	if err != nil {
		return fmt.Errorf("export: write %s: %w", f, err)
	}
	return nil
}

func prefixSpeakers(subs *astisub.Subtitles) {
	for _, item := range subs.Items {
		for i := range item.Lines {
			line := &item.Lines[i]
			if line.VoiceName == "" || len(line.Items) == 0 {
				continue
			}
			line.Items[0].Text = line.VoiceName + ": " + line.Items[0].Text
			line.VoiceName = ""
		}
	}
}

// ToTranscript reads a subtitle file and renders it as timestamped
// transcript text accepted by [transcript.Parse]. Cue times are truncated
// to whole seconds and voice names become speaker labels.
func ToTranscript(r io.Reader, f Format) (string, error) {
	var (
		subs *astisub.Subtitles
		err  error
	)
	switch f {
	case SRT:
		subs, err = astisub.ReadFromSRT(r)
	case VTT:
		subs, err = astisub.ReadFromWebVTT(r)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
	if err != nil {
		return "", fmt.Errorf("export: read %s: %w", f, err)
	}

	var sb strings.Builder
	for _, item := range subs.Items {
		var voice string
		var parts []string
		for _, line := range item.Lines {
			if voice == "" {
				voice = line.VoiceName
			}
			for _, li := range line.Items {
				if t := strings.TrimSpace(li.Text); t != "" {
					parts = append(parts, t)
				}
			}
		}
		if len(parts) == 0 {
			continue
		}
		sb.WriteString("[")
		sb.WriteString(timecode.Format(item.StartAt.Seconds()))
		sb.WriteString("] ")
		if voice != "" {
			sb.WriteString(voice)
			sb.WriteString(": ")
		}
		sb.WriteString(strings.Join(parts, " "))
		sb.WriteString("\n")
	}
	return sb.String(), nil
}
