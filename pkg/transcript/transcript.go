// Package transcript turns human-authored, timestamped transcript text into
// ordered, speaker-attributed [Sentence] records.
//
// The accepted input is one utterance per line:
//
//	[00:00:01] Alice: Hello there.
//	[00:00:03] How are you?
//	[00:00:06] [Bob] Fine, thanks.
//
// Parsing is tolerant: lines without a leading bracketed timestamp are
// skipped, and a bracketed value that is not a valid HH:MM:SS timestamp drops
// only the offending line. A line without its own speaker label continues
// the most recent speaker.
package transcript

import (
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/MrWong99/podsync/pkg/timecode"
)

// DefaultTrailingPad is the duration in seconds given to the final sentence,
// which has no following timestamp to bound it.
const DefaultTrailingPad = 4.0

// Sentence is one parsed timestamped utterance.
type Sentence struct {
	// Start is the utterance start in seconds.
	Start float64 `json:"start"`

	// End is the start of the next sentence, or Start plus the trailing pad
	// for the last one.
	End float64 `json:"end"`

	// Text is the spoken content with any speaker marker removed. It is
	// empty for a line that carries only a speaker label.
	Text string `json:"text"`

	// Speaker is the attributed speaker label. Empty means unknown.
	Speaker string `json:"speaker,omitempty"`
}

// Duration returns End - Start. It may be zero or negative when the source
// timestamps are out of order.
func (s Sentence) Duration() float64 {
	return s.End - s.Start
}

var (
	// lineRe captures "[<stamp>] <content>". The stamp itself is validated
	// by timecode.Parse so malformed stamps can be reported.
	lineRe = regexp.MustCompile(`^\[([^\]]*)\]\s+(.*)$`)

	// speakerRules are tried in order; the first match wins. The order is
	// significant: "Speaker 1: hi" is claimed by the colon rule before the
	// numbered-speaker rule is ever consulted.
	speakerRules = []*regexp.Regexp{
		regexp.MustCompile(`^([^:]+):\s*(.*)$`),
		regexp.MustCompile(`^([^-]+)\s*-\s*(.*)$`),
		regexp.MustCompile(`^(\[.*?\])\s*(.*)$`),
		regexp.MustCompile(`(?i)^(Speaker\s+\d+)\s*[:-]\s*(.*)$`),
	}

	bracketStripper = strings.NewReplacer("[", "", "]", "")
)

// Option configures [Parse] and [ParseReader].
type Option func(*parser)

// WithTrailingPad overrides the duration assigned to the last sentence.
// Non-positive values are ignored.
func WithTrailingPad(seconds float64) Option {
	return func(p *parser) {
		if seconds > 0 {
			p.trailingPad = seconds
		}
	}
}

// WithLogger sets the logger used to report dropped lines. Defaults to
// [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(p *parser) {
		if l != nil {
			p.log = l
		}
	}
}

type parser struct {
	trailingPad float64
	log         *slog.Logger
}

func newParser(opts []Option) *parser {
	p := &parser{trailingPad: DefaultTrailingPad, log: slog.Default()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Parse converts raw transcript text into an ordered slice of sentences.
// Empty input yields an empty, non-nil slice. Timestamped lines with no text
// after the speaker label are kept as empty sentences.
func Parse(text string, opts ...Option) []Sentence {
	return newParser(opts).parseLines(splitLines(text))
}

// ParseReader is like [Parse] but reads the transcript from r. The returned
// error only reports read failures.
func ParseReader(r io.Reader, opts ...Option) ([]Sentence, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("transcript: read: %w", err)
	}
	return Parse(string(data), opts...), nil
}

// splitLines splits on any newline style, trims every line and drops blank
// ones.
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func (p *parser) parseLines(lines []string) []Sentence {
	out := make([]Sentence, 0, len(lines))
	lastSpeaker := ""

	for n, line := range lines {
		m := lineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		start, err := timecode.Parse(m[1])
		if err != nil {
			p.log.Debug("transcript: dropping line with malformed timestamp",
				"line", n+1,
				"err", err,
			)
			continue
		}
		content := m[2]

		speaker, text := extractSpeaker(content)
		if speaker == "" && lastSpeaker != "" {
			speaker = lastSpeaker
			text = content
		}
		if speaker != "" {
			lastSpeaker = speaker
		}

		// A label-only line keeps its slot: it bounds the previous sentence
		// and holds its sentence index, but synthesizes no words.
		out = append(out, Sentence{Start: start, Text: strings.TrimSpace(text), Speaker: speaker})
	}

	for i := 0; i < len(out)-1; i++ {
		out[i].End = out[i+1].Start
	}
	if len(out) > 0 {
		last := &out[len(out)-1]
		last.End = last.Start + p.trailingPad
	}
	return out
}

// extractSpeaker applies the ordered speaker rules to content. When no rule
// matches, or the matched label is empty, speaker is "" and text is the
// best available remainder.
func extractSpeaker(content string) (speaker, text string) {
	for _, re := range speakerRules {
		m := re.FindStringSubmatch(content)
		if m == nil {
			continue
		}
		label := strings.TrimSpace(bracketStripper.Replace(strings.TrimSpace(m[1])))
		return label, strings.TrimSpace(m[2])
	}
	return "", content
}
