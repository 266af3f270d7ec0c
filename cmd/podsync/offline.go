package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/MrWong99/podsync/internal/export"
	"github.com/MrWong99/podsync/internal/playback"
	"github.com/MrWong99/podsync/internal/session"
	"github.com/MrWong99/podsync/pkg/timecode"
	"github.com/MrWong99/podsync/pkg/transcript"
	"github.com/MrWong99/podsync/pkg/words"
)

// errEmptyTranscript is returned when a transcript file has no timed
// sentences.
var errEmptyTranscript = errors.New("transcript has no timed sentences")

// readTranscript loads path as transcript text. .srt and .vtt files are
// converted; anything else is read as the bracketed transcript format.
func readTranscript(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".srt":
		return export.ToTranscript(f, export.SRT)
	case ".vtt":
		return export.ToTranscript(f, export.VTT)
	}
	raw, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// runExport converts the transcript at in to subtitles written to out.
func runExport(in string, out io.Writer, format, granularity string) error {
	f, err := export.ParseFormat(format)
	if err != nil {
		return err
	}
	g, err := export.ParseGranularity(granularity)
	if err != nil {
		return err
	}
	text, err := readTranscript(in)
	if err != nil {
		return fmt.Errorf("read transcript: %w", err)
	}

	sentences := transcript.Parse(text)
	ws := words.Synthesize(sentences)
	if len(ws) == 0 {
		return errEmptyTranscript
	}
	if err := export.Write(out, ws, transcript.Speakers(sentences), f, g); err != nil {
		return err
	}
	slog.Info("transcript exported", "input", in, "format", f, "granularity", g, "words", len(ws))
	return nil
}

// runPlay plays the transcript at path on a wall clock and prints every
// word as it becomes active, along with the displayed sentiment score. It
// returns when the last word ends or ctx is cancelled.
func runPlay(ctx context.Context, sessions *session.Manager, path string, analyze bool, out io.Writer) error {
	text, err := readTranscript(path)
	if err != nil {
		return fmt.Errorf("read transcript: %w", err)
	}

	clock := playback.NewWallClock()
	sess, err := sessions.Create(session.WithClock(clock))
	if err != nil {
		return err
	}
	defer func() { _ = sessions.Delete(sess.ID()) }()

	snap := sess.LoadTranscript(text)
	if len(snap.Words) == 0 {
		return errEmptyTranscript
	}
	if analyze {
		if err := sess.Analyze(ctx); err != nil {
			slog.Warn("sentiment analysis failed; playing without scores", "err", err)
		}
	}
	end := snap.Words[len(snap.Words)-1].End

	states, cancel := sess.Subscribe()
	defer cancel()
	clock.Play()

	last := words.NoWord
	var speaker string
	for {
		select {
		case <-ctx.Done():
			return nil
		case st, ok := <-states:
			if !ok {
				return nil
			}
			if st.ActiveWord != last && st.ActiveWord >= 0 && st.ActiveWord < len(snap.Words) {
				if st.Speaker != speaker && st.Speaker != "" {
					speaker = st.Speaker
					fmt.Fprintf(out, "\n%s:\n", speaker)
				}
				printWord(out, snap.Words[st.ActiveWord], st)
			}
			last = st.ActiveWord
			if st.Position >= end {
				return nil
			}
		}
	}
}

func printWord(out io.Writer, w words.Word, st session.State) {
	fmt.Fprintf(out, "  [%s] %-20s score %+6.2f  %s\n",
		timecode.Format(w.Start), w.Word, st.Score.Displayed, st.Mood.Polarity)
}
