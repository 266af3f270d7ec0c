// Package session owns one transcript/audio pairing and the live playback
// state derived from it.
//
// A [Session] keeps its editable content in an immutable [Snapshot] that is
// swapped atomically on every change. The playback poller reads the snapshot
// once per tick, so edits never block or tear a tick. Score animation runs on
// a separate [playback.Animator]; both loops are started by [Session.Start]
// and stopped synchronously by [Session.Close].
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/podsync/internal/observe"
	"github.com/MrWong99/podsync/internal/playback"
	"github.com/MrWong99/podsync/pkg/provider/classifier"
	"github.com/MrWong99/podsync/pkg/sentiment"
	"github.com/MrWong99/podsync/pkg/transcript"
	"github.com/MrWong99/podsync/pkg/words"
)

// Sentinel errors returned by [Session] operations.
var (
	ErrAnalysisInProgress = errors.New("session: analysis already in progress")
	ErrNoClassifier       = errors.New("session: no classifier configured")
	ErrNoTranscript       = errors.New("session: no transcript loaded")
	ErrStaleAnalysis      = errors.New("session: transcript changed during analysis")
	ErrInvalidSentence    = errors.New("session: invalid sentence index")
	ErrUnknownSpeaker     = errors.New("session: unknown speaker")
	ErrNotManualClock     = errors.New("session: clock does not accept position reports")
	ErrClosed             = errors.New("session: closed")
)

// subscriberBuffer is the per-subscriber channel capacity. A subscriber that
// falls further behind misses frames.
const subscriberBuffer = 8

// Snapshot is the immutable content of a session. Slices and maps in a
// published snapshot are never mutated; every change produces a new one.
type Snapshot struct {
	Sentences []transcript.Sentence `json:"sentences"`
	Words     []words.Word          `json:"words"`
	Sentiment sentiment.Data        `json:"sentiment"`
	Speakers  []transcript.Speaker  `json:"speakers"`
	AudioRef  string                `json:"audio_ref,omitempty"`
	DarkTheme bool                  `json:"dark_theme"`

	// Generation changes only when the transcript is replaced.
	Generation uint64 `json:"generation"`

	// Version changes on every edit.
	Version uint64 `json:"version"`
}

// State is the per-tick view published to subscribers.
type State struct {
	Position       float64         `json:"position"`
	Loaded         bool            `json:"loaded"`
	ActiveWord     int             `json:"active_word"`
	ActiveSentence int             `json:"active_sentence"`
	Speaker        string          `json:"speaker,omitempty"`
	Score          sentiment.Score `json:"score"`
	Mood           sentiment.Mood  `json:"mood"`
	Intensity      float64         `json:"intensity"`
	Analyzing      bool            `json:"analyzing"`
	Error          string          `json:"error,omitempty"`
	Version        uint64          `json:"version"`
}

// Option configures a [Session].
type Option func(*Session)

// WithClassifier sets the backend used by [Session.Analyze]. name labels
// metrics and spans.
func WithClassifier(p classifier.Provider, name string) Option {
	return func(s *Session) {
		s.classifier = p
		s.classifierName = name
	}
}

// WithClock replaces the default [playback.ManualClock].
func WithClock(c playback.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithPollInterval sets the playback poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Session) { s.pollInterval = d }
}

// WithFrameInterval sets the score animation frame interval.
func WithFrameInterval(d time.Duration) Option {
	return func(s *Session) { s.frameInterval = d }
}

// WithAnimationDuration sets the length of one score transition.
func WithAnimationDuration(d time.Duration) Option {
	return func(s *Session) { s.engineOpts = append(s.engineOpts, sentiment.WithAnimationDuration(d)) }
}

// WithTrailingPad sets how long the last sentence of a transcript lasts.
func WithTrailingPad(seconds float64) Option {
	return func(s *Session) { s.trailingPad = seconds }
}

// WithIntensity sets the initial mood intensity.
func WithIntensity(x float64) Option {
	return func(s *Session) { s.intensity = clamp01(x) }
}

// WithMetrics records session metrics to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// Session is one live transcript/audio pairing. All methods are safe for
// concurrent use.
type Session struct {
	id             string
	classifier     classifier.Provider
	classifierName string
	clock          playback.Clock
	pollInterval   time.Duration
	frameInterval  time.Duration
	trailingPad    float64
	engineOpts     []sentiment.EngineOption
	metrics        *observe.Metrics

	engine   *sentiment.Engine
	poller   *playback.Poller
	animator *playback.Animator

	// mu serialises writers of snap and guards the settings below.
	mu        sync.Mutex
	snap      atomic.Pointer[Snapshot]
	intensity float64
	lastErr   error
	analyzing atomic.Bool

	lastMu sync.Mutex
	last   State

	autosaveMu sync.Mutex
	autosaver  *Autosaver

	subMu   sync.Mutex
	subs    map[int]chan State
	nextSub int
	closed  bool

	closeOnce sync.Once

	// afterSnapshot runs in Tick between reading the snapshot and feeding
	// the engine. Tests use it to interleave writers.
	afterSnapshot func()
}

// New creates an idle session. Call [Session.Start] to run its loops.
func New(id string, opts ...Option) *Session {
	s := &Session{
		id:          id,
		trailingPad: transcript.DefaultTrailingPad,
		intensity:   sentiment.DefaultIntensity,
		subs:        make(map[int]chan State),
	}
	for _, o := range opts {
		o(s)
	}
	if s.clock == nil {
		s.clock = playback.NewManualClock()
	}
	s.engine = sentiment.NewEngine(s.engineOpts...)
	s.poller = playback.NewPoller(s.clock, s.pollInterval, s.Tick)
	s.animator = playback.NewAnimator(s.frameInterval, s.step)
	s.snap.Store(&Snapshot{Sentiment: sentiment.Data{}})
	s.last = State{ActiveWord: words.NoWord, ActiveSentence: -1}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Clock returns the session's playback clock.
func (s *Session) Clock() playback.Clock { return s.clock }

// Snapshot returns the current content snapshot. Callers must not mutate it.
func (s *Session) Snapshot() *Snapshot { return s.snap.Load() }

// Start launches the playback poller. The animator is started on demand.
func (s *Session) Start(ctx context.Context) {
	s.poller.Start(ctx)
}

// Close stops both loops, flushes the autosaver if one is attached and
// closes every subscriber channel. It is safe to call multiple times.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.poller.Stop()
		s.animator.Stop()
		s.stopAutosave(true)

		s.subMu.Lock()
		s.closed = true
		for id, ch := range s.subs {
			close(ch)
			delete(s.subs, id)
			s.subscriberGone()
		}
		s.subMu.Unlock()
		slog.Debug("session closed", "session_id", s.id)
	})
}

// closeSaveTimeout bounds the final save performed by [Session.Close].
const closeSaveTimeout = 10 * time.Second

// SetAutosaver replaces the session's autosaver and starts it. A previous
// autosaver is stopped without a final save.
func (s *Session) SetAutosaver(ctx context.Context, a *Autosaver) {
	s.stopAutosave(false)
	s.autosaveMu.Lock()
	s.autosaver = a
	s.autosaveMu.Unlock()
	a.Start(ctx)
}

func (s *Session) stopAutosave(flush bool) {
	s.autosaveMu.Lock()
	a := s.autosaver
	s.autosaver = nil
	s.autosaveMu.Unlock()
	if a == nil {
		return
	}
	a.Stop()
	if !flush {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeSaveTimeout)
	defer cancel()
	if err := a.SaveNow(ctx); err != nil {
		slog.Warn("final autosave failed", "session_id", s.id, "err", err)
	}
}

// update applies fn to a shallow copy of the current snapshot and publishes
// the result. fn must replace, never mutate, slices and maps it changes.
func (s *Session) update(fn func(next *Snapshot) error) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.snap.Load()
	next := *cur
	if err := fn(&next); err != nil {
		return nil, err
	}
	next.Version = cur.Version + 1
	s.snap.Store(&next)
	return &next, nil
}

// LoadTranscript parses text and replaces the session content in one step.
// Sentiment data and the score are reset. Speaker profile edits are kept for
// speakers that still appear in the new transcript.
func (s *Session) LoadTranscript(text string) *Snapshot {
	sentences := transcript.Parse(text, transcript.WithTrailingPad(s.trailingPad))

	snap, _ := s.update(func(next *Snapshot) error {
		next.Sentences = sentences
		next.Words = words.Synthesize(sentences, words.WithDarkTheme(next.DarkTheme))
		next.Sentiment = sentiment.Data{}
		next.Speakers = mergeSpeakers(next.Speakers, transcript.Speakers(sentences))
		next.Generation++
		return nil
	})
	s.animator.Stop()
	s.engine.Reset()

	if s.metrics != nil {
		s.metrics.TranscriptWords.Record(context.Background(), int64(len(snap.Words)))
	}
	slog.Info("transcript loaded",
		"session_id", s.id,
		"sentences", len(snap.Sentences),
		"words", len(snap.Words),
		"speakers", len(snap.Speakers),
	)
	return snap
}

// mergeSpeakers returns discovered, carrying over display names and photos
// from previous profiles with the same name.
func mergeSpeakers(previous, discovered []transcript.Speaker) []transcript.Speaker {
	byName := make(map[string]transcript.Speaker, len(previous))
	for _, sp := range previous {
		byName[sp.Name] = sp
	}
	out := make([]transcript.Speaker, len(discovered))
	for i, sp := range discovered {
		if old, ok := byName[sp.Name]; ok {
			sp.DisplayName = old.DisplayName
			sp.Photo = old.Photo
		}
		out[i] = sp
	}
	return out
}

// LoadAudio records the media reference and rewinds playback.
func (s *Session) LoadAudio(ref string) {
	_, _ = s.update(func(next *Snapshot) error {
		next.AudioRef = ref
		return nil
	})
	s.clock.Reset()
	s.animator.Stop()
	s.engine.Reset()
	slog.Info("audio loaded", "session_id", s.id, "ref", ref)
}

// Restore replaces the session content with a previously saved snapshot.
func (s *Session) Restore(saved Snapshot) *Snapshot {
	snap, _ := s.update(func(next *Snapshot) error {
		next.Sentences = slices.Clone(saved.Sentences)
		next.Words = slices.Clone(saved.Words)
		next.Sentiment = maps.Clone(saved.Sentiment)
		if next.Sentiment == nil {
			next.Sentiment = sentiment.Data{}
		}
		next.Speakers = slices.Clone(saved.Speakers)
		next.AudioRef = saved.AudioRef
		next.DarkTheme = saved.DarkTheme
		next.Generation++
		return nil
	})
	s.clock.Reset()
	s.animator.Stop()
	s.engine.Reset()
	return snap
}

// Analyze classifies every sentence of the current transcript and replaces
// the sentiment data on success. Only one analysis runs at a time. On
// failure the existing data is kept and the error, which wraps
// [classifier.ErrRequestFailed], is recorded until [Session.DismissError] or
// the next attempt.
func (s *Session) Analyze(ctx context.Context) error {
	if s.classifier == nil {
		return ErrNoClassifier
	}
	if !s.analyzing.CompareAndSwap(false, true) {
		return ErrAnalysisInProgress
	}
	defer s.analyzing.Store(false)

	s.setError(nil)

	snap := s.snap.Load()
	texts := words.SentenceTexts(snap.Words)
	if len(texts) == 0 {
		return ErrNoTranscript
	}
	batch := make([]classifier.Sentence, len(texts))
	for i, t := range texts {
		batch[i] = classifier.Sentence{SentenceIndex: t.SentenceIndex, Text: t.Text}
	}

	ctx, span := observe.StartSessionSpan(ctx, "session.analyze", s.id,
		attribute.String("classifier", s.classifierName),
		attribute.Int("sentences", len(batch)),
	)
	defer span.End()

	start := time.Now()
	docs, err := s.classifier.Classify(ctx, batch)
	if s.metrics != nil {
		s.metrics.RecordClassification(ctx, s.classifierName, time.Since(start), err)
	}
	if err != nil {
		if !errors.Is(err, classifier.ErrRequestFailed) {
			err = fmt.Errorf("%w: %w", classifier.ErrRequestFailed, err)
		}
		err = fmt.Errorf("session: analyze: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.setError(err)
		observe.Logger(ctx).Warn("sentiment analysis failed", "err", err)
		return err
	}

	data, skipped := classifier.ToData(docs)
	for _, e := range skipped {
		observe.Logger(ctx).Warn("classifier document skipped", "err", e)
	}

	_, err = s.update(func(next *Snapshot) error {
		if next.Generation != snap.Generation {
			return ErrStaleAnalysis
		}
		next.Sentiment = data
		return nil
	})
	if err != nil {
		return err
	}
	observe.Logger(ctx).Info("sentiment analysis complete",
		"sentences", len(batch),
		"classified", len(data),
		"duration", time.Since(start),
	)
	return nil
}

// Analyzing reports whether a classification request is in flight.
func (s *Session) Analyzing() bool { return s.analyzing.Load() }

// LastError returns the error of the last failed analysis, if any.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// DismissError clears the recorded analysis error.
func (s *Session) DismissError() { s.setError(nil) }

func (s *Session) setError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// SetSentiment records a manual label for sentence i. Indices beyond the
// transcript are stored but never reached by playback.
func (s *Session) SetSentiment(i int, label sentiment.Label) error {
	if i < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSentence, i)
	}
	if _, err := sentiment.ParseLabel(string(label)); err != nil {
		return fmt.Errorf("session: set sentiment: %w", err)
	}
	_, err := s.update(func(next *Snapshot) error {
		data := maps.Clone(next.Sentiment)
		if data == nil {
			data = sentiment.Data{}
		}
		data[i] = sentiment.Manual(label)
		next.Sentiment = data
		return nil
	})
	return err
}

// RenameWord replaces the text of word i.
func (s *Session) RenameWord(i int, text string) error {
	return s.editWords(func(ws []words.Word) ([]words.Word, error) {
		return words.Rename(ws, i, text)
	})
}

// SetAnimation replaces the animation of word i.
func (s *Session) SetAnimation(i int, a words.Animation) error {
	return s.editWords(func(ws []words.Word) ([]words.Word, error) {
		return words.SetAnimation(ws, i, a)
	})
}

// SetEnhancement replaces the enhancement of word i.
func (s *Session) SetEnhancement(i int, e words.Enhancement) error {
	return s.editWords(func(ws []words.Word) ([]words.Word, error) {
		return words.SetEnhancement(ws, i, e)
	})
}

func (s *Session) editWords(fn func([]words.Word) ([]words.Word, error)) error {
	_, err := s.update(func(next *Snapshot) error {
		ws, err := fn(next.Words)
		if err != nil {
			return fmt.Errorf("session: edit word: %w", err)
		}
		next.Words = ws
		return nil
	})
	return err
}

// SetTheme switches between the dark and light theme, recolouring every word.
func (s *Session) SetTheme(dark bool) {
	_, _ = s.update(func(next *Snapshot) error {
		next.DarkTheme = dark
		next.Words = words.Recolor(next.Words, dark)
		return nil
	})
}

// UpdateSpeaker edits the profile of the speaker labelled name. An empty
// displayName resets it to the label.
func (s *Session) UpdateSpeaker(name, displayName, photo string) (transcript.Speaker, error) {
	var updated transcript.Speaker
	_, err := s.update(func(next *Snapshot) error {
		i := slices.IndexFunc(next.Speakers, func(sp transcript.Speaker) bool { return sp.Name == name })
		if i < 0 {
			return fmt.Errorf("%w: %q", ErrUnknownSpeaker, name)
		}
		speakers := slices.Clone(next.Speakers)
		if displayName == "" {
			displayName = name
		}
		speakers[i].DisplayName = displayName
		speakers[i].Photo = photo
		next.Speakers = speakers
		updated = speakers[i]
		return nil
	})
	return updated, err
}

// SetTracking enables or disables score tracking. The score resets either way.
func (s *Session) SetTracking(on bool) {
	s.animator.Stop()
	s.engine.SetTracking(on)
}

// SetIntensity sets the mood intensity, clamped to [0, 1].
func (s *Session) SetIntensity(x float64) {
	s.mu.Lock()
	s.intensity = clamp01(x)
	s.mu.Unlock()
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

// ReportPosition forwards a remote player's position to a manual clock.
func (s *Session) ReportPosition(pos float64, playing bool) error {
	mc, ok := s.clock.(*playback.ManualClock)
	if !ok {
		return ErrNotManualClock
	}
	mc.Report(pos, playing)
	return nil
}

// Tick handles one clock sample: it resolves the active word and sentence,
// feeds the score engine and publishes the resulting state. It runs on the
// poller goroutine.
func (s *Session) Tick(pos float64, loaded bool) {
	// Writers swap the snapshot before resetting the engine, so reading the
	// epoch first rejects sentiment from a snapshot that was replaced
	// mid-tick.
	epoch := s.engine.Epoch()
	snap := s.snap.Load()
	if s.afterSnapshot != nil {
		s.afterSnapshot()
	}

	active, sentence, speaker := words.NoWord, -1, ""
	if loaded {
		active = words.ActiveIndex(snap.Words, pos)
		if active != words.NoWord {
			w := snap.Words[active]
			sentence = w.SentenceIndex
			speaker = w.Speaker
		}
	}
	if s.engine.ObserveAt(epoch, sentence, snap.Sentiment) {
		s.animator.Kick()
	}
	if s.metrics != nil {
		s.metrics.PollTicks.Add(context.Background(), 1)
	}

	s.lastMu.Lock()
	s.last.Position = pos
	s.last.Loaded = loaded
	s.last.ActiveWord = active
	s.last.ActiveSentence = sentence
	s.last.Speaker = speaker
	s.lastMu.Unlock()

	s.publish(s.State())
}

func (s *Session) step(now time.Time) bool {
	_, done := s.engine.Step(now)
	return done
}

// State returns the current playback state.
func (s *Session) State() State {
	s.lastMu.Lock()
	st := s.last
	s.lastMu.Unlock()

	s.mu.Lock()
	intensity := s.intensity
	lastErr := s.lastErr
	s.mu.Unlock()

	st.Score = s.engine.Snapshot()
	st.Mood = sentiment.MoodOf(st.Score.Displayed, intensity)
	st.Intensity = intensity
	st.Analyzing = s.analyzing.Load()
	if lastErr != nil {
		st.Error = lastErr.Error()
	}
	st.Version = s.snap.Load().Version
	return st
}

// Subscribe returns a channel receiving every published state and a function
// that cancels the subscription. States are dropped for a subscriber whose
// buffer is full. The channel is closed on cancel or [Session.Close].
func (s *Session) Subscribe() (<-chan State, func()) {
	ch := make(chan State, subscriberBuffer)

	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	if s.metrics != nil {
		s.metrics.ActiveSubscribers.Add(context.Background(), 1)
	}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			if c, ok := s.subs[id]; ok {
				close(c)
				delete(s.subs, id)
				s.subscriberGone()
			}
		})
	}
}

func (s *Session) subscriberGone() {
	if s.metrics != nil {
		s.metrics.ActiveSubscribers.Add(context.Background(), -1)
	}
}

func (s *Session) publish(st State) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- st:
		default:
		}
	}
}
