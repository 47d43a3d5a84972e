package speech

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hammamikhairi/voicecart/internal/domain"
	"github.com/hammamikhairi/voicecart/internal/logger"
	"github.com/hammamikhairi/voicecart/internal/metrics"
)

// Default prosody for spoken feedback.
const (
	DefaultRate   = 0.9
	DefaultPitch  = 1.0
	DefaultVolume = 1.0
	DefaultLang   = "en-US"

	// DefaultSpeechDedup collapses identical requests issued this close
	// together.
	DefaultSpeechDedup = 2000 * time.Millisecond
)

// SpeakOptions tune one utterance. Zero values fall back to the output's
// defaults. The callbacks run on the playback goroutine.
type SpeakOptions struct {
	Rate    float64
	Pitch   float64
	Volume  float64
	Lang    string
	OnStart func()
	OnEnd   func()
	OnError func(error)
}

// Suppression says why a Playback produced no audio.
type Suppression int

const (
	NotSuppressed Suppression = iota
	SuppressedEmpty
	SuppressedDuplicate
)

func (s Suppression) String() string {
	switch s {
	case SuppressedEmpty:
		return "empty"
	case SuppressedDuplicate:
		return "duplicate"
	default:
		return "none"
	}
}

// Playback is the pending result of one speak request. Done is closed
// once the utterance has finished, failed, been superseded, or was
// suppressed without audio.
type Playback struct {
	ID   string
	Text string

	done       chan struct{}
	err        error
	suppressed Suppression
}

func newPlayback(text string) *Playback {
	return &Playback{ID: uuid.NewString(), Text: text, done: make(chan struct{})}
}

func finishedPlayback(text string, err error, why Suppression) *Playback {
	p := newPlayback(text)
	p.suppressed = why
	p.finish(err)
	return p
}

func (p *Playback) finish(err error) {
	p.err = err
	close(p.done)
}

// Done is closed when the playback is over.
func (p *Playback) Done() <-chan struct{} { return p.done }

// Err returns the outcome. Only meaningful after Done is closed.
func (p *Playback) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Suppressed reports whether the request was dropped without audio.
func (p *Playback) Suppressed() Suppression { return p.suppressed }

// Wait blocks until the playback is over or ctx is done.
func (p *Playback) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OutputOption configures the Output.
type OutputOption func(*Output)

// WithSpeechDedup sets the duplicate-utterance window.
func WithSpeechDedup(d time.Duration) OutputOption {
	return func(o *Output) { o.dedup = d }
}

// WithProsody sets the default rate, pitch and volume.
func WithProsody(rate, pitch, volume float64) OutputOption {
	return func(o *Output) {
		o.defaults.Rate, o.defaults.Pitch, o.defaults.Volume = rate, pitch, volume
	}
}

// WithLanguage sets the default utterance language.
func WithLanguage(lang string) OutputOption {
	return func(o *Output) { o.defaults.Lang = lang }
}

// WithOutputClock replaces time.Now, for tests.
func WithOutputClock(now func() time.Time) OutputOption {
	return func(o *Output) { o.now = now }
}

// Output is the speech output service. One utterance plays at a time: a
// new request cancels whatever is in flight.
type Output struct {
	synth    domain.Synthesizer
	log      *logger.Logger
	dedup    time.Duration
	defaults SpeakOptions
	now      func() time.Time

	mu          sync.Mutex
	lastText    string
	lastAt      time.Time
	current     *activeUtterance
	voice       *domain.Voice
	voiceLoaded bool
}

type activeUtterance struct {
	pb     *Playback
	cancel context.CancelFunc
}

// NewOutput creates the output service. A nil synthesizer makes every
// non-empty request fail with ErrUnsupported.
func NewOutput(synth domain.Synthesizer, log *logger.Logger, opts ...OutputOption) *Output {
	o := &Output{
		synth: synth,
		log:   log,
		dedup: DefaultSpeechDedup,
		defaults: SpeakOptions{
			Rate:   DefaultRate,
			Pitch:  DefaultPitch,
			Volume: DefaultVolume,
			Lang:   DefaultLang,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Available reports whether a synthesizer is wired.
func (o *Output) Available() bool { return o.synth != nil }

// Speaking reports whether an utterance is in flight.
func (o *Output) Speaking() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current != nil
}

// Speak starts an utterance and returns immediately. Empty text and
// repeats of the previous request inside the de-duplication window are
// no-op successes.
func (o *Output) Speak(ctx context.Context, text string, opts SpeakOptions) *Playback {
	p, done := o.prepare(ctx, text, opts)
	if done != nil {
		return done
	}
	return o.launch(p)
}

// pendingUtterance is an admitted request that has not started playing.
type pendingUtterance struct {
	ctx    context.Context
	cancel context.CancelFunc
	pb     *Playback
	u      domain.Utterance
	opts   SpeakOptions
}

// prepare validates and de-duplicates a request. It returns either a
// pending utterance or an already finished Playback when nothing will
// play.
func (o *Output) prepare(ctx context.Context, text string, opts SpeakOptions) (*pendingUtterance, *Playback) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		metrics.Utterances.WithLabelValues("empty").Inc()
		return nil, finishedPlayback(text, nil, SuppressedEmpty)
	}
	if o.synth == nil {
		metrics.Utterances.WithLabelValues("unsupported").Inc()
		return nil, finishedPlayback(trimmed, domain.ErrUnsupported, NotSuppressed)
	}

	norm := normalizeUtterance(trimmed)
	now := o.now()

	o.mu.Lock()
	if norm == o.lastText && now.Sub(o.lastAt) < o.dedup {
		o.mu.Unlock()
		metrics.Utterances.WithLabelValues("duplicate").Inc()
		o.log.Debug("output: dropping duplicate %q", truncate(trimmed, 60))
		return nil, finishedPlayback(trimmed, nil, SuppressedDuplicate)
	}
	o.lastText, o.lastAt = norm, now
	o.mu.Unlock()

	pctx, cancel := context.WithCancel(ctx)
	pb := newPlayback(trimmed)
	return &pendingUtterance{
		ctx:    pctx,
		cancel: cancel,
		pb:     pb,
		opts:   opts,
		u: domain.Utterance{
			ID:          pb.ID,
			Text:        trimmed,
			Lang:        pick(opts.Lang, o.defaults.Lang),
			Rate:        pickf(opts.Rate, o.defaults.Rate),
			Pitch:       pickf(opts.Pitch, o.defaults.Pitch),
			Volume:      pickf(opts.Volume, o.defaults.Volume),
			RequestedAt: now,
		},
	}, nil
}

// launch cancels whatever is playing and starts p.
func (o *Output) launch(p *pendingUtterance) *Playback {
	o.mu.Lock()
	prev := o.current
	o.current = &activeUtterance{pb: p.pb, cancel: p.cancel}
	o.mu.Unlock()

	if prev != nil {
		o.log.Debug("output: superseding %s", prev.pb.ID)
		prev.cancel()
		o.synth.Cancel()
	}

	go o.play(p.ctx, p.cancel, p.pb, p.u, p.opts)
	return p.pb
}

// CancelAll stops the in-flight utterance, if any.
func (o *Output) CancelAll() {
	o.mu.Lock()
	cur := o.current
	o.current = nil
	o.mu.Unlock()

	if cur != nil {
		o.log.Debug("output: cancelling %s", cur.pb.ID)
		cur.cancel()
	}
	if o.synth != nil {
		o.synth.Cancel()
	}
}

func (o *Output) play(ctx context.Context, cancel context.CancelFunc, pb *Playback, u domain.Utterance, opts SpeakOptions) {
	defer cancel()

	u.Voice = o.selectVoice(ctx)
	o.log.Debug("output: speaking %s: %s", pb.ID, truncate(u.Text, 60))
	if opts.OnStart != nil {
		opts.OnStart()
	}

	err := o.synth.Speak(ctx, u)
	if ctx.Err() != nil && (err == nil || errors.Is(err, context.Canceled)) {
		err = domain.ErrInterrupted
	}

	o.mu.Lock()
	if o.current != nil && o.current.pb == pb {
		o.current = nil
	}
	o.mu.Unlock()

	switch {
	case err == nil:
		metrics.Utterances.WithLabelValues("played").Inc()
		metrics.UtteranceDuration.Observe(time.Since(u.RequestedAt).Seconds())
		if opts.OnEnd != nil {
			opts.OnEnd()
		}
	case errors.Is(err, domain.ErrInterrupted):
		metrics.Utterances.WithLabelValues("interrupted").Inc()
		o.log.Debug("output: %s interrupted", pb.ID)
		if opts.OnError != nil {
			opts.OnError(err)
		}
	default:
		metrics.Utterances.WithLabelValues("failed").Inc()
		o.log.Warn("output: %s failed: %v", pb.ID, err)
		if opts.OnError != nil {
			opts.OnError(err)
		}
	}
	pb.finish(err)
}

// selectVoice picks an English voice from the catalog once and caches it.
// A nil result means the platform default.
func (o *Output) selectVoice(ctx context.Context) *domain.Voice {
	o.mu.Lock()
	if o.voiceLoaded {
		v := o.voice
		o.mu.Unlock()
		return v
	}
	o.mu.Unlock()

	voices, err := o.synth.Voices(ctx)
	if err != nil {
		o.log.Debug("output: voice catalog unavailable: %v", err)
		return nil
	}
	v := PreferEnglish(voices)

	o.mu.Lock()
	o.voice, o.voiceLoaded = v, true
	o.mu.Unlock()

	if v != nil {
		o.log.Debug("output: using voice %s (%s)", v.Name, v.Lang)
	}
	return v
}

// PreferEnglish returns the first English-tagged voice, preferring a
// default one, or nil when none is tagged English.
func PreferEnglish(voices []domain.Voice) *domain.Voice {
	var first *domain.Voice
	for i := range voices {
		v := voices[i]
		if !strings.HasPrefix(strings.ToLower(v.Lang), "en") {
			continue
		}
		if v.Default {
			return &v
		}
		if first == nil {
			first = &v
		}
	}
	return first
}

func normalizeUtterance(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func pick(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func pickf(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}

// truncate shortens a string for logging.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
