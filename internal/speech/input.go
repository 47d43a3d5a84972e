package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hammamikhairi/voicecart/internal/domain"
	"github.com/hammamikhairi/voicecart/internal/logger"
	"github.com/hammamikhairi/voicecart/internal/metrics"
)

// Recovery timings.
const (
	DefaultRestartDelay      = 500 * time.Millisecond
	DefaultRetryDelay        = 1000 * time.Millisecond
	DefaultConfidence        = 0.9
	otherErrorsBeforeSurface = 2
)

// InputState is the lifecycle of the recognition session.
type InputState int

const (
	InputStopped InputState = iota
	InputStarting
	InputListening
	InputStopping
)

func (s InputState) String() string {
	switch s {
	case InputStarting:
		return "starting"
	case InputListening:
		return "listening"
	case InputStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// InputStatus is a snapshot of the input service.
type InputStatus struct {
	State          InputState
	Active         bool // a listening activation is in effect
	Paused         bool // held off by the coordinator
	SessionID      string
	Continuous     bool
	LastTranscript string
	LastResultAt   time.Time
}

// ResultFunc receives each finalized transcript.
type ResultFunc func(transcript string, confidence float64)

// ErrorFunc receives classified recognition errors.
type ErrorFunc func(err error)

// InputOption configures the Input.
type InputOption func(*Input)

// WithRestartDelay sets the backoff before restarting an ended session.
func WithRestartDelay(d time.Duration) InputOption {
	return func(in *Input) { in.restartDelay = d }
}

// WithRetryDelay sets the delay of the single retry after a failed restart.
func WithRetryDelay(d time.Duration) InputOption {
	return func(in *Input) { in.retryDelay = d }
}

// WithDefaultConfidence sets the confidence reported when the recognizer
// gives none.
func WithDefaultConfidence(c float64) InputOption {
	return func(in *Input) { in.defaultConfidence = c }
}

// WithRecognizerOptions sets the per-session recognizer options.
func WithRecognizerOptions(opts domain.RecognizerOptions) InputOption {
	return func(in *Input) { in.opts = opts }
}

// Input is the speech input service. It keeps one logical listening
// activation alive across recognizer sessions: when a session ends without
// a stop request a fresh one is started after a short backoff.
//
// Recognizer events are handled on a per-session goroutine. Every event is
// checked against the current session first, so late events from a session
// that has been replaced are ignored.
type Input struct {
	rec               domain.Recognizer
	log               *logger.Logger
	opts              domain.RecognizerOptions
	restartDelay      time.Duration
	retryDelay        time.Duration
	defaultConfidence float64

	mu             sync.Mutex
	baseCtx        context.Context
	state          InputState
	active         bool
	paused         bool
	sess           *inputSession
	draining       *inputSession
	restart        *time.Timer
	restartGen     uint64
	otherErrs      int
	onResult       ResultFunc
	onError        ErrorFunc
	listener       func()
	lastTranscript string
	lastResultAt   time.Time
}

type inputSession struct {
	id     string
	cancel context.CancelFunc
	ended  bool
}

// NewInput creates the input service. A nil recognizer makes Start fail
// with ErrUnsupported.
func NewInput(rec domain.Recognizer, log *logger.Logger, opts ...InputOption) *Input {
	in := &Input{
		rec:               rec,
		log:               log,
		opts:              domain.RecognizerOptions{Continuous: true, Language: DefaultLang},
		restartDelay:      DefaultRestartDelay,
		retryDelay:        DefaultRetryDelay,
		defaultConfidence: DefaultConfidence,
		baseCtx:           context.Background(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Available reports whether a recognizer is wired.
func (in *Input) Available() bool { return in.rec != nil }

// SetStateListener registers fn to be called after every state change.
// fn runs without the input's lock held. Pass nil to clear.
func (in *Input) SetStateListener(fn func()) {
	in.mu.Lock()
	in.listener = fn
	in.mu.Unlock()
}

// Status returns a snapshot of the current state.
func (in *Input) Status() InputStatus {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.statusLocked()
}

func (in *Input) statusLocked() InputStatus {
	st := InputStatus{
		State:          in.state,
		Active:         in.active,
		Paused:         in.paused,
		Continuous:     in.opts.Continuous,
		LastTranscript: in.lastTranscript,
		LastResultAt:   in.lastResultAt,
	}
	if in.sess != nil {
		st.SessionID = in.sess.id
	}
	return st
}

// Start begins a listening activation. It fails with ErrUnsupported when
// no recognizer exists and with the recognizer's classified error when the
// first session cannot start. Calling Start on an active input is a no-op.
// When a stopped session is still ending, the first session starts once
// it has ended, or after the retry delay at the latest.
func (in *Input) Start(ctx context.Context, onResult ResultFunc, onError ErrorFunc) error {
	if in.rec == nil {
		return domain.ErrUnsupported
	}

	in.mu.Lock()
	if in.active {
		in.mu.Unlock()
		in.log.Debug("input: already active")
		return nil
	}
	in.baseCtx = ctx
	in.active = true
	in.paused = false
	in.otherErrs = 0
	in.onResult = onResult
	in.onError = onError

	var err error
	if in.draining != nil {
		in.state = InputStarting
		in.scheduleRestartLocked(in.retryDelay, false)
		in.log.Debug("input: waiting for session %s to end", in.draining.id)
	} else if err = in.startLocked(); err != nil {
		in.active = false
		in.state = InputStopped
	}
	in.mu.Unlock()

	in.notify()
	if err != nil {
		in.log.Warn("input: start failed: %v", err)
		return err
	}
	in.log.Info("input: listening activation started")
	return nil
}

// Stop ends the activation. It is idempotent and cancels any pending
// restart. A session still running is detached: nothing it reports after
// Stop reaches the callbacks.
func (in *Input) Stop() {
	in.mu.Lock()
	wasActive := in.active
	in.active = false
	in.paused = false
	in.cancelRestartLocked()
	running := in.state != InputStopped
	switch {
	case in.liveLocked():
		in.detachLocked()
		in.state = InputStopping
	case in.draining != nil:
		in.state = InputStopping
	default:
		in.state = InputStopped
	}
	in.mu.Unlock()

	if running {
		in.rec.Stop()
		in.rec.Abort()
	}
	if wasActive {
		in.log.Info("input: stopped")
	}
	in.notify()
}

// Pause suspends listening without ending the activation. It reports
// whether anything was paused.
func (in *Input) Pause() bool {
	in.mu.Lock()
	if !in.active || in.paused {
		in.mu.Unlock()
		return false
	}
	in.paused = true
	in.cancelRestartLocked()
	running := in.state != InputStopped
	if in.liveLocked() {
		in.state = InputStopping
	} else {
		in.state = InputStopped
	}
	in.mu.Unlock()

	if running {
		// Stop alone can still deliver a result already in flight.
		in.rec.Stop()
		in.rec.Abort()
	}
	in.log.Debug("input: paused")
	in.notify()
	return true
}

// Resume restarts listening after Pause. It does nothing when the
// activation was stopped in the meantime.
func (in *Input) Resume() error {
	in.mu.Lock()
	if !in.paused {
		in.mu.Unlock()
		return nil
	}
	in.paused = false
	if !in.active {
		in.mu.Unlock()
		in.notify()
		return nil
	}
	if in.liveLocked() {
		// The paused session has not ended yet; its end event restarts.
		in.mu.Unlock()
		in.notify()
		return nil
	}

	err := in.startLocked()
	if err != nil && !domain.Fatal(err) {
		in.log.Warn("input: resume failed, retrying in %s: %v", in.retryDelay, err)
		in.scheduleRestartLocked(in.retryDelay, true)
	}
	var fatal ErrorFunc
	if err != nil && domain.Fatal(err) {
		in.deactivateLocked()
		fatal = in.onError
	}
	in.mu.Unlock()

	in.notify()
	if fatal != nil {
		fatal(err)
	}
	if err == nil {
		in.log.Debug("input: resumed")
	}
	return err
}

// liveLocked reports whether the current session has not ended.
func (in *Input) liveLocked() bool {
	return in.sess != nil && !in.sess.ended && in.state != InputStopped
}

// startLocked opens a fresh recognizer session.
func (in *Input) startLocked() error {
	in.state = InputStarting

	sctx, cancel := context.WithCancel(in.baseCtx)
	events, err := in.rec.Start(sctx, in.opts)
	if err != nil {
		cancel()
		if errors.Is(err, domain.ErrAlreadyStarted) && in.liveLocked() {
			in.log.Debug("input: recognizer already started, keeping session %s", in.sess.id)
			in.state = InputListening
			return nil
		}
		in.state = InputStopped
		var se *domain.SpeechError
		if errors.As(err, &se) {
			return err
		}
		return domain.NewSpeechError(domain.KindOther, "start", err)
	}

	if in.sess != nil {
		in.sess.cancel()
	}
	s := &inputSession{id: uuid.NewString(), cancel: cancel}
	in.sess = s
	metrics.RecognitionSessions.Inc()
	in.log.Debug("input: session %s starting", s.id)

	go in.pump(s, events)
	return nil
}

// pump forwards one session's events. A channel closed without an end
// event is treated as one.
func (in *Input) pump(s *inputSession, events <-chan domain.RecognitionEvent) {
	for ev := range events {
		in.handle(s, ev)
	}
	in.handle(s, domain.RecognitionEvent{Type: domain.EventEnd})
}

func (in *Input) handle(s *inputSession, ev domain.RecognitionEvent) {
	in.mu.Lock()
	if s == in.draining {
		in.handleDrained(s, ev)
		return
	}
	if in.sess != s || s.ended {
		in.mu.Unlock()
		if ev.Type != domain.EventEnd {
			in.log.Debug("input: ignoring %s from stale session %s", ev.Type, s.id)
		}
		return
	}

	switch ev.Type {
	case domain.EventStart:
		if in.state == InputStarting {
			in.state = InputListening
		}
		in.mu.Unlock()
		metrics.Listening.Set(1)
		in.log.Debug("input: session %s listening", s.id)
		in.notify()

	case domain.EventResult:
		in.handleResult(ev)

	case domain.EventError:
		in.handleError(s, ev)

	case domain.EventEnd:
		s.ended = true
		s.cancel()
		in.state = InputStopped
		restart := in.active && !in.paused
		if restart {
			in.scheduleRestartLocked(in.restartDelay, false)
		}
		in.mu.Unlock()
		metrics.Listening.Set(0)
		in.log.Debug("input: session %s ended (restart=%v)", s.id, restart)
		in.notify()

	default:
		in.mu.Unlock()
	}
}

// handleDrained runs with in.mu held and releases it. Only the end of a
// detached session matters: it frees the recognizer for a pending start.
func (in *Input) handleDrained(s *inputSession, ev domain.RecognitionEvent) {
	if ev.Type != domain.EventEnd {
		in.mu.Unlock()
		in.log.Debug("input: ignoring %s from stopped session %s", ev.Type, s.id)
		return
	}
	s.ended = true
	s.cancel()
	in.draining = nil
	start := in.active && !in.paused && in.sess == nil
	switch {
	case start:
		in.scheduleRestartLocked(in.restartDelay, false)
	case in.sess == nil:
		in.state = InputStopped
	}
	in.mu.Unlock()
	metrics.Listening.Set(0)
	in.log.Debug("input: stopped session %s ended (start=%v)", s.id, start)
	in.notify()
}

// handleResult runs with in.mu held and releases it.
func (in *Input) handleResult(ev domain.RecognitionEvent) {
	transcript := strings.TrimSpace(ev.Transcript)
	if transcript == "" || !in.active || in.paused || in.state != InputListening {
		in.mu.Unlock()
		if transcript != "" {
			in.log.Debug("input: dropping result %q while %s", transcript, in.Status().State)
		}
		return
	}

	conf := ev.Confidence
	if conf <= 0 {
		conf = in.defaultConfidence
	}
	in.lastTranscript = transcript
	in.lastResultAt = time.Now()
	in.otherErrs = 0
	fn := in.onResult
	in.mu.Unlock()

	in.log.Info("input: heard %q (%.2f)", transcript, conf)
	if fn != nil {
		fn(transcript, conf)
	}
}

// handleError runs with in.mu held and releases it.
func (in *Input) handleError(s *inputSession, ev domain.RecognitionEvent) {
	err := domain.RecognitionError(ev.Code)
	metrics.RecognitionErrors.WithLabelValues(err.Kind.String()).Inc()

	if !in.active || in.paused {
		// Errors caused by our own stop or pause.
		in.mu.Unlock()
		in.log.Debug("input: suppressed %v", err)
		return
	}

	report := true
	abort := false
	switch err.Kind {
	case domain.KindPermissionDenied, domain.KindUnsupported:
		in.deactivateLocked()
		in.state = InputStopping
		abort = true
	case domain.KindAborted:
		report = false
	case domain.KindNoSpeech, domain.KindNetwork:
		// The end event restarts the session.
	default:
		in.otherErrs++
		report = in.otherErrs >= otherErrorsBeforeSurface
	}
	fn := in.onError
	in.mu.Unlock()

	if abort {
		in.rec.Abort()
	}
	in.log.Debug("input: session %s error %v (report=%v)", s.id, err, report)
	in.notify()
	if report && fn != nil {
		fn(err)
	}
}

// deactivateLocked ends the activation after a fatal error.
func (in *Input) deactivateLocked() {
	in.active = false
	in.paused = false
	in.cancelRestartLocked()
}

// detachLocked moves the current session aside so its remaining events are
// dropped. Its context is cancelled once it ends.
func (in *Input) detachLocked() {
	if in.draining != nil {
		in.draining.cancel()
	}
	in.draining = in.sess
	in.sess = nil
}

func (in *Input) scheduleRestartLocked(delay time.Duration, retry bool) {
	in.cancelRestartLocked()
	gen := in.restartGen
	in.restart = time.AfterFunc(delay, func() { in.restartNow(gen, retry) })
}

// cancelRestartLocked stops the pending restart. Bumping the generation
// also voids a timer that already fired and is waiting for the lock.
func (in *Input) cancelRestartLocked() {
	in.restartGen++
	if in.restart != nil {
		in.restart.Stop()
		in.restart = nil
	}
}

// restartNow runs on the restart timer. A failed first attempt is retried
// once after the retry delay; a second failure ends the activation.
func (in *Input) restartNow(gen uint64, retry bool) {
	in.mu.Lock()
	if in.restartGen != gen {
		in.mu.Unlock()
		return
	}
	in.restart = nil
	if !in.active || in.paused || in.liveLocked() {
		in.mu.Unlock()
		return
	}

	err := in.startLocked()
	if err == nil {
		in.mu.Unlock()
		metrics.RecognitionRestarts.WithLabelValues("ok").Inc()
		in.log.Debug("input: restarted")
		in.notify()
		return
	}

	var fatal error
	switch {
	case domain.Fatal(err):
		in.deactivateLocked()
		fatal = err
	case !retry:
		metrics.RecognitionRestarts.WithLabelValues("retry").Inc()
		in.log.Warn("input: restart failed, retrying in %s: %v", in.retryDelay, err)
		in.scheduleRestartLocked(in.retryDelay, true)
	default:
		in.deactivateLocked()
		fatal = fmt.Errorf("%w: %v", domain.ErrRestartExhausted, err)
	}
	fn := in.onError
	in.mu.Unlock()

	in.notify()
	if fatal != nil {
		metrics.RecognitionRestarts.WithLabelValues("failed").Inc()
		in.log.Error("input: giving up: %v", fatal)
		if fn != nil {
			fn(fatal)
		}
	}
}

func (in *Input) notify() {
	in.mu.Lock()
	fn := in.listener
	in.mu.Unlock()
	if fn != nil {
		fn()
	}
}
