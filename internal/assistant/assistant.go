// Package assistant implements the voice assistant: the mic toggle that
// ties continuous recognition, command interpretation, navigation and
// spoken feedback together.
package assistant

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hammamikhairi/voicecart/internal/domain"
	"github.com/hammamikhairi/voicecart/internal/history"
	"github.com/hammamikhairi/voicecart/internal/logger"
	"github.com/hammamikhairi/voicecart/internal/speech"
)

// SearchPath is the view that shows search results.
const SearchPath = "/"

// State is the assistant's lifecycle.
type State int

const (
	StateOff State = iota
	StateActivating
	StateOn
)

func (s State) String() string {
	switch s {
	case StateActivating:
		return "activating"
	case StateOn:
		return "on"
	default:
		return "off"
	}
}

// Status is a snapshot for the shell.
type Status struct {
	State        State
	ActivationID string
	Listening    bool
	Speaking     bool
	Notice       string // transient recognition problem, empty when healthy
	LastCommand  *history.Entry
}

// Listener is the speech input the assistant drives. *speech.Input
// satisfies it.
type Listener interface {
	speech.InputControl
	Start(ctx context.Context, onResult speech.ResultFunc, onError speech.ErrorFunc) error
	Stop()
	Available() bool
}

// Interpreter turns transcripts into commands. ok is false for a dropped
// repeat.
type Interpreter interface {
	Interpret(transcript string, confidence float64) (m domain.CommandMatch, ok bool)
}

// Compile-time interface check.
var _ Listener = (*speech.Input)(nil)

// Option configures the Assistant.
type Option func(*Assistant)

// WithPermissionProbe sets the microphone probe run before every
// activation.
func WithPermissionProbe(p domain.PermissionProbe) Option {
	return func(a *Assistant) { a.probe = p }
}

// WithNotifier sets where user-visible failures are reported.
func WithNotifier(n domain.Notifier) Option {
	return func(a *Assistant) { a.notifier = n }
}

// WithHistory records every dispatched command in store.
func WithHistory(store history.Store) Option {
	return func(a *Assistant) { a.store = store }
}

// Assistant is the voice assistant façade. It never restarts recognition
// itself; the input service owns recovery, and the assistant only reacts
// to the errors the input gives up on.
type Assistant struct {
	coord    *speech.Coordinator
	input    Listener
	interp   Interpreter
	nav      domain.Navigator
	probe    domain.PermissionProbe
	notifier domain.Notifier
	store    history.Store
	onHeard  func(string, float64)
	log      *logger.Logger

	// toggleMu serializes activation and teardown.
	toggleMu sync.Mutex

	mu         sync.Mutex
	state      State
	activation string
	cancel     context.CancelFunc
	notice     string
	last       *history.Entry
	onChange   func(Status)
}

// WithHeardHook registers fn to receive every recognized transcript before
// it is interpreted. fn must not block.
func WithHeardHook(fn func(transcript string, confidence float64)) Option {
	return func(a *Assistant) { a.onHeard = fn }
}

// New creates an assistant in the Off state.
func New(coord *speech.Coordinator, input Listener, interp Interpreter, nav domain.Navigator, log *logger.Logger, opts ...Option) *Assistant {
	a := &Assistant{
		coord:  coord,
		input:  input,
		interp: interp,
		nav:    nav,
		log:    log,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Available reports whether voice commands can work at all.
func (a *Assistant) Available() bool { return a.input != nil && a.input.Available() }

// OnChange registers fn to receive a status after every transition. fn
// runs without locks held and must not block.
func (a *Assistant) OnChange(fn func(Status)) {
	a.mu.Lock()
	a.onChange = fn
	a.mu.Unlock()
}

// State returns the lifecycle state.
func (a *Assistant) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Status returns a snapshot including the coordinator's view.
func (a *Assistant) Status() Status {
	cs := a.coord.State()
	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{
		State:        a.state,
		ActivationID: a.activation,
		Listening:    cs.Listening,
		Speaking:     cs.Speaking,
		Notice:       a.notice,
		LastCommand:  a.last,
	}
}

// Toggle switches the assistant on or off.
func (a *Assistant) Toggle(ctx context.Context) error {
	if a.State() == StateOff {
		return a.ToggleOn(ctx)
	}
	a.ToggleOff(ctx)
	return nil
}

// ToggleOn asks for the microphone, starts continuous listening and
// confirms through coordinated speech. Turning on an assistant that is
// already on or activating is a no-op.
func (a *Assistant) ToggleOn(ctx context.Context) error {
	if !a.Available() {
		a.notifyUser(ctx, speech.LineRecognitionUnavailable(), true)
		return domain.ErrUnsupported
	}

	a.toggleMu.Lock()
	defer a.toggleMu.Unlock()

	a.mu.Lock()
	if a.state != StateOff {
		a.mu.Unlock()
		return nil
	}
	id := uuid.NewString()
	a.state = StateActivating
	a.activation = id
	a.notice = ""
	a.mu.Unlock()
	a.changed()
	a.log.Info("assistant: activating %s", id)

	if a.probe != nil {
		if err := a.probe.RequestMicrophone(ctx); err != nil {
			a.forceOffLocked(ctx, err)
			return err
		}
	}

	// The activation outlives the caller's request.
	actx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	a.coord.RegisterInput(a.input)
	err := a.input.Start(actx,
		func(transcript string, confidence float64) { a.onResult(actx, id, transcript, confidence) },
		func(err error) { a.onError(actx, id, err) },
	)
	if err != nil {
		a.forceOffLocked(ctx, err)
		return err
	}

	a.mu.Lock()
	a.state = StateOn
	a.mu.Unlock()
	a.changed()
	a.log.Info("assistant: on")

	a.coord.Speak(actx, speech.LineActivated(), speech.SpeakOptions{})
	return nil
}

// ToggleOff stops listening, silences speech in flight and confirms over
// the direct output path.
func (a *Assistant) ToggleOff(ctx context.Context) {
	a.toggleMu.Lock()
	defer a.toggleMu.Unlock()
	if !a.teardown() {
		return
	}
	a.log.Info("assistant: off")
	a.coord.Output().Speak(ctx, speech.LineDeactivated(), speech.SpeakOptions{})
}

// Close turns the assistant off without a spoken confirmation.
func (a *Assistant) Close() {
	a.toggleMu.Lock()
	defer a.toggleMu.Unlock()
	if a.teardown() {
		a.log.Debug("assistant: closed")
	}
}

// teardown moves to Off and releases the input. It reports whether the
// assistant was on. Requires toggleMu.
func (a *Assistant) teardown() bool {
	a.mu.Lock()
	if a.state == StateOff {
		a.mu.Unlock()
		return false
	}
	a.state = StateOff
	a.activation = ""
	a.notice = ""
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()

	a.coord.UnregisterInput()
	a.input.Stop()
	a.coord.Output().CancelAll()
	if cancel != nil {
		cancel()
	}
	a.changed()
	return true
}

// forceOff ends activation id after a permanent failure.
func (a *Assistant) forceOff(ctx context.Context, id string, cause error) {
	a.toggleMu.Lock()
	defer a.toggleMu.Unlock()
	if !a.current(id) {
		return
	}
	a.forceOffLocked(ctx, cause)
}

// forceOffLocked tears down and tells the user once. Raw platform errors
// are logged, never shown. Requires toggleMu.
func (a *Assistant) forceOffLocked(ctx context.Context, cause error) {
	a.log.Warn("assistant: forced off: %v", cause)
	a.teardown()
	a.notifyUser(ctx, failureMessage(cause), true)
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrRestartExhausted):
		return speech.LineRecognitionLost()
	case domain.KindOf(err) == domain.KindPermissionDenied:
		return speech.LineMicDenied()
	case domain.KindOf(err) == domain.KindUnsupported:
		return speech.LineRecognitionUnavailable()
	default:
		return speech.LineActivationFailed()
	}
}

// ── Recognition callbacks ────────────────────────────────────────

func (a *Assistant) current(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.activation == id && a.state != StateOff
}

func (a *Assistant) onResult(ctx context.Context, id, transcript string, confidence float64) {
	if !a.current(id) {
		return
	}
	a.mu.Lock()
	a.notice = ""
	a.mu.Unlock()
	if a.onHeard != nil {
		a.onHeard(transcript, confidence)
	}
	a.handle(ctx, id, transcript, confidence)
}

func (a *Assistant) onError(ctx context.Context, id string, err error) {
	if !a.current(id) {
		return
	}
	if domain.Fatal(err) {
		a.forceOff(ctx, id, err)
		return
	}

	// Transient: the input restarts on its own.
	switch domain.KindOf(err) {
	case domain.KindNetwork:
		a.setNotice(speech.StatusNetwork())
		a.log.Warn("assistant: %v", err)
	case domain.KindNoSpeech:
		a.setNotice(speech.StatusNoSpeech())
	case domain.KindAborted:
	default:
		// Only errors that keep recurring reach here.
		a.log.Warn("assistant: recurring recognition error: %v", err)
		a.notifyUser(ctx, speech.LineRecognitionTrouble(), false)
	}
}

func (a *Assistant) setNotice(n string) {
	a.mu.Lock()
	changed := a.notice != n
	a.notice = n
	a.mu.Unlock()
	if changed {
		a.changed()
	}
}

// ── Commands ─────────────────────────────────────────────────────

// Submit handles a typed command as if it had been heard with full
// confidence.
func (a *Assistant) Submit(ctx context.Context, text string) (domain.CommandMatch, bool) {
	a.mu.Lock()
	id := a.activation
	a.mu.Unlock()
	return a.handle(ctx, id, text, 1)
}

// HandleTranscript interprets one transcript and executes the resulting
// action. ok is false when the command was a dropped repeat.
func (a *Assistant) HandleTranscript(ctx context.Context, transcript string, confidence float64) (domain.CommandMatch, bool) {
	a.mu.Lock()
	id := a.activation
	a.mu.Unlock()
	return a.handle(ctx, id, transcript, confidence)
}

func (a *Assistant) handle(ctx context.Context, id, transcript string, confidence float64) (domain.CommandMatch, bool) {
	m, ok := a.interp.Interpret(transcript, confidence)
	if !ok {
		return m, false
	}
	a.log.Info("assistant: %q -> %s", transcript, m.Action)
	a.dispatch(ctx, m)
	a.record(ctx, id, transcript, m)
	return m, true
}

// dispatch executes an action. Every spoken reply is coordinated so the
// recognizer never hears it.
func (a *Assistant) dispatch(ctx context.Context, m domain.CommandMatch) {
	act := m.Action
	var reply string
	switch act.Kind {
	case domain.ActionNavigate:
		a.nav.Navigate(act.Path)
		reply = act.Confirmation
	case domain.ActionSearch:
		a.nav.NavigateWithQuery(SearchPath, url.Values{"search": {act.Term}})
		reply = act.Confirmation
	case domain.ActionRespond:
		reply = act.Text
	default:
		reply = speech.LineUnknownCommand(act.Raw)
	}
	a.coord.Speak(ctx, reply, speech.SpeakOptions{})
}

func (a *Assistant) record(ctx context.Context, id, transcript string, m domain.CommandMatch) {
	e := history.Entry{
		ID:           uuid.NewString(),
		ActivationID: id,
		Transcript:   transcript,
		Category:     m.Category,
		Action:       m.Action.String(),
		Confidence:   m.ConfidenceHint,
		At:           time.Now(),
	}
	if a.store != nil {
		if err := a.store.Append(ctx, e); err != nil {
			a.log.Warn("assistant: recording command: %v", err)
		}
	}
	a.mu.Lock()
	a.last = &e
	a.mu.Unlock()
	a.changed()
}

// ── Helpers ──────────────────────────────────────────────────────

func (a *Assistant) notifyUser(ctx context.Context, msg string, urgent bool) {
	if a.notifier == nil {
		return
	}
	var err error
	if urgent {
		err = a.notifier.NotifyUrgent(ctx, msg)
	} else {
		err = a.notifier.Notify(ctx, msg)
	}
	if err != nil {
		a.log.Warn("assistant: notify: %v", err)
	}
}

func (a *Assistant) changed() {
	a.mu.Lock()
	fn := a.onChange
	a.mu.Unlock()
	if fn != nil {
		fn(a.Status())
	}
}
