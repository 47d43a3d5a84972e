package speech

import (
	"context"
	"sync"
	"time"

	"github.com/hammamikhairi/voicecart/internal/domain"
	"github.com/hammamikhairi/voicecart/internal/logger"
	"github.com/hammamikhairi/voicecart/internal/metrics"
)

// DefaultSettleDelay is the pause between the end of speech and resuming
// recognition, so the tail of the synthesized audio is not transcribed.
const DefaultSettleDelay = 2000 * time.Millisecond

// Phase is the coordinator's view of recognition.
type Phase int

const (
	PhaseStopped Phase = iota
	PhaseStarting
	PhaseRunning
	PhaseStopping
)

func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseRunning:
		return "running"
	case PhaseStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// CoordinationState is a snapshot of the coordinator.
type CoordinationState struct {
	Speaking  bool
	Listening bool
	Phase     Phase
}

// InputControl is what the coordinator needs from a registered input.
type InputControl interface {
	Status() InputStatus
	Pause() bool
	Resume() error
	SetStateListener(fn func())
}

// Compile-time interface check.
var _ InputControl = (*Input)(nil)

// CoordinatorOption configures the Coordinator.
type CoordinatorOption func(*Coordinator)

// WithSettleDelay sets the wait before recognition resumes after speech.
func WithSettleDelay(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.settle = d }
}

// Coordinator keeps the microphone closed while the system speaks. Speech
// that must not be heard by the recognizer goes through Speak; the input
// is paused first and resumed a settle delay after the last utterance.
//
// Lock order: the coordinator may call into the input while holding its
// own lock, never the other way round. Input listeners run unlocked.
type Coordinator struct {
	out    *Output
	log    *logger.Logger
	settle time.Duration

	mu       sync.Mutex
	input    InputControl
	speaking bool
	phase    Phase
	held     bool // input paused on behalf of speech
	seq      uint64
	resume   *time.Timer
	closed   bool
}

// NewCoordinator creates a coordinator over the output service.
func NewCoordinator(out *Output, log *logger.Logger, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		out:    out,
		log:    log,
		settle: DefaultSettleDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Output returns the uncoordinated output path.
func (c *Coordinator) Output() *Output { return c.out }

// RegisterInput associates the input to pause and resume. It replaces any
// previously registered input.
func (c *Coordinator) RegisterInput(in InputControl) {
	c.mu.Lock()
	old := c.input
	c.input = in
	c.held = false
	c.stopResumeLocked()
	c.phase = PhaseStopped
	c.mu.Unlock()

	if old != nil && old != in {
		old.SetStateListener(nil)
	}
	in.SetStateListener(c.syncInput)
	c.syncInput()
	c.log.Debug("coordinator: input registered (phase=%s)", c.State().Phase)
}

// UnregisterInput drops the registered input. A pending resume is
// cancelled.
func (c *Coordinator) UnregisterInput() {
	c.mu.Lock()
	old := c.input
	c.input = nil
	c.held = false
	c.phase = PhaseStopped
	c.stopResumeLocked()
	c.mu.Unlock()

	if old != nil {
		old.SetStateListener(nil)
		c.log.Debug("coordinator: input unregistered")
	}
}

// State returns a snapshot.
func (c *Coordinator) State() CoordinationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CoordinationState{
		Speaking:  c.speaking,
		Listening: c.phase == PhaseRunning,
		Phase:     c.phase,
	}
}

// Speak pauses recognition, speaks text, and resumes recognition a settle
// delay after the utterance ends. A newer call supersedes an older one;
// only the newest utterance's completion schedules the resume.
func (c *Coordinator) Speak(ctx context.Context, text string, opts SpeakOptions) *Playback {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return finishedPlayback(text, domain.ErrInterrupted, NotSuppressed)
	}

	// Requests that will not produce audio never touch the input.
	p, done := c.out.prepare(ctx, text, opts)
	if done != nil {
		return done
	}

	c.mu.Lock()
	in := c.input
	pause := false
	if in != nil && !c.held {
		st := in.Status()
		if st.Active && !st.Paused {
			pause = true
			c.held = true
		} else {
			c.phase = phaseOf(st)
		}
	}
	if c.held {
		c.phase = PhaseStopping
	}
	c.stopResumeLocked()
	c.speaking = true
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	metrics.Speaking.Set(1)
	if pause {
		c.log.Debug("coordinator: pausing input for speech")
		in.Pause()
	}

	pb := c.out.launch(p)
	go func() {
		<-pb.Done()
		c.speechDone(seq)
	}()
	return pb
}

// speechDone runs when utterance seq finishes. Superseded utterances are
// ignored.
func (c *Coordinator) speechDone(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.seq || c.closed {
		return
	}
	c.speaking = false
	metrics.Speaking.Set(0)

	if !c.held || c.input == nil {
		return
	}
	in := c.input
	c.stopResumeLocked()
	c.resume = time.AfterFunc(c.settle, func() { c.resumeAfterSettle(in, seq) })
	c.log.Debug("coordinator: speech done, resuming input in %s", c.settle)
}

func (c *Coordinator) resumeAfterSettle(in InputControl, seq uint64) {
	c.mu.Lock()
	if c.input != in || c.speaking || !c.held || seq != c.seq || c.closed {
		c.mu.Unlock()
		return
	}
	c.resume = nil
	c.held = false
	c.phase = PhaseStarting
	c.mu.Unlock()

	err := in.Resume()
	st := in.Status()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.input != in || c.speaking || c.held {
		return
	}
	switch {
	case err != nil:
		c.log.Warn("coordinator: resume failed: %v", err)
		c.phase = phaseOf(st)
	case !st.Active:
		c.phase = PhaseStopped
	default:
		c.phase = PhaseRunning
		metrics.SettleResumes.Inc()
		c.log.Debug("coordinator: input resumed")
	}
}

// syncInput is the input's state listener.
func (c *Coordinator) syncInput() {
	c.mu.Lock()
	in := c.input
	c.mu.Unlock()
	if in == nil {
		return
	}
	st := in.Status()

	c.mu.Lock()
	if c.input != in {
		c.mu.Unlock()
		return
	}
	repause := false
	switch {
	case !st.Active:
		// Stopped by the user or by a fatal error: never auto-resume.
		c.held = false
		c.stopResumeLocked()
		c.phase = PhaseStopped
	case c.speaking:
		// Listening must not come back while speaking.
		repause = !st.Paused
		c.held = true
		c.phase = PhaseStopping
	case c.held:
		c.phase = PhaseStopping
	default:
		c.phase = phaseOf(st)
	}
	c.mu.Unlock()

	if repause {
		c.log.Debug("coordinator: input came back during speech, pausing again")
		in.Pause()
	}
}

// Close cancels pending work and any speech. The coordinator rejects
// further Speak calls.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.stopResumeLocked()
	c.speaking = false
	c.mu.Unlock()

	c.UnregisterInput()
	c.out.CancelAll()
	metrics.Speaking.Set(0)
}

func (c *Coordinator) stopResumeLocked() {
	if c.resume != nil {
		c.resume.Stop()
		c.resume = nil
	}
}

func phaseOf(st InputStatus) Phase {
	if !st.Active {
		return PhaseStopped
	}
	switch st.State {
	case InputStarting:
		return PhaseStarting
	case InputListening:
		return PhaseRunning
	case InputStopping:
		return PhaseStopping
	default:
		return PhaseStopped
	}
}
