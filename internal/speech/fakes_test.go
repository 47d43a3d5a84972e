package speech

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hammamikhairi/voicecart/internal/domain"
	"github.com/hammamikhairi/voicecart/internal/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.LevelOff, nil)
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// ── fake recognizer ──────────────────────────────────────────────

type fakeRecognizer struct {
	mu        sync.Mutex
	events    chan domain.RecognitionEvent
	running   bool
	starts    int
	stops     int
	aborts    int
	startErrs []error // popped one per Start call; nil means succeed

	// lingering sessions ignore Stop and Abort until end is called.
	lingering bool
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{}
}

func (f *fakeRecognizer) Start(ctx context.Context, opts domain.RecognizerOptions) (<-chan domain.RecognitionEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if len(f.startErrs) > 0 {
		err := f.startErrs[0]
		f.startErrs = f.startErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if f.running {
		return nil, domain.ErrAlreadyStarted
	}
	f.events = make(chan domain.RecognitionEvent, 32)
	f.running = true
	f.events <- domain.RecognitionEvent{Type: domain.EventStart}
	return f.events, nil
}

func (f *fakeRecognizer) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if !f.lingering {
		f.endLocked()
	}
}

func (f *fakeRecognizer) Abort() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborts++
	if f.lingering {
		return
	}
	if f.running {
		f.events <- domain.RecognitionEvent{Type: domain.EventError, Code: "aborted"}
	}
	f.endLocked()
}

func (f *fakeRecognizer) endLocked() {
	if !f.running {
		return
	}
	f.events <- domain.RecognitionEvent{Type: domain.EventEnd}
	close(f.events)
	f.running = false
}

func (f *fakeRecognizer) result(text string, confidence float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		f.events <- domain.RecognitionEvent{Type: domain.EventResult, Transcript: text, Confidence: confidence}
	}
}

// fail reports an error and ends the session, as browsers do.
func (f *fakeRecognizer) fail(code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		f.events <- domain.RecognitionEvent{Type: domain.EventError, Code: code}
	}
	f.endLocked()
}

func (f *fakeRecognizer) end() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endLocked()
}

func (f *fakeRecognizer) isRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeRecognizer) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *fakeRecognizer) queueStartErrs(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startErrs = append(f.startErrs, errs...)
}

// ── fake synthesizer ─────────────────────────────────────────────

type fakeSynth struct {
	mu       sync.Mutex
	voices   []domain.Voice
	spoken   []domain.Utterance
	duration time.Duration
	cancels  int
	err      error
	onSpeak  func(domain.Utterance)
}

func newFakeSynth(d time.Duration) *fakeSynth {
	return &fakeSynth{duration: d}
}

func (f *fakeSynth) Voices(ctx context.Context) ([]domain.Voice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.voices, nil
}

func (f *fakeSynth) Speak(ctx context.Context, u domain.Utterance) error {
	f.mu.Lock()
	f.spoken = append(f.spoken, u)
	d, err, hook := f.duration, f.err, f.onSpeak
	f.mu.Unlock()

	if hook != nil {
		hook(u)
	}
	select {
	case <-time.After(d):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeSynth) Cancel() {
	f.mu.Lock()
	f.cancels++
	f.mu.Unlock()
}

func (f *fakeSynth) spokenTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.spoken))
	for i, u := range f.spoken {
		out[i] = u.Text
	}
	return out
}

func (f *fakeSynth) last() domain.Utterance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.spoken[len(f.spoken)-1]
}

// ── recorders ────────────────────────────────────────────────────

type resultLog struct {
	mu      sync.Mutex
	results []string
	confs   []float64
	errs    []error
}

func (r *resultLog) onResult(text string, conf float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, text)
	r.confs = append(r.confs, conf)
}

func (r *resultLog) onError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *resultLog) errCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

func (r *resultLog) resultCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

func (r *resultLog) lastErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errs) == 0 {
		return nil
	}
	return r.errs[len(r.errs)-1]
}
