package speech

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hammamikhairi/voicecart/internal/domain"
)

type coordFixture struct {
	rec   *fakeRecognizer
	synth *fakeSynth
	in    *Input
	coord *Coordinator
	log   resultLog
}

func newCoordFixture(t *testing.T, speechLen, settle time.Duration) *coordFixture {
	t.Helper()
	f := &coordFixture{
		rec:   newFakeRecognizer(),
		synth: newFakeSynth(speechLen),
	}
	f.in = newTestInput(f.rec)
	f.coord = NewCoordinator(NewOutput(f.synth, testLogger()), testLogger(), WithSettleDelay(settle))
	t.Cleanup(func() {
		f.coord.Close()
		f.in.Stop()
	})
	return f
}

func (f *coordFixture) listen(t *testing.T) {
	t.Helper()
	f.coord.RegisterInput(f.in)
	startListening(t, f.in, &f.log)
	waitFor(t, time.Second, "coordinator running", func() bool { return f.coord.State().Phase == PhaseRunning })
}

func TestCoordinatorPausesInputWhileSpeaking(t *testing.T) {
	f := newCoordFixture(t, 60*time.Millisecond, 100*time.Millisecond)
	f.listen(t)

	var heardDuringSpeech atomic.Bool
	f.synth.onSpeak = func(domain.Utterance) {
		if f.rec.isRunning() {
			heardDuringSpeech.Store(true)
		}
	}

	pb := f.coord.Speak(context.Background(), "Welcome to VoiceCart", SpeakOptions{})
	if st := f.coord.State(); !st.Speaking || st.Listening {
		t.Errorf("state during speech = %+v", st)
	}
	if err := waitPlayback(t, pb); err != nil {
		t.Fatalf("speak: %v", err)
	}
	done := time.Now()
	if heardDuringSpeech.Load() {
		t.Error("recognizer was running when speech started")
	}

	// Still held during the settle delay.
	time.Sleep(40 * time.Millisecond)
	if f.rec.isRunning() {
		t.Error("recognition resumed before the settle delay")
	}

	waitFor(t, time.Second, "resume", func() bool {
		return f.rec.isRunning() && f.coord.State().Phase == PhaseRunning
	})
	if elapsed := time.Since(done); elapsed < 90*time.Millisecond {
		t.Errorf("resumed %s after speech, want at least the settle delay", elapsed)
	}
	if st := f.in.Status(); !st.Active || st.Paused {
		t.Errorf("input after resume = %+v", st)
	}
	if n := f.log.errCount(); n != 0 {
		t.Errorf("coordination reported %d errors", n)
	}
}

func TestCoordinatorSpeakWithoutInput(t *testing.T) {
	f := newCoordFixture(t, 5*time.Millisecond, 10*time.Millisecond)

	pb := f.coord.Speak(context.Background(), "Going home", SpeakOptions{})
	if err := waitPlayback(t, pb); err != nil {
		t.Fatalf("speak: %v", err)
	}
	waitFor(t, time.Second, "idle", func() bool { return !f.coord.State().Speaking })
	if f.coord.State().Phase != PhaseStopped {
		t.Errorf("phase = %s, want stopped", f.coord.State().Phase)
	}
}

func TestCoordinatorInactiveInputStaysStopped(t *testing.T) {
	f := newCoordFixture(t, 5*time.Millisecond, 10*time.Millisecond)
	f.coord.RegisterInput(f.in)

	waitPlayback(t, f.coord.Speak(context.Background(), "Read-aloud system on", SpeakOptions{}))
	time.Sleep(40 * time.Millisecond)
	if n := f.rec.startCount(); n != 0 {
		t.Errorf("speech started recognition %d times", n)
	}
}

func TestCoordinatorEmptyTextLeavesInputAlone(t *testing.T) {
	f := newCoordFixture(t, 5*time.Millisecond, 10*time.Millisecond)
	f.listen(t)

	pb := f.coord.Speak(context.Background(), "  ", SpeakOptions{})
	if pb.Suppressed() != SuppressedEmpty {
		t.Errorf("suppressed = %s, want empty", pb.Suppressed())
	}
	if st := f.in.Status(); st.Paused || st.State != InputListening {
		t.Errorf("empty speech touched the input: %+v", st)
	}
	if st := f.coord.State(); st.Speaking || st.Phase != PhaseRunning {
		t.Errorf("state = %+v", st)
	}
}

func TestCoordinatorDuplicateDoesNotCutSpeech(t *testing.T) {
	f := newCoordFixture(t, 80*time.Millisecond, 30*time.Millisecond)
	f.listen(t)

	first := f.coord.Speak(context.Background(), "Going to cart", SpeakOptions{})
	dup := f.coord.Speak(context.Background(), "Going to cart", SpeakOptions{})
	if dup.Suppressed() != SuppressedDuplicate {
		t.Errorf("suppressed = %s, want duplicate", dup.Suppressed())
	}
	if !f.coord.State().Speaking {
		t.Error("duplicate cleared the speaking flag")
	}
	if err := waitPlayback(t, first); err != nil {
		t.Errorf("first utterance: %v", err)
	}
	if got := f.synth.spokenTexts(); len(got) != 1 {
		t.Errorf("spoken = %v, want one utterance", got)
	}
}

func TestCoordinatorManualStopDuringSpeech(t *testing.T) {
	f := newCoordFixture(t, 50*time.Millisecond, 20*time.Millisecond)
	f.listen(t)

	pb := f.coord.Speak(context.Background(), "Searching for milk", SpeakOptions{})
	f.in.Stop()
	waitPlayback(t, pb)

	time.Sleep(80 * time.Millisecond)
	if f.rec.isRunning() || f.rec.startCount() != 1 {
		t.Errorf("recognition resumed after manual stop (starts=%d)", f.rec.startCount())
	}
	if st := f.coord.State(); st.Phase != PhaseStopped || st.Speaking {
		t.Errorf("state = %+v, want stopped and silent", st)
	}
}

func TestCoordinatorSupersededSpeechResumesOnce(t *testing.T) {
	f := newCoordFixture(t, 80*time.Millisecond, 30*time.Millisecond)
	f.listen(t)

	first := f.coord.Speak(context.Background(), "Welcome to VoiceCart", SpeakOptions{})
	time.Sleep(20 * time.Millisecond)
	second := f.coord.Speak(context.Background(), "Going home", SpeakOptions{})

	waitPlayback(t, first)
	// The superseded utterance must not start the settle timer.
	time.Sleep(45 * time.Millisecond)
	if f.rec.isRunning() {
		t.Error("input resumed while the newer utterance was playing")
	}

	if err := waitPlayback(t, second); err != nil {
		t.Fatalf("second: %v", err)
	}
	waitFor(t, time.Second, "resume", func() bool { return f.coord.State().Phase == PhaseRunning })
	time.Sleep(40 * time.Millisecond)
	if n := f.rec.startCount(); n != 2 {
		t.Errorf("starts = %d, want one resume", n)
	}
}

func TestCoordinatorNeverSpeaksWhileListening(t *testing.T) {
	f := newCoordFixture(t, 15*time.Millisecond, 10*time.Millisecond)
	f.listen(t)

	stop := make(chan struct{})
	var violations atomic.Int32
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if st := f.coord.State(); st.Speaking && st.Listening {
				violations.Add(1)
			}
			time.Sleep(100 * time.Microsecond)
		}
	}()

	texts := []string{"Going home", "Going to cart", "Opening checkout", "Going back", "Searching for bread"}
	for i, text := range texts {
		pb := f.coord.Speak(context.Background(), text, SpeakOptions{})
		if i%2 == 0 {
			waitPlayback(t, pb)
			time.Sleep(25 * time.Millisecond)
		}
	}
	waitFor(t, 2*time.Second, "final resume", func() bool { return f.coord.State().Phase == PhaseRunning })
	close(stop)
	wg.Wait()

	if n := violations.Load(); n != 0 {
		t.Errorf("observed speaking and listening together %d times", n)
	}
}

func TestCoordinatorUnregisterCancelsResume(t *testing.T) {
	f := newCoordFixture(t, 10*time.Millisecond, 50*time.Millisecond)
	f.listen(t)

	waitPlayback(t, f.coord.Speak(context.Background(), "Going home", SpeakOptions{}))
	f.coord.UnregisterInput()

	time.Sleep(100 * time.Millisecond)
	if f.rec.isRunning() {
		t.Error("unregistered input was resumed")
	}
}

func TestCoordinatorClosedRejectsSpeech(t *testing.T) {
	f := newCoordFixture(t, 10*time.Millisecond, 10*time.Millisecond)
	f.coord.Close()

	pb := f.coord.Speak(context.Background(), "hello", SpeakOptions{})
	if err := waitPlayback(t, pb); err != domain.ErrInterrupted {
		t.Errorf("err = %v, want ErrInterrupted", err)
	}
	if n := len(f.synth.spokenTexts()); n != 0 {
		t.Errorf("closed coordinator spoke %d utterances", n)
	}
}
