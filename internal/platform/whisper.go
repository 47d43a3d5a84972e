package platform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	audiotranscriber "github.com/sklyt/whisper/pkg"

	"github.com/hammamikhairi/voicecart/internal/domain"
	"github.com/hammamikhairi/voicecart/internal/logger"
)

// ChunkTranscriber records d of microphone audio and returns its
// transcription.
type ChunkTranscriber func(ctx context.Context, d time.Duration) (string, error)

// WhisperOption configures the WhisperRecognizer.
type WhisperOption func(*WhisperRecognizer)

// WithChunkDuration sets the length of each recorded chunk.
func WithChunkDuration(d time.Duration) WhisperOption {
	return func(w *WhisperRecognizer) { w.chunk = d }
}

// WithSilenceLimit sets how many empty chunks in a row end the session
// with a no-speech error.
func WithSilenceLimit(n int) WhisperOption {
	return func(w *WhisperRecognizer) { w.silenceLimit = n }
}

// WithTempDir sets the directory for temporary WAV files.
func WithTempDir(dir string) WhisperOption {
	return func(w *WhisperRecognizer) { w.tempDir = dir }
}

// WithTranscriber replaces the whisper-cli chunk transcriber.
func WithTranscriber(fn ChunkTranscriber) WhisperOption {
	return func(w *WhisperRecognizer) { w.transcribe = fn }
}

// Compile-time interface check.
var _ domain.Recognizer = (*WhisperRecognizer)(nil)

// WhisperRecognizer is a continuous recognizer over a local whisper-cli.
// Each session records fixed-length chunks and emits one result per
// non-empty transcription.
type WhisperRecognizer struct {
	whisperBin   string
	modelPath    string
	tempDir      string
	chunk        time.Duration
	silenceLimit int
	transcribe   ChunkTranscriber
	log          *logger.Logger

	sessions singleton
}

// NewWhisperRecognizer creates a recognizer for the given whisper-cli
// binary and GGML model.
func NewWhisperRecognizer(whisperBin, modelPath string, log *logger.Logger, opts ...WhisperOption) *WhisperRecognizer {
	w := &WhisperRecognizer{
		whisperBin:   whisperBin,
		modelPath:    modelPath,
		tempDir:      ".voicecart-stt",
		chunk:        4 * time.Second,
		silenceLimit: 2,
		log:          log,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.transcribe == nil {
		w.transcribe = w.recordChunk
	}
	return w
}

// Check reports whether the binary and model are present.
func (w *WhisperRecognizer) Check() error {
	if _, err := exec.LookPath(w.whisperBin); err != nil {
		return domain.Unsupportedf("whisper binary %q not found", w.whisperBin)
	}
	if _, err := os.Stat(w.modelPath); err != nil {
		return domain.Unsupportedf("whisper model %q not found", w.modelPath)
	}
	return nil
}

// Start opens a recognition session.
func (w *WhisperRecognizer) Start(ctx context.Context, opts domain.RecognizerOptions) (<-chan domain.RecognitionEvent, error) {
	s, err := w.sessions.begin(ctx)
	if err != nil {
		return nil, err
	}
	go w.run(s, opts)
	return s.events, nil
}

// Stop ends the session once the chunk being recorded is transcribed.
func (w *WhisperRecognizer) Stop() { w.sessions.stop() }

// Abort ends the session at once, discarding the current chunk.
func (w *WhisperRecognizer) Abort() { w.sessions.abort() }

func (w *WhisperRecognizer) run(s *recSession, opts domain.RecognizerOptions) {
	s.emit(domain.RecognitionEvent{Type: domain.EventStart})
	w.log.Debug("whisper: session started (chunk=%s, continuous=%v)", w.chunk, opts.Continuous)

	code := ""
	empty := 0
	for {
		if s.stopping() {
			break
		}
		if s.ctx.Err() != nil {
			code = "aborted"
			break
		}

		text, err := w.transcribe(s.ctx, w.chunk)
		if s.ctx.Err() != nil {
			code = "aborted"
			break
		}
		if err != nil {
			code = classifyCaptureError(err)
			w.log.Warn("whisper: chunk failed: %v", err)
			break
		}

		text = cleanTranscription(text)
		if text == "" {
			empty++
			if empty >= w.silenceLimit && !s.stopping() {
				code = "no-speech"
				break
			}
			continue
		}
		empty = 0

		w.log.Debug("whisper: heard %q", text)
		s.emit(domain.RecognitionEvent{Type: domain.EventResult, Transcript: text})
		if !opts.Continuous {
			break
		}
	}

	w.sessions.release(s)
	s.finish(code)
	w.log.Debug("whisper: session ended (%s)", codeOrNone(code))
}

// recordChunk does one recording cycle with whisper-cli.
func (w *WhisperRecognizer) recordChunk(ctx context.Context, d time.Duration) (string, error) {
	var result string
	var wg sync.WaitGroup
	wg.Add(1)
	callback := func(text string) {
		result = text
		wg.Done()
	}

	verbose := w.log.GetLevel() >= logger.LevelVerbose
	t, err := audiotranscriber.NewTranscriber(w.whisperBin, w.modelPath, w.tempDir, "wav", callback, verbose)
	if err != nil {
		return "", fmt.Errorf("transcriber init: %w", err)
	}
	if err := t.Start(); err != nil {
		return "", fmt.Errorf("recording start: %w", err)
	}

	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
	t.Stop()
	wg.Wait()
	return result, nil
}

// classifyCaptureError maps a local capture failure to a recognizer code.
func classifyCaptureError(err error) string {
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return "unsupported"
	case errors.Is(err, os.ErrPermission), strings.Contains(strings.ToLower(err.Error()), "permission"):
		return "not-allowed"
	default:
		return "audio-capture"
	}
}

func codeOrNone(code string) string {
	if code == "" {
		return "clean"
	}
	return code
}

// ── Transcription cleanup ────────────────────────────────────────

// envAnnotation matches whisper environmental annotations like
// "(keyboard clicking)", "[laughter]", "(speaking French)".
var envAnnotation = regexp.MustCompile(`[\(\[][a-zA-Z][a-zA-Z_\s]*[\)\]]`)

// timestampPrefix matches "[00:00:00.000 --> 00:00:05.000]".
var timestampPrefix = regexp.MustCompile(`^\[[0-9:.\s\->]+\]`)

// hallucinations are whole transcriptions whisper produces on silence.
var hallucinations = map[string]bool{
	"...":                     true,
	"you":                     true,
	"thank you.":              true,
	"thanks for watching!":    true,
	"thank you for watching.": true,
	"bye.":                    true,
	"the end.":                true,
}

// cleanTranscription strips whisper artifacts ("[BLANK_AUDIO]",
// "(music)", timestamps) and known silence hallucinations.
func cleanTranscription(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = timestampPrefix.ReplaceAllString(s, "")
	s = envAnnotation.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")

	if hallucinations[strings.ToLower(s)] {
		return ""
	}
	return s
}
