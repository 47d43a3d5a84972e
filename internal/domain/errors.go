package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors used across layers.
var (
	ErrNotFound         = errors.New("not found")
	ErrEmptyInput       = errors.New("empty speech input")
	ErrAlreadyStarted   = errors.New("recognition already started")
	ErrInterrupted      = errors.New("utterance interrupted")
	ErrRestartExhausted = errors.New("recognition restart failed")

	// Recognition taxonomy. Each matches any *SpeechError of the same kind
	// through errors.Is.
	ErrUnsupported      = &SpeechError{Kind: KindUnsupported}
	ErrPermissionDenied = &SpeechError{Kind: KindPermissionDenied}
	ErrNoSpeech         = &SpeechError{Kind: KindNoSpeech}
	ErrNetwork          = &SpeechError{Kind: KindNetwork}
	ErrAborted          = &SpeechError{Kind: KindAborted}
)

// ErrorKind classifies speech failures.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindUnsupported
	KindPermissionDenied
	KindNoSpeech
	KindNetwork
	KindAborted
)

// String returns a human-readable kind.
func (k ErrorKind) String() string {
	switch k {
	case KindUnsupported:
		return "unsupported"
	case KindPermissionDenied:
		return "permission_denied"
	case KindNoSpeech:
		return "no_speech"
	case KindNetwork:
		return "network"
	case KindAborted:
		return "aborted"
	default:
		return "other"
	}
}

// Permanent reports whether the kind needs a manual retry by the user.
func (k ErrorKind) Permanent() bool {
	return k == KindUnsupported || k == KindPermissionDenied
}

// SpeechError is a classified recognition or synthesis failure. Code holds
// the platform's own error code when one was reported.
type SpeechError struct {
	Kind ErrorKind
	Code string
	Err  error
}

func (e *SpeechError) Error() string {
	msg := "speech: " + e.Kind.String()
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SpeechError) Unwrap() error { return e.Err }

// Is matches another *SpeechError of the same kind.
func (e *SpeechError) Is(target error) bool {
	t, ok := target.(*SpeechError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewSpeechError builds a classified error wrapping cause.
func NewSpeechError(kind ErrorKind, code string, cause error) *SpeechError {
	return &SpeechError{Kind: kind, Code: code, Err: cause}
}

// ClassifyRecognitionCode maps a recognizer error code to a kind.
func ClassifyRecognitionCode(code string) ErrorKind {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "not-allowed", "service-not-allowed", "permission-denied":
		return KindPermissionDenied
	case "no-speech":
		return KindNoSpeech
	case "network":
		return KindNetwork
	case "aborted":
		return KindAborted
	case "unsupported", "language-not-supported":
		return KindUnsupported
	default:
		return KindOther
	}
}

// RecognitionError builds the error for a recognizer error code.
func RecognitionError(code string) *SpeechError {
	return &SpeechError{Kind: ClassifyRecognitionCode(code), Code: code}
}

// KindOf returns the kind of err, or KindOther when err is not a
// *SpeechError.
func KindOf(err error) ErrorKind {
	var se *SpeechError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindOther
}

// Fatal reports whether err ends a listening activation.
func Fatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRestartExhausted) {
		return true
	}
	return KindOf(err).Permanent()
}

// Unsupportedf returns an ErrUnsupported-kind error with a reason.
func Unsupportedf(format string, args ...any) error {
	return &SpeechError{Kind: KindUnsupported, Err: fmt.Errorf(format, args...)}
}
