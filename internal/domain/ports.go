package domain

import (
	"context"
	"net/url"
)

// Recognizer is the platform continuous speech-to-text capability. It is a
// process-wide singleton: Start returns ErrAlreadyStarted while a session
// is live.
//
// Events for a session arrive on the returned channel, which is closed
// after the session's EventEnd. Stop ends the session after any pending
// result; Abort ends it immediately. Neither may block on the consumer.
type Recognizer interface {
	Start(ctx context.Context, opts RecognizerOptions) (<-chan RecognitionEvent, error)
	Stop()
	Abort()
}

// Synthesizer is the platform text-to-speech capability.
type Synthesizer interface {
	// Voices returns the voice catalog.
	Voices(ctx context.Context) ([]Voice, error)
	// Speak plays one utterance and blocks until playback ends. It returns
	// early with the context's error when ctx is cancelled.
	Speak(ctx context.Context, u Utterance) error
	// Cancel stops whatever is playing.
	Cancel()
}

// PermissionProbe asks for microphone access. It returns nil on grant and
// an ErrPermissionDenied-kind error on denial.
type PermissionProbe interface {
	RequestMicrophone(ctx context.Context) error
}

// Navigator is the client-side navigation collaborator. Navigate with
// PathBack pops the history.
type Navigator interface {
	Navigate(path string)
	NavigateWithQuery(path string, params url.Values)
}

// Notifier delivers messages to the user. Implementations can write to
// the terminal, push notifications, or use text-to-speech.
type Notifier interface {
	Notify(ctx context.Context, message string) error
	NotifyUrgent(ctx context.Context, message string) error
}
