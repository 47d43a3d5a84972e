package domain

import "time"

// RecognitionEventType is the kind of a recognizer callback.
type RecognitionEventType int

const (
	EventStart RecognitionEventType = iota
	EventResult
	EventError
	EventEnd
)

func (t RecognitionEventType) String() string {
	switch t {
	case EventStart:
		return "start"
	case EventResult:
		return "result"
	case EventError:
		return "error"
	case EventEnd:
		return "end"
	default:
		return "unknown"
	}
}

// RecognitionEvent is one callback from a recognition session, delivered
// over the session's channel.
type RecognitionEvent struct {
	Type       RecognitionEventType
	Transcript string  // EventResult: best single alternative
	Confidence float64 // EventResult: 0 when the platform gave none
	Code       string  // EventError: platform error code
}

// RecognizerOptions configures one recognition session.
type RecognizerOptions struct {
	Continuous bool
	Language   string
}

// Voice is one entry of the synthesizer's voice catalog.
type Voice struct {
	Name    string
	Lang    string // BCP-47 tag, may be empty
	Default bool
}

// Utterance is one request to the synthesizer.
type Utterance struct {
	ID          string
	Text        string
	Voice       *Voice // nil selects the platform default
	Lang        string
	Rate        float64
	Pitch       float64
	Volume      float64
	RequestedAt time.Time
}

// Capability is the cached result of probing one platform capability.
type Capability struct {
	Available bool
	Reason    string // why it is unavailable
}

// Available returns an available capability.
func Available() Capability { return Capability{Available: true} }

// Unavailable returns an unavailable capability with a reason.
func Unavailable(reason string) Capability { return Capability{Reason: reason} }

func (c Capability) String() string {
	if c.Available {
		return "available"
	}
	if c.Reason == "" {
		return "unavailable"
	}
	return "unavailable: " + c.Reason
}

// Capabilities holds the startup probe of both speech capabilities.
type Capabilities struct {
	Recognition Capability
	Synthesis   Capability
}
