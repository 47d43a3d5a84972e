package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hammamikhairi/voicecart/internal/domain"
	"github.com/hammamikhairi/voicecart/internal/logger"
)

// StreamConfig controls the Deepgram-compatible listen socket.
type StreamConfig struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	SmartFormat bool

	// NoSpeechTimeout ends a session that produced no final result for
	// this long.
	NoSpeechTimeout time.Duration
	// CloseTimeout bounds the wait for trailing results after a stop.
	CloseTimeout time.Duration
}

func (c *StreamConfig) defaults() {
	if c.APIBaseURL == "" {
		c.APIBaseURL = "https://api.deepgram.com/v1"
	}
	if c.Model == "" {
		c.Model = "nova-2"
	}
	if c.NoSpeechTimeout <= 0 {
		c.NoSpeechTimeout = 8 * time.Second
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = 2 * time.Second
	}
}

// Compile-time interface check.
var _ domain.Recognizer = (*StreamRecognizer)(nil)

// StreamRecognizer streams microphone audio to a websocket transcription
// service. Socket failures are reported as network errors.
type StreamRecognizer struct {
	cfg    StreamConfig
	source AudioSource
	log    *logger.Logger

	sessions singleton
}

// NewStreamRecognizer creates a streaming recognizer reading from source.
func NewStreamRecognizer(cfg StreamConfig, source AudioSource, log *logger.Logger) *StreamRecognizer {
	cfg.defaults()
	return &StreamRecognizer{cfg: cfg, source: source, log: log}
}

// Check reports whether the recognizer is configured.
func (r *StreamRecognizer) Check() error {
	if strings.TrimSpace(r.cfg.APIKey) == "" {
		return domain.Unsupportedf("DEEPGRAM_API_KEY is not configured")
	}
	return nil
}

// Start connects a new session.
func (r *StreamRecognizer) Start(ctx context.Context, opts domain.RecognizerOptions) (<-chan domain.RecognitionEvent, error) {
	if err := r.Check(); err != nil {
		return nil, err
	}
	wsURL, err := buildListenURL(r.cfg, opts.Language)
	if err != nil {
		return nil, domain.Unsupportedf("%v", err)
	}

	s, err := r.sessions.begin(ctx)
	if err != nil {
		return nil, err
	}
	go func() {
		code := r.stream(s, wsURL, opts)
		r.sessions.release(s)
		s.finish(code)
		r.log.Debug("stream: session ended (%s)", codeOrNone(code))
	}()
	return s.events, nil
}

// Stop asks the service for trailing results and then ends the session.
func (r *StreamRecognizer) Stop() { r.sessions.stop() }

// Abort drops the connection at once.
func (r *StreamRecognizer) Abort() { r.sessions.abort() }

type streamResult struct {
	text       string
	confidence float64
}

// stream runs one session and returns the error code it ended with.
func (r *StreamRecognizer) stream(s *recSession, wsURL string, opts domain.RecognizerOptions) string {
	headers := http.Header{}
	headers.Set("Authorization", "Token "+r.cfg.APIKey)

	conn, resp, err := websocket.DefaultDialer.DialContext(s.ctx, wsURL, headers)
	if err != nil {
		if s.ctx.Err() != nil {
			return "aborted"
		}
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return "service-not-allowed"
		}
		r.log.Warn("stream: connect failed: %v", err)
		return "network"
	}
	defer conn.Close()

	audio, err := r.source.Open(s.ctx)
	if err != nil {
		r.log.Warn("stream: audio source: %v", err)
		var se *domain.SpeechError
		if errors.As(err, &se) && se.Code != "" {
			return se.Code
		}
		return "audio-capture"
	}
	s.emit(domain.RecognitionEvent{Type: domain.EventStart})
	r.log.Debug("stream: session started")

	done := make(chan struct{})
	defer close(done)
	results := make(chan streamResult, 16)
	var readErr error
	go func() {
		readErr = readTranscripts(conn, results, done)
		close(results)
	}()

	noSpeech := time.NewTimer(r.cfg.NoSpeechTimeout)
	defer noSpeech.Stop()

	var stopped <-chan struct{} = s.stopped
	var closeDeadline <-chan time.Time
	closing := false

	for {
		select {
		case <-s.ctx.Done():
			return "aborted"

		case <-stopped:
			stopped = nil
			closing = true
			audio = nil
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
				return ""
			}
			closeDeadline = time.After(r.cfg.CloseTimeout)

		case frame, ok := <-audio:
			if !ok {
				audio = nil
				if !closing && s.ctx.Err() == nil {
					return "audio-capture"
				}
				continue
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				r.log.Warn("stream: send failed: %v", err)
				return "network"
			}

		case res, ok := <-results:
			if !ok {
				switch {
				case s.ctx.Err() != nil:
					return "aborted"
				case closing || isNormalClose(readErr):
					return ""
				default:
					r.log.Warn("stream: read failed: %v", readErr)
					return "network"
				}
			}
			s.emit(domain.RecognitionEvent{Type: domain.EventResult, Transcript: res.text, Confidence: res.confidence})
			noSpeech.Reset(r.cfg.NoSpeechTimeout)
			if !opts.Continuous {
				s.requestStop()
			}

		case <-noSpeech.C:
			if closing {
				continue
			}
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
			return "no-speech"

		case <-closeDeadline:
			return ""
		}
	}
}

// readTranscripts forwards final transcripts until the socket closes.
func readTranscripts(conn *websocket.Conn, out chan<- streamResult, done <-chan struct{}) error {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var response listenResponse
		if err := json.Unmarshal(payload, &response); err != nil {
			continue
		}
		if strings.EqualFold(response.Type, "Error") {
			message := strings.TrimSpace(response.Message)
			if message == "" {
				message = "transcription service returned an unknown error"
			}
			return errors.New(message)
		}
		if !response.IsFinal && !response.SpeechFinal {
			continue
		}
		text, conf := extractTranscript(response)
		if text == "" {
			continue
		}
		select {
		case out <- streamResult{text: text, confidence: conf}:
		case <-done:
			return nil
		}
	}
}

func isNormalClose(err error) bool {
	return err == nil || websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}

type listenAlternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

type listenResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []listenAlternative `json:"alternatives"`
	} `json:"channel"`
}

func extractTranscript(response listenResponse) (string, float64) {
	if len(response.Channel.Alternatives) == 0 {
		return "", 0
	}
	alt := response.Channel.Alternatives[0]
	return strings.TrimSpace(alt.Transcript), alt.Confidence
}

func buildListenURL(cfg StreamConfig, language string) (string, error) {
	base := strings.TrimSpace(cfg.APIBaseURL)
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid listen base URL: %w", err)
	}

	query := listenURL.Query()
	query.Set("model", cfg.Model)
	query.Set("encoding", "linear16")
	query.Set("sample_rate", fmt.Sprintf("%d", CaptureSampleRate))
	query.Set("channels", fmt.Sprintf("%d", CaptureChannels))
	query.Set("interim_results", "false")
	query.Set("smart_format", fmt.Sprintf("%t", cfg.SmartFormat))
	if language != "" {
		query.Set("language", language)
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}
