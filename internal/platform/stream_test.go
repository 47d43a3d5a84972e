package platform

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hammamikhairi/voicecart/internal/domain"
)

type fakeSource struct {
	frames chan []byte
	err    error
}

func (f *fakeSource) Open(ctx context.Context) (<-chan []byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(chan []byte)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case frame := <-f.frames:
				select {
				case out <- frame:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// listenServer accepts one socket, replies with script once audio
// arrives, and closes on CloseStream.
type listenServer struct {
	mu       sync.Mutex
	auth     string
	query    string
	audio    int
	closed   bool
	script   []string
	rejected int
}

func (l *listenServer) handler(t *testing.T) http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		if l.rejected != 0 {
			http.Error(w, "denied", l.rejected)
			return
		}
		l.mu.Lock()
		l.auth = r.Header.Get("Authorization")
		l.query = r.URL.RawQuery
		l.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		sent := false
		for {
			kind, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind == websocket.BinaryMessage {
				l.mu.Lock()
				l.audio++
				l.mu.Unlock()
				if !sent {
					sent = true
					for _, msg := range l.script {
						conn.WriteMessage(websocket.TextMessage, []byte(msg))
					}
				}
				continue
			}
			if strings.Contains(string(payload), "CloseStream") {
				l.mu.Lock()
				l.closed = true
				l.mu.Unlock()
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	}
}

func newStreamFixture(t *testing.T, l *listenServer, cfg StreamConfig) (*StreamRecognizer, *fakeSource) {
	t.Helper()
	srv := httptest.NewServer(l.handler(t))
	t.Cleanup(srv.Close)

	cfg.APIBaseURL = srv.URL + "/v1"
	if cfg.APIKey == "" {
		cfg.APIKey = "dg-key"
	}
	src := &fakeSource{frames: make(chan []byte, 8)}
	return NewStreamRecognizer(cfg, src, testLogger()), src
}

func TestStreamDeliversFinalResults(t *testing.T) {
	l := &listenServer{script: []string{
		`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"show"}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":" show cart ","confidence":0.87}]}}`,
	}}
	r, src := newStreamFixture(t, l, StreamConfig{})

	events, err := r.Start(context.Background(), domain.RecognizerOptions{Continuous: true, Language: "en-US"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	src.frames <- []byte{0, 1, 2, 3}

	var result domain.RecognitionEvent
	timeout := time.After(2 * time.Second)
	for result.Type != domain.EventResult {
		select {
		case ev := <-events:
			if ev.Type == domain.EventError || ev.Type == domain.EventEnd {
				t.Fatalf("unexpected %s (%s)", ev.Type, ev.Code)
			}
			result = ev
		case <-timeout:
			t.Fatal("no result")
		}
	}
	if result.Transcript != "show cart" || result.Confidence != 0.87 {
		t.Errorf("unexpected result %+v", result)
	}

	r.Stop()
	rest := collect(t, events)
	if n := len(rest); n == 0 || rest[n-1].Type != domain.EventEnd {
		t.Fatalf("expected clean end, got %v", rest)
	}
	for _, ev := range rest {
		if ev.Type == domain.EventError {
			t.Errorf("graceful stop reported %s", ev.Code)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.auth != "Token dg-key" {
		t.Errorf("unexpected auth header %q", l.auth)
	}
	if !strings.Contains(l.query, "language=en-US") || !strings.Contains(l.query, "encoding=linear16") {
		t.Errorf("unexpected query %q", l.query)
	}
	if !l.closed {
		t.Error("CloseStream was not sent")
	}
}

func TestStreamUnauthorized(t *testing.T) {
	l := &listenServer{rejected: http.StatusUnauthorized}
	r, _ := newStreamFixture(t, l, StreamConfig{})

	events, err := r.Start(context.Background(), domain.RecognizerOptions{Continuous: true})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	evs := collect(t, events)
	if len(evs) != 2 || evs[0].Code != "service-not-allowed" {
		t.Fatalf("expected service-not-allowed then end, got %v", evs)
	}
	if domain.ClassifyRecognitionCode(evs[0].Code) != domain.KindPermissionDenied {
		t.Error("auth failure should be a permission error")
	}
}

func TestStreamConnectionFailureIsNetwork(t *testing.T) {
	r := NewStreamRecognizer(StreamConfig{APIKey: "k", APIBaseURL: "http://127.0.0.1:1/v1"}, &fakeSource{}, testLogger())

	events, err := r.Start(context.Background(), domain.RecognizerOptions{Continuous: true})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	evs := collect(t, events)
	if len(evs) != 2 || evs[0].Code != "network" {
		t.Fatalf("expected network error then end, got %v", evs)
	}
}

func TestStreamNoSpeechTimeout(t *testing.T) {
	l := &listenServer{}
	r, _ := newStreamFixture(t, l, StreamConfig{NoSpeechTimeout: 50 * time.Millisecond})

	events, _ := r.Start(context.Background(), domain.RecognizerOptions{Continuous: true})
	evs := collect(t, events)
	n := len(evs)
	if n < 2 || evs[n-2].Code != "no-speech" {
		t.Fatalf("expected no-speech, got %v", evs)
	}
}

func TestStreamAbort(t *testing.T) {
	l := &listenServer{}
	r, _ := newStreamFixture(t, l, StreamConfig{})

	events, _ := r.Start(context.Background(), domain.RecognizerOptions{Continuous: true})
	if ev := <-events; ev.Type != domain.EventStart {
		t.Fatalf("expected start, got %s", ev.Type)
	}
	if _, err := r.Start(context.Background(), domain.RecognizerOptions{}); !errors.Is(err, domain.ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}

	r.Abort()
	evs := collect(t, events)
	if len(evs) != 2 || evs[0].Code != "aborted" {
		t.Fatalf("expected aborted then end, got %v", evs)
	}
}

func TestStreamAudioSourceFailure(t *testing.T) {
	l := &listenServer{}
	r, src := newStreamFixture(t, l, StreamConfig{})
	src.err = domain.NewSpeechError(domain.KindPermissionDenied, "not-allowed", errors.New("mic blocked"))

	events, _ := r.Start(context.Background(), domain.RecognizerOptions{Continuous: true})
	evs := collect(t, events)
	if len(evs) != 2 || evs[0].Code != "not-allowed" {
		t.Fatalf("expected not-allowed then end, got %v", evs)
	}
}

func TestStreamRequiresAPIKey(t *testing.T) {
	r := NewStreamRecognizer(StreamConfig{}, &fakeSource{}, testLogger())
	if _, err := r.Start(context.Background(), domain.RecognizerOptions{}); !errors.Is(err, domain.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestBuildListenURL(t *testing.T) {
	url, err := buildListenURL(StreamConfig{APIBaseURL: "https://api.deepgram.com/v1/", Model: "nova-2"}, "en-US")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		"wss://api.deepgram.com/v1/listen?",
		"model=nova-2",
		"sample_rate=16000",
		"channels=1",
		"interim_results=false",
		"language=en-US",
	} {
		if !strings.Contains(url, want) {
			t.Errorf("url %s missing %q", url, want)
		}
	}

	if _, err := buildListenURL(StreamConfig{APIBaseURL: ":// bad"}, ""); err == nil {
		t.Error("expected invalid base url error")
	}
}

func TestExtractTranscript(t *testing.T) {
	var r listenResponse
	if text, _ := extractTranscript(r); text != "" {
		t.Fatalf("expected empty transcript, got %q", text)
	}
	r.Channel.Alternatives = []listenAlternative{{Transcript: " go home ", Confidence: 0.5}, {Transcript: "go hum"}}
	text, conf := extractTranscript(r)
	if text != "go home" || conf != 0.5 {
		t.Fatalf("unexpected %q %.2f", text, conf)
	}
}
