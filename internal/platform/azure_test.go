package platform

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestAzureSynthesize(t *testing.T) {
	var mu sync.Mutex
	var gotBody string
	var gotHeaders http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cognitiveservices/v1" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotBody = string(body)
		gotHeaders = r.Header.Clone()
		mu.Unlock()
		w.Write([]byte("RIFF-audio"))
	}))
	defer srv.Close()

	c := NewAzureClient("secret", "westeurope", testLogger(), WithEndpoint(srv.URL))
	audio, err := c.Synthesize(context.Background(), "Milk & <eggs>", Prosody{Lang: "en-US", Rate: 0.9, Pitch: 1, Volume: 0.8})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(audio) != "RIFF-audio" {
		t.Fatalf("unexpected audio %q", audio)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotHeaders.Get("Ocp-Apim-Subscription-Key") != "secret" {
		t.Errorf("missing subscription key header")
	}
	if gotHeaders.Get("X-Microsoft-OutputFormat") != DefaultAudioFormat {
		t.Errorf("output format = %q", gotHeaders.Get("X-Microsoft-OutputFormat"))
	}
	for _, want := range []string{
		"name='" + DefaultVoice + "'",
		"rate='0.90'",
		"pitch='+0%'",
		"volume='80'",
		"Milk &amp; &lt;eggs&gt;",
	} {
		if !strings.Contains(gotBody, want) {
			t.Errorf("ssml missing %q:\n%s", want, gotBody)
		}
	}
}

func TestAzureSynthesizeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewAzureClient("nope", "westeurope", testLogger(), WithEndpoint(srv.URL))
	if _, err := c.Synthesize(context.Background(), "hello", Prosody{}); err == nil {
		t.Fatal("expected error for 401")
	}
}

func TestAzureVoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cognitiveservices/voices/list" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"ShortName":"fr-FR-DeniseNeural","Locale":"fr-FR"},
			{"ShortName":"en-GB-SoniaNeural","Locale":"en-GB"},
			{"ShortName":"en-US-AvaNeural","Locale":"en-US"}
		]`))
	}))
	defer srv.Close()

	c := NewAzureClient("secret", "westeurope", testLogger(), WithEndpoint(srv.URL))
	voices, err := c.Voices(context.Background())
	if err != nil {
		t.Fatalf("voices: %v", err)
	}
	if len(voices) != 3 {
		t.Fatalf("expected 3 voices, got %d", len(voices))
	}
	for _, v := range voices {
		if v.Default != (v.Name == DefaultVoice) {
			t.Errorf("voice %s default=%v", v.Name, v.Default)
		}
	}
	if voices[1].Lang != "en-GB" {
		t.Errorf("expected locale en-GB, got %q", voices[1].Lang)
	}
}

func TestSSMLProsody(t *testing.T) {
	tests := []struct {
		pitch float64
		want  string
	}{
		{0, "+0%"},
		{1, "+0%"},
		{2, "+50%"},
		{0.5, "-25%"},
	}
	for _, tt := range tests {
		if got := ssmlPitch(tt.pitch); got != tt.want {
			t.Errorf("ssmlPitch(%v) = %q, want %q", tt.pitch, got, tt.want)
		}
	}
	if got := ssmlVolume(0); got != "100" {
		t.Errorf("zero volume should fall back to full, got %q", got)
	}
	if got := ssmlRate(0); got != "1.00" {
		t.Errorf("zero rate should fall back to 1, got %q", got)
	}
}
