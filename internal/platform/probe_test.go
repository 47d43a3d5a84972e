package platform

import (
	"testing"
	"time"
)

func TestProbeCapabilities(t *testing.T) {
	log := testLogger()
	synth := NewAzureSynthesizer(&fakeClient{}, newFakePlayer(time.Millisecond), log)

	tests := []struct {
		name      string
		caps      func() (recOK, synthOK bool, reason string)
		wantRec   bool
		wantSynth bool
	}{
		{
			name: "nothing configured",
			caps: func() (bool, bool, string) {
				c := ProbeCapabilities(nil, nil, log)
				return c.Recognition.Available, c.Synthesis.Available, c.Recognition.Reason
			},
		},
		{
			name: "missing whisper binary",
			caps: func() (bool, bool, string) {
				rec := NewWhisperRecognizer("definitely-not-a-whisper-binary", "missing.bin", log)
				c := ProbeCapabilities(rec, synth, log)
				return c.Recognition.Available, c.Synthesis.Available, c.Recognition.Reason
			},
			wantSynth: true,
		},
		{
			name: "stream without key",
			caps: func() (bool, bool, string) {
				c := ProbeCapabilities(NewStreamRecognizer(StreamConfig{}, &fakeSource{}, log), nil, log)
				return c.Recognition.Available, c.Synthesis.Available, c.Recognition.Reason
			},
		},
		{
			name: "stream with key",
			caps: func() (bool, bool, string) {
				c := ProbeCapabilities(NewStreamRecognizer(StreamConfig{APIKey: "k"}, &fakeSource{}, log), synth, log)
				return c.Recognition.Available, c.Synthesis.Available, c.Recognition.Reason
			},
			wantRec:   true,
			wantSynth: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, syn, reason := tt.caps()
			if rec != tt.wantRec || syn != tt.wantSynth {
				t.Fatalf("expected recognition=%v synthesis=%v, got %v %v", tt.wantRec, tt.wantSynth, rec, syn)
			}
			if !rec && reason == "" {
				t.Error("unavailable recognition should carry a reason")
			}
		})
	}
}
