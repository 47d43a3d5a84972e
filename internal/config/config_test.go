package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"VOICECART_RECOGNIZER", "VOICECART_RESTART_DELAY", "VOICECART_RETRY_DELAY",
		"VOICECART_SETTLE_DELAY", "VOICECART_SPEECH_DEDUP", "VOICECART_COMMAND_DEDUP",
		"VOICECART_DEFAULT_CONFIDENCE", "VOICECART_NARRATION", "AZURE_SPEECH_KEY",
		"AZURE_SPEECH_REGION", "VOICECART_VOLUME", "VOICECART_NARRATION_VOLUME",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Recognition.Backend != BackendWhisper {
		t.Fatalf("expected whisper backend, got %q", cfg.Recognition.Backend)
	}
	if cfg.Recognition.RestartDelay != 500*time.Millisecond || cfg.Recognition.RetryDelay != time.Second {
		t.Fatalf("unexpected restart timings: %+v", cfg.Recognition)
	}
	if cfg.Speech.SettleDelay != 2*time.Second || cfg.Speech.Dedup != 2*time.Second {
		t.Fatalf("unexpected speech timings: %+v", cfg.Speech)
	}
	if cfg.Commands.Dedup != time.Second {
		t.Fatalf("unexpected command dedup %s", cfg.Commands.Dedup)
	}
	if cfg.Recognition.DefaultConfidence != 0.9 || cfg.Speech.Rate != 0.9 {
		t.Fatalf("unexpected defaults: %+v %+v", cfg.Recognition, cfg.Speech)
	}
	if cfg.Narration.Enabled || cfg.Narration.Volume != 0.8 {
		t.Fatalf("unexpected narration config %+v", cfg.Narration)
	}
	if cfg.SpeechEnabled() {
		t.Fatal("speech should be disabled without Azure keys")
	}
}

func TestLoadRespectsOverrides(t *testing.T) {
	t.Setenv("VOICECART_RECOGNIZER", "Stream")
	t.Setenv("VOICECART_RESTART_DELAY", "750")
	t.Setenv("VOICECART_RETRY_DELAY", "1.5s")
	t.Setenv("VOICECART_SETTLE_DELAY", "2500ms")
	t.Setenv("VOICECART_COMMAND_DEDUP", "bogus")
	t.Setenv("VOICECART_DEFAULT_CONFIDENCE", "7")
	t.Setenv("VOICECART_NARRATION", "yes")
	t.Setenv("AZURE_SPEECH_KEY", "key")
	t.Setenv("AZURE_SPEECH_REGION", "westeurope")
	t.Setenv("DEEPGRAM_MODEL", "nova-3")
	t.Setenv("VOICECART_CHUNK", "200ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Recognition.Backend != BackendStream {
		t.Fatalf("expected stream backend, got %q", cfg.Recognition.Backend)
	}
	if cfg.Recognition.RestartDelay != 750*time.Millisecond {
		t.Errorf("bare number should be milliseconds, got %s", cfg.Recognition.RestartDelay)
	}
	if cfg.Recognition.RetryDelay != 1500*time.Millisecond || cfg.Speech.SettleDelay != 2500*time.Millisecond {
		t.Errorf("unexpected durations %s %s", cfg.Recognition.RetryDelay, cfg.Speech.SettleDelay)
	}
	if cfg.Commands.Dedup != time.Second {
		t.Errorf("invalid value should fall back, got %s", cfg.Commands.Dedup)
	}
	if cfg.Recognition.DefaultConfidence != 0.9 {
		t.Errorf("out-of-range confidence should fall back, got %.2f", cfg.Recognition.DefaultConfidence)
	}
	if !cfg.Narration.Enabled || !cfg.SpeechEnabled() || cfg.Deepgram.Model != "nova-3" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.Whisper.Chunk != 4*time.Second {
		t.Errorf("tiny chunk should fall back, got %s", cfg.Whisper.Chunk)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("VOICECART_RECOGNIZER", "telepathy")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "telepathy") {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("VOICECART_RECOGNIZER", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	bad := cfg
	bad.Speech.SettleDelay = -time.Second
	if err := bad.Validate(); err == nil {
		t.Error("expected negative settle delay to fail")
	}

	bad = cfg
	bad.Narration.Volume = 1.5
	if err := bad.Validate(); err == nil {
		t.Error("expected loud narration to fail")
	}
}
