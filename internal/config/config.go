// Package config resolves runtime configuration from environment
// variables. Every timing guard is tunable.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Recognizer backends.
const (
	BackendWhisper = "whisper"
	BackendStream  = "stream"
	BackendNone    = "none"
)

// Config stores runtime configuration.
type Config struct {
	Speech      SpeechConfig
	Recognition RecognitionConfig
	Commands    CommandsConfig
	Narration   NarrationConfig
	Azure       AzureConfig
	Whisper     WhisperConfig
	Deepgram    DeepgramConfig
	HistoryDB   string
	MetricsAddr string
}

type SpeechConfig struct {
	Voice       string
	Language    string
	Rate        float64
	Pitch       float64
	Volume      float64
	Dedup       time.Duration
	SettleDelay time.Duration
	CacheDir    string
	DiskCache   bool
}

type RecognitionConfig struct {
	Backend           string
	RestartDelay      time.Duration
	RetryDelay        time.Duration
	DefaultConfidence float64
}

type CommandsConfig struct {
	File  string
	Dedup time.Duration
}

type NarrationConfig struct {
	Enabled bool
	Volume  float64
}

type AzureConfig struct {
	Key    string
	Region string
}

type WhisperConfig struct {
	Bin   string
	Model string
	Chunk time.Duration
}

type DeepgramConfig struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	SmartFormat bool
}

// Load resolves configuration from environment variables and defaults.
func Load() (Config, error) {
	cfg := Config{
		Speech: SpeechConfig{
			Voice:       envOrDefault("VOICECART_VOICE", "en-US-AvaNeural"),
			Language:    envOrDefault("VOICECART_LANGUAGE", "en-US"),
			Rate:        envOrDefaultFloat("VOICECART_RATE", 0.9),
			Pitch:       envOrDefaultFloat("VOICECART_PITCH", 1.0),
			Volume:      envOrDefaultFloat("VOICECART_VOLUME", 1.0),
			Dedup:       envOrDefaultDuration("VOICECART_SPEECH_DEDUP", 2000*time.Millisecond),
			SettleDelay: envOrDefaultDuration("VOICECART_SETTLE_DELAY", 2000*time.Millisecond),
			CacheDir:    envOrDefault("VOICECART_CACHE_DIR", ".voicecart-cache"),
			DiskCache:   envOrDefaultBool("VOICECART_DISK_CACHE", true),
		},
		Recognition: RecognitionConfig{
			Backend:           strings.ToLower(envOrDefault("VOICECART_RECOGNIZER", BackendWhisper)),
			RestartDelay:      envOrDefaultDuration("VOICECART_RESTART_DELAY", 500*time.Millisecond),
			RetryDelay:        envOrDefaultDuration("VOICECART_RETRY_DELAY", 1000*time.Millisecond),
			DefaultConfidence: envOrDefaultFloat("VOICECART_DEFAULT_CONFIDENCE", 0.9),
		},
		Commands: CommandsConfig{
			File:  strings.TrimSpace(os.Getenv("VOICECART_COMMANDS_FILE")),
			Dedup: envOrDefaultDuration("VOICECART_COMMAND_DEDUP", 1000*time.Millisecond),
		},
		Narration: NarrationConfig{
			Enabled: envOrDefaultBool("VOICECART_NARRATION", false),
			Volume:  envOrDefaultFloat("VOICECART_NARRATION_VOLUME", 0.8),
		},
		Azure: AzureConfig{
			Key:    strings.TrimSpace(os.Getenv("AZURE_SPEECH_KEY")),
			Region: strings.TrimSpace(os.Getenv("AZURE_SPEECH_REGION")),
		},
		Whisper: WhisperConfig{
			Bin:   envOrDefault("WHISPER_BIN", "whisper-cli"),
			Model: envOrDefault("WHISPER_MODEL", "models/ggml-base.en.bin"),
			Chunk: envOrDefaultDuration("VOICECART_CHUNK", 4*time.Second),
		},
		Deepgram: DeepgramConfig{
			APIKey:      strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")),
			APIBaseURL:  envOrDefault("DEEPGRAM_API_BASE", "https://api.deepgram.com/v1"),
			Model:       envOrDefault("DEEPGRAM_MODEL", "nova-2"),
			SmartFormat: envOrDefaultBool("DEEPGRAM_SMART_FORMAT", true),
		},
		HistoryDB:   strings.TrimSpace(os.Getenv("VOICECART_HISTORY_DB")),
		MetricsAddr: strings.TrimSpace(os.Getenv("VOICECART_METRICS_ADDR")),
	}

	if cfg.Recognition.DefaultConfidence <= 0 || cfg.Recognition.DefaultConfidence > 1 {
		cfg.Recognition.DefaultConfidence = 0.9
	}
	if cfg.Whisper.Chunk < time.Second {
		cfg.Whisper.Chunk = 4 * time.Second
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings that cannot work.
func (c Config) Validate() error {
	switch c.Recognition.Backend {
	case BackendWhisper, BackendStream, BackendNone:
	default:
		return fmt.Errorf("unknown recognizer backend %q (want %s, %s or %s)",
			c.Recognition.Backend, BackendWhisper, BackendStream, BackendNone)
	}
	for name, d := range map[string]time.Duration{
		"restart delay": c.Recognition.RestartDelay,
		"retry delay":   c.Recognition.RetryDelay,
		"settle delay":  c.Speech.SettleDelay,
		"speech dedup":  c.Speech.Dedup,
		"command dedup": c.Commands.Dedup,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, d)
		}
	}
	if c.Speech.Volume < 0 || c.Speech.Volume > 1 || c.Narration.Volume < 0 || c.Narration.Volume > 1 {
		return fmt.Errorf("volume must be within 0..1")
	}
	return nil
}

// SpeechEnabled reports whether Azure credentials are present.
func (c Config) SpeechEnabled() bool {
	return c.Azure.Key != "" && c.Azure.Region != ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// envOrDefaultDuration accepts Go durations ("750ms") or a bare number of
// milliseconds ("750").
func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
