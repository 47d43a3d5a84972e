package platform

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hammamikhairi/voicecart/internal/domain"
	"github.com/hammamikhairi/voicecart/internal/logger"
)

// AzureOption configures the Azure TTS client.
type AzureOption func(*AzureClient)

// WithVoice sets the default TTS voice.
func WithVoice(voice string) AzureOption {
	return func(c *AzureClient) {
		c.voice = voice
	}
}

// WithAudioFormat sets the audio output format.
func WithAudioFormat(format string) AzureOption {
	return func(c *AzureClient) {
		c.format = format
	}
}

// WithHTTPTimeout sets the HTTP client timeout for TTS requests.
func WithHTTPTimeout(d time.Duration) AzureOption {
	return func(c *AzureClient) {
		c.httpClient.Timeout = d
	}
}

// WithEndpoint overrides the regional service base URL.
func WithEndpoint(base string) AzureOption {
	return func(c *AzureClient) {
		c.endpoint = strings.TrimRight(base, "/")
	}
}

// Prosody is the per-request voice and delivery of a synthesis call.
type Prosody struct {
	Voice  string
	Lang   string
	Rate   float64 // multiplier, 1 is normal
	Pitch  float64 // 0..2, 1 is normal
	Volume float64 // 0..1
}

// AzureClient handles text-to-speech synthesis via Azure Cognitive Services.
type AzureClient struct {
	subscriptionKey string
	region          string
	voice           string
	format          string
	endpoint        string
	httpClient      *http.Client
	log             *logger.Logger
}

// NewAzureClient creates an Azure TTS client with the given credentials.
func NewAzureClient(key, region string, log *logger.Logger, opts ...AzureOption) *AzureClient {
	c := &AzureClient{
		subscriptionKey: key,
		region:          region,
		voice:           DefaultVoice,
		format:          DefaultAudioFormat,
		endpoint:        fmt.Sprintf("https://%s.tts.speech.microsoft.com", region),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Voice returns the configured default voice name.
func (c *AzureClient) Voice() string { return c.voice }

// Synthesize converts text to speech audio data (WAV bytes).
func (c *AzureClient) Synthesize(ctx context.Context, text string, p Prosody) ([]byte, error) {
	url := c.endpoint + "/cognitiveservices/v1"
	ssml := c.buildSSML(text, p)
	c.log.Debug("azure tts: synthesizing %d chars with voice %s", len(text), pickVoice(p.Voice, c.voice))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(ssml))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.subscriptionKey)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", c.format)
	req.Header.Set("User-Agent", "VoiceCart/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("azure tts error %d: %s", resp.StatusCode, string(body))
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading audio data: %w", err)
	}
	c.log.Debug("azure tts: got %d bytes of audio", len(audioData))
	return audioData, nil
}

type azureVoice struct {
	ShortName string `json:"ShortName"`
	Locale    string `json:"Locale"`
}

// Voices fetches the regional voice catalog. The configured voice is
// marked as the default.
func (c *AzureClient) Voices(ctx context.Context) ([]domain.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/cognitiveservices/voices/list", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.subscriptionKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voice list request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("azure voice list error %d: %s", resp.StatusCode, string(body))
	}

	var raw []azureVoice
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding voice list: %w", err)
	}

	voices := make([]domain.Voice, 0, len(raw))
	for _, v := range raw {
		voices = append(voices, domain.Voice{
			Name:    v.ShortName,
			Lang:    v.Locale,
			Default: v.ShortName == c.voice,
		})
	}
	c.log.Debug("azure tts: %d voices in catalog", len(voices))
	return voices, nil
}

// buildSSML creates SSML markup for the synthesis request.
func (c *AzureClient) buildSSML(text string, p Prosody) string {
	lang := p.Lang
	if lang == "" {
		lang = "en-US"
	}
	var escaped strings.Builder
	_ = xml.EscapeText(&escaped, []byte(text))

	return fmt.Sprintf(
		`<speak version='1.0' xml:lang='%s'><voice xml:lang='%s' name='%s'><prosody rate='%s' pitch='%s' volume='%s'>%s</prosody></voice></speak>`,
		lang, lang, pickVoice(p.Voice, c.voice),
		ssmlRate(p.Rate), ssmlPitch(p.Pitch), ssmlVolume(p.Volume),
		escaped.String(),
	)
}

func pickVoice(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func ssmlRate(r float64) string {
	if r <= 0 {
		r = 1
	}
	return fmt.Sprintf("%.2f", r)
}

// ssmlPitch maps the 0..2 pitch scale to a relative percentage.
func ssmlPitch(p float64) string {
	if p <= 0 {
		p = 1
	}
	return fmt.Sprintf("%+.0f%%", (p-1)*50)
}

func ssmlVolume(v float64) string {
	if v <= 0 || v > 1 {
		v = 1
	}
	return fmt.Sprintf("%.0f", v*100)
}
