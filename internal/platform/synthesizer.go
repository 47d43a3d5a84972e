package platform

import (
	"context"
	"errors"
	"sync"

	"github.com/hammamikhairi/voicecart/internal/domain"
	"github.com/hammamikhairi/voicecart/internal/logger"
)

// speechClient is the remote half of the synthesizer.
type speechClient interface {
	Synthesize(ctx context.Context, text string, p Prosody) ([]byte, error)
	Voices(ctx context.Context) ([]domain.Voice, error)
}

// audioPlayer is the local half of the synthesizer.
type audioPlayer interface {
	Play(ctx context.Context, wav []byte) error
	Stop()
}

// Compile-time interface checks.
var (
	_ domain.Synthesizer = (*AzureSynthesizer)(nil)
	_ speechClient       = (*AzureClient)(nil)
	_ audioPlayer        = (*Player)(nil)
)

// SynthOption configures the AzureSynthesizer.
type SynthOption func(*AzureSynthesizer)

// WithChunkSize sets the approximate max character count per TTS request.
// Longer text is split at sentence boundaries and synthesized in parallel
// so playback doesn't stall between sentences.
func WithChunkSize(n int) SynthOption {
	return func(s *AzureSynthesizer) { s.chunkSize = n }
}

// WithCache sets the audio cache.
func WithCache(c *AudioCache) SynthOption {
	return func(s *AzureSynthesizer) { s.cache = c }
}

// AzureSynthesizer synthesizes with Azure and plays through the local
// audio device.
type AzureSynthesizer struct {
	tts       speechClient
	player    audioPlayer
	cache     *AudioCache
	chunkSize int
	log       *logger.Logger

	mu     sync.Mutex
	voices []domain.Voice
}

// NewAzureSynthesizer creates a synthesizer over the client and player.
func NewAzureSynthesizer(tts speechClient, player audioPlayer, log *logger.Logger, opts ...SynthOption) *AzureSynthesizer {
	s := &AzureSynthesizer{
		tts:       tts,
		player:    player,
		chunkSize: 200,
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = NewAudioCache("", false, log)
	}
	return s
}

// Voices returns the voice catalog, fetched once.
func (s *AzureSynthesizer) Voices(ctx context.Context) ([]domain.Voice, error) {
	s.mu.Lock()
	cached := s.voices
	s.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	voices, err := s.tts.Voices(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.voices = voices
	s.mu.Unlock()
	return voices, nil
}

// Speak synthesizes and plays one utterance. It returns ctx's error when
// cancelled mid-way.
func (s *AzureSynthesizer) Speak(ctx context.Context, u domain.Utterance) error {
	p := Prosody{Lang: u.Lang, Rate: u.Rate, Pitch: u.Pitch, Volume: u.Volume}
	if u.Voice != nil {
		p.Voice = u.Voice.Name
	}

	chunks := splitChunks(u.Text, s.chunkSize)
	if len(chunks) > 1 {
		s.log.Debug("synth: split into %d chunks for parallel synthesis", len(chunks))
	}

	type result struct {
		idx   int
		audio []byte
		err   error
	}
	results := make(chan result, len(chunks))
	for i, chunk := range chunks {
		go func(idx int, text string) {
			audio, err := s.synthesizeWithCache(ctx, text, p)
			results <- result{idx: idx, audio: audio, err: err}
		}(i, chunk)
	}

	slots := make([][]byte, len(chunks))
	var firstErr error
	for range chunks {
		r := <-results
		if r.err != nil {
			s.log.Error("synth: chunk %d synthesis failed: %v", r.idx, r.err)
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		slots[r.idx] = r.audio
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	played := 0
	for i, audio := range slots {
		if audio == nil {
			continue
		}
		if err := s.player.Play(ctx, audio); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			s.log.Error("synth: chunk %d playback failed: %v", i, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		played++
	}
	if played == 0 && firstErr != nil {
		return firstErr
	}
	return nil
}

// Cancel stops the audio that is playing.
func (s *AzureSynthesizer) Cancel() {
	s.player.Stop()
}

// Prefetch synthesizes texts in the background so their first playback
// starts at once. Texts already cached are skipped.
func (s *AzureSynthesizer) Prefetch(ctx context.Context, p Prosody, texts ...string) {
	for _, text := range texts {
		for _, chunk := range splitChunks(text, s.chunkSize) {
			if chunk == "" {
				continue
			}
			go func(t string) {
				if _, err := s.synthesizeWithCache(ctx, t, p); err != nil && !errors.Is(err, context.Canceled) {
					s.log.Debug("prefetch: synthesis failed: %v", err)
				}
			}(chunk)
		}
	}
}

func (s *AzureSynthesizer) synthesizeWithCache(ctx context.Context, text string, p Prosody) ([]byte, error) {
	if audio, ok := s.cache.Get(text, p); ok {
		return audio, nil
	}
	audio, err := s.tts.Synthesize(ctx, text, p)
	if err != nil {
		return nil, err
	}
	s.cache.Put(text, p, audio)
	return audio, nil
}
