package platform

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/hammamikhairi/voicecart/internal/domain"
	"github.com/hammamikhairi/voicecart/internal/logger"
)

// AudioSource streams 16-bit little-endian mono PCM at CaptureSampleRate.
// The channel is closed once ctx is done or capture fails.
type AudioSource interface {
	Open(ctx context.Context) (<-chan []byte, error)
}

// Compile-time interface checks.
var (
	_ AudioSource            = (*MalgoCapture)(nil)
	_ domain.PermissionProbe = (*MicProbe)(nil)
)

const captureQueueCap = 32

// MalgoCapture captures the default microphone via miniaudio.
type MalgoCapture struct {
	log *logger.Logger
}

// NewMalgoCapture creates a capture source.
func NewMalgoCapture(log *logger.Logger) *MalgoCapture {
	return &MalgoCapture{log: log}
}

// Open starts capture. Frames that the consumer does not take in time
// are dropped.
func (m *MalgoCapture) Open(ctx context.Context) (<-chan []byte, error) {
	mCtx, device, frames, err := openCapture(m.log)
	if err != nil {
		return nil, err
	}

	out := make(chan []byte, captureQueueCap)
	go func() {
		defer close(out)
		defer func() {
			_ = device.Stop()
			device.Uninit()
			_ = mCtx.Uninit()
			mCtx.Free()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case frame := <-frames:
				select {
				case out <- frame:
				default:
				}
			}
		}
	}()
	return out, nil
}

// openCapture initializes and starts a capture device.
func openCapture(log *logger.Logger) (*malgo.AllocatedContext, *malgo.Device, <-chan []byte, error) {
	mCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(_ string) {})
	if err != nil {
		return nil, nil, nil, classifyDeviceError(err)
	}

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.SampleRate = CaptureSampleRate
	devCfg.Capture.Format = malgo.FormatS16
	devCfg.Capture.Channels = CaptureChannels
	devCfg.Alsa.NoMMap = 1

	frames := make(chan []byte, captureQueueCap)
	var drops atomic.Int64
	callbacks := malgo.DeviceCallbacks{
		Data: func(_ []byte, raw []byte, _ uint32) {
			if len(raw) == 0 {
				return
			}
			frame := append([]byte(nil), raw...)
			select {
			case frames <- frame:
			default:
				if drops.Add(1)%100 == 1 {
					log.Debug("capture: dropping frames (total=%d)", drops.Load())
				}
			}
		},
	}

	device, err := malgo.InitDevice(mCtx.Context, devCfg, callbacks)
	if err != nil {
		_ = mCtx.Uninit()
		mCtx.Free()
		return nil, nil, nil, classifyDeviceError(err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mCtx.Uninit()
		mCtx.Free()
		return nil, nil, nil, classifyDeviceError(err)
	}
	log.Debug("capture: started (rate=%d)", CaptureSampleRate)
	return mCtx, device, frames, nil
}

// MicProbe is the explicit microphone permission probe: it opens the
// capture device once and releases it.
type MicProbe struct {
	log *logger.Logger
}

// NewMicProbe creates a probe.
func NewMicProbe(log *logger.Logger) *MicProbe {
	return &MicProbe{log: log}
}

// RequestMicrophone returns nil when the microphone can be opened.
func (p *MicProbe) RequestMicrophone(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mCtx, device, _, err := openCapture(p.log)
	if err != nil {
		p.log.Warn("mic probe: %v", err)
		return err
	}
	_ = device.Stop()
	device.Uninit()
	_ = mCtx.Uninit()
	mCtx.Free()
	p.log.Debug("mic probe: granted")
	return nil
}

// classifyDeviceError maps a miniaudio failure to the speech taxonomy.
func classifyDeviceError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission"), strings.Contains(msg, "access denied"), strings.Contains(msg, "not allowed"):
		return domain.NewSpeechError(domain.KindPermissionDenied, "not-allowed", err)
	case strings.Contains(msg, "no device"), strings.Contains(msg, "no backend"), strings.Contains(msg, "not found"):
		return domain.NewSpeechError(domain.KindUnsupported, "unsupported", err)
	default:
		return domain.NewSpeechError(domain.KindOther, "audio-capture", fmt.Errorf("capture device: %w", err))
	}
}
