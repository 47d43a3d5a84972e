package platform

import (
	"errors"

	"github.com/hammamikhairi/voicecart/internal/domain"
	"github.com/hammamikhairi/voicecart/internal/logger"
)

// checker is implemented by backends that can verify their prerequisites
// without starting a session.
type checker interface {
	Check() error
}

// ProbeCapabilities determines once, at startup, which speech capabilities
// this process has. A nil port is unavailable.
func ProbeCapabilities(rec domain.Recognizer, synth domain.Synthesizer, log *logger.Logger) domain.Capabilities {
	caps := domain.Capabilities{
		Recognition: probe(rec != nil, rec, "no recognizer configured"),
		Synthesis:   probe(synth != nil, synth, "no synthesizer configured"),
	}
	log.Info("capabilities: recognition %s, synthesis %s", caps.Recognition, caps.Synthesis)
	return caps
}

func probe(present bool, port any, missing string) domain.Capability {
	if !present {
		return domain.Unavailable(missing)
	}
	c, ok := port.(checker)
	if !ok {
		return domain.Available()
	}
	if err := c.Check(); err != nil {
		return domain.Unavailable(reason(err))
	}
	return domain.Available()
}

// reason strips the taxonomy prefix off a check failure.
func reason(err error) string {
	var se *domain.SpeechError
	if errors.As(err, &se) && se.Err != nil {
		return se.Err.Error()
	}
	return err.Error()
}
