package tts

import (
	"fmt"
	"time"

	"github.com/loqalabs/loqa-voiceover/internal/config"
)

// New builds the synthesizer selected by cfg.Mode.
func New(cfg config.TTSConfig) (Synthesizer, error) {
	switch cfg.Mode {
	case "http", "":
		return NewHTTPSynth(cfg.Endpoint, cfg.APIKey, cfg.APIVersion, time.Duration(cfg.TimeoutMS)*time.Millisecond)
	case "exec":
		return NewExecSynth(cfg.Command)
	case "mock":
		return NewMockSynth(), nil
	default:
		return nil, fmt.Errorf("unsupported tts mode %q", cfg.Mode)
	}
}
