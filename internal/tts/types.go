package tts

import (
	"context"
	"fmt"
)

// SynthRequest contains parameters to synthesize speech.
type SynthRequest struct {
	Text  string
	Model string
	Voice string
}

// Audio is a synthesized payload, written to disk as-is.
type Audio struct {
	Data   []byte
	Format string
}

// Synthesizer is the contract for producing audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthRequest) (Audio, error)
}

// StatusError reports a non-200 answer from the synthesis endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tts endpoint returned status %d: %s", e.Code, e.Body)
}
