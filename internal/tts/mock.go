package tts

import (
	"context"
	"fmt"
)

type mockSynth struct{}

// NewMockSynth returns a synthesizer that never leaves the process. The
// payload is a placeholder naming the voice and text, useful for dry runs.
func NewMockSynth() Synthesizer {
	return &mockSynth{}
}

func (m *mockSynth) Synthesize(ctx context.Context, req SynthRequest) (Audio, error) {
	if err := ctx.Err(); err != nil {
		return Audio{}, err
	}
	data := []byte(fmt.Sprintf("mock-audio model=%s voice=%s text=%q\n", req.Model, req.Voice, req.Text))
	return Audio{Data: data, Format: "mp3"}, nil
}
