package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
)

type execSynth struct {
	cmd []string
}

type execRequest struct {
	Text  string `json:"text"`
	Model string `json:"model"`
	Voice string `json:"voice"`
}

// NewExecSynth runs a local command per line. The command receives the request
// as JSON on stdin and must write the audio bytes to stdout.
func NewExecSynth(command string) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return &execSynth{cmd: args}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, req SynthRequest) (Audio, error) {
	input, err := json.Marshal(execRequest{Text: req.Text, Model: req.Model, Voice: req.Voice})
	if err != nil {
		return Audio{}, err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(input)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return Audio{}, &StatusError{Code: exitErr.ExitCode(), Body: strings.TrimSpace(stderr.String())}
		}
		return Audio{}, fmt.Errorf("tts exec command failed: %w", err)
	}
	return Audio{Data: output, Format: "mp3"}, nil
}
