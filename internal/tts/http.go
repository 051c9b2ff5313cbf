package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

type httpSynth struct {
	endpoint   string
	apiKey     string
	apiVersion string
	client     *http.Client
}

type speechRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
	Voice string `json:"voice"`
}

// NewHTTPSynth talks to an OpenAI-style speech deployment that authenticates
// with an api-key header and pins the API version in the query string.
func NewHTTPSynth(endpoint, apiKey, apiVersion string, timeout time.Duration) (Synthesizer, error) {
	if endpoint == "" {
		return nil, errors.New("tts endpoint empty")
	}
	if apiKey == "" {
		return nil, errors.New("tts api key empty")
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("parse tts endpoint: %w", err)
	}
	return &httpSynth{
		endpoint:   endpoint,
		apiKey:     apiKey,
		apiVersion: apiVersion,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

func (h *httpSynth) Synthesize(ctx context.Context, req SynthRequest) (Audio, error) {
	body, err := json.Marshal(speechRequest{Model: req.Model, Input: req.Text, Voice: req.Voice})
	if err != nil {
		return Audio{}, err
	}

	target, err := url.Parse(h.endpoint)
	if err != nil {
		return Audio{}, fmt.Errorf("parse tts endpoint: %w", err)
	}
	if h.apiVersion != "" {
		query := target.Query()
		query.Set("api-version", h.apiVersion)
		target.RawQuery = query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return Audio{}, err
	}
	httpReq.Header.Set("api-key", h.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return Audio{}, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return Audio{}, &StatusError{Code: resp.StatusCode, Body: string(b)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Audio{}, fmt.Errorf("read tts response: %w", err)
	}
	return Audio{Data: data, Format: "mp3"}, nil
}
