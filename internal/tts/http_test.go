package tts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPSynthRequestShape(t *testing.T) {
	var got speechRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if v := r.URL.Query().Get("api-version"); v != "2024-05-01-preview" {
			t.Errorf("unexpected api-version %q", v)
		}
		if v := r.URL.Query().Get("deployment"); v != "tts" {
			t.Errorf("existing query lost, got %q", v)
		}
		if v := r.Header.Get("api-key"); v != "secret" {
			t.Errorf("unexpected api-key %q", v)
		}
		if v := r.Header.Get("Content-Type"); v != "application/json" {
			t.Errorf("unexpected content type %q", v)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ID3-audio"))
	}))
	defer srv.Close()

	synth, err := NewHTTPSynth(srv.URL+"/speech?deployment=tts", "secret", "2024-05-01-preview", 5*time.Second)
	if err != nil {
		t.Fatalf("new synth: %v", err)
	}
	audio, err := synth.Synthesize(context.Background(), SynthRequest{Text: "Hello world", Model: "tts-hd", Voice: "echo"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(audio.Data) != "ID3-audio" {
		t.Fatalf("unexpected payload %q", audio.Data)
	}
	if got.Model != "tts-hd" || got.Input != "Hello world" || got.Voice != "echo" {
		t.Fatalf("unexpected request body %+v", got)
	}
}

func TestHTTPSynthNonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	synth, err := NewHTTPSynth(srv.URL, "secret", "2024-05-01-preview", 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	_, err = synth.Synthesize(context.Background(), SynthRequest{Text: "x"})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusTooManyRequests || statusErr.Body != `{"error":"rate limited"}` {
		t.Fatalf("unexpected status error %+v", statusErr)
	}
}

func TestHTTPSynthTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	synth, err := NewHTTPSynth(url, "secret", "", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	_, err = synth.Synthesize(context.Background(), SynthRequest{Text: "x"})
	if err == nil {
		t.Fatal("expected transport error")
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		t.Fatalf("transport failure must not look like a status error: %v", err)
	}
}

func TestNewHTTPSynthRequiresCredentials(t *testing.T) {
	if _, err := NewHTTPSynth("", "k", "", time.Second); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
	if _, err := NewHTTPSynth("http://localhost", "", "", time.Second); err == nil {
		t.Fatal("expected error for empty key")
	}
}
