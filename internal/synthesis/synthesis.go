// Package synthesis turns reply text into speech through a gradio-style
// backend. Synthesis is two-phase: submit the text and receive a file
// locator, then fetch the locator for the audio bytes. The Job type
// tracks a request through both phases.
package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const maxErrorBodySize = 1 * 1024 * 1024

// State tracks where a synthesis job is in its lifecycle.
type State int

const (
	StateSubmitted State = iota
	StateReady
	StateFetched
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSubmitted:
		return "submitted"
	case StateReady:
		return "ready"
	case StateFetched:
		return "fetched"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// BackendError reports a failure from the synthesis backend. The
// pipeline treats it as non-fatal and degrades the turn to text-only.
type BackendError struct {
	Phase  string // "submit" or "fetch"
	Status int
	Body   string
	Err    error
}

func (e *BackendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("synthesis: %s phase: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("synthesis: %s phase returned status %d: %s", e.Phase, e.Status, e.Body)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Job is one text-to-speech request moving through the two phases.
type Job struct {
	State   State
	Text    string
	Locator string
	Audio   []byte
	Mime    string
}

// Config contains the voice-shaping parameters sent on every submit.
type Config struct {
	BaseURL string
	Timeout time.Duration

	Exaggeration float64 // 0.25-2.0: emotion intensity
	Temperature  float64 // sampling temperature
	Seed         int
	CFGWeight    float64 // 0.0-1.0: pace control
	VADTrim      bool

	// VoicePromptPath names a server-side reference recording used for
	// voice cloning. Empty means the backend's default voice.
	VoicePromptPath string
}

// Synthesizer drives jobs against the backend.
type Synthesizer struct {
	config Config
	client *http.Client
}

// NewSynthesizer applies voice-shaping defaults matching the backend's
// own UI defaults.
func NewSynthesizer(config Config) *Synthesizer {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:7860"
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.Exaggeration == 0 {
		config.Exaggeration = 0.5
	}
	if config.Temperature == 0 {
		config.Temperature = 0.8
	}
	if config.CFGWeight == 0 {
		config.CFGWeight = 0.5
	}

	return &Synthesizer{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// Synthesize runs the full two-phase round trip. The returned Job ends
// in StateFetched on success and StateFailed otherwise; in the failure
// case the returned error is a *BackendError.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (*Job, error) {
	job := &Job{State: StateSubmitted, Text: text}

	locator, err := s.submit(ctx, text)
	if err != nil {
		job.State = StateFailed
		return job, err
	}
	job.State = StateReady
	job.Locator = locator

	audio, mime, err := s.fetch(ctx, locator)
	if err != nil {
		job.State = StateFailed
		return job, err
	}
	job.State = StateFetched
	job.Audio = audio
	job.Mime = mime

	log.Debug().Str("locator", locator).Int("bytes", len(audio)).
		Msg("speech synthesis complete")
	return job, nil
}

// submit posts the text and voice-shaping fields, returning the file
// locator the backend minted for the rendered audio.
func (s *Synthesizer) submit(ctx context.Context, text string) (string, error) {
	phaseCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fields := map[string]string{
		"text_input":         text,
		"exaggeration_input": strconv.FormatFloat(s.config.Exaggeration, 'f', -1, 64),
		"temperature_input":  strconv.FormatFloat(s.config.Temperature, 'f', -1, 64),
		"seed_num_input":     strconv.Itoa(s.config.Seed),
		"cfgw_input":         strconv.FormatFloat(s.config.CFGWeight, 'f', -1, 64),
		"vad_trim_input":     strconv.FormatBool(s.config.VADTrim),
	}
	if s.config.VoicePromptPath != "" {
		fields["audio_prompt_path_input"] = s.config.VoicePromptPath
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return "", &BackendError{Phase: "submit", Err: fmt.Errorf("write field %s: %w", name, err)}
		}
	}
	if err := writer.Close(); err != nil {
		return "", &BackendError{Phase: "submit", Err: fmt.Errorf("close multipart writer: %w", err)}
	}

	req, err := http.NewRequestWithContext(phaseCtx, http.MethodPost, s.config.BaseURL+"/generate", &buf)
	if err != nil {
		return "", &BackendError{Phase: "submit", Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return "", &BackendError{Phase: "submit", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return "", &BackendError{Phase: "submit", Status: resp.StatusCode, Body: string(raw)}
	}

	var decoded struct {
		Data []string `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", &BackendError{Phase: "submit", Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(decoded.Data) == 0 || decoded.Data[0] == "" {
		return "", &BackendError{Phase: "submit", Err: fmt.Errorf("response carries no audio locator")}
	}
	return decoded.Data[0], nil
}

// fetch retrieves the rendered audio behind the locator.
func (s *Synthesizer) fetch(ctx context.Context, locator string) ([]byte, string, error) {
	phaseCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	// Backends hand back either an absolute URL or a server-relative
	// path; relative locators resolve against the backend base URL.
	url := locator
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		if !strings.HasPrefix(url, "/") {
			url = "/" + url
		}
		url = s.config.BaseURL + url
	}

	req, err := http.NewRequestWithContext(phaseCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", &BackendError{Phase: "fetch", Err: fmt.Errorf("create request: %w", err)}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", &BackendError{Phase: "fetch", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, "", &BackendError{Phase: "fetch", Status: resp.StatusCode, Body: string(raw)}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &BackendError{Phase: "fetch", Err: fmt.Errorf("read audio: %w", err)}
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "audio/wav"
	}
	return audio, mime, nil
}
