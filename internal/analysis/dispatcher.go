package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// maxErrorBodySize bounds how much of a failed backend response is kept
// for the error message.
const maxErrorBodySize = 1 * 1024 * 1024

// Dispatcher fans media bytes out to the configured analysis backends.
type Dispatcher struct {
	cfg    Config
	client *http.Client
}

// NewDispatcher applies defaults and builds the shared HTTP client.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Mode == "" {
		cfg.Mode = ModeSplit
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Dispatcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Analyze runs the configured topology and returns the normalized result.
// In split mode both calls run concurrently and both must succeed: the
// prompt is never built from a partial pair. Failures are returned as
// *BackendError; missing response fields stay nil and never fail.
func (d *Dispatcher) Analyze(ctx context.Context, media []byte, contentType string) (*Result, error) {
	start := time.Now()

	res := &Result{}
	switch d.cfg.Mode {
	case ModeCombined:
		payload, err := d.post(ctx, "combined", d.cfg.CombinedURL, media, contentType)
		if err != nil {
			return nil, err
		}
		res.merge(payload)

	case ModeSplit:
		var audio, video *backendPayload
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			p, err := d.post(gctx, "audio", d.cfg.AudioURL, media, contentType)
			if err != nil {
				return err
			}
			audio = p
			return nil
		})
		g.Go(func() error {
			p, err := d.post(gctx, "video", d.cfg.VideoURL, media, contentType)
			if err != nil {
				return err
			}
			video = p
			return nil
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		res.merge(audio)
		res.merge(video)

	default:
		return nil, fmt.Errorf("analysis: unknown mode %q", d.cfg.Mode)
	}

	log.Debug().
		Str("mode", d.cfg.Mode).
		Dur("duration", time.Since(start)).
		Bool("has_transcript", res.Transcript != nil).
		Msg("media analysis complete")
	return res, nil
}

// post uploads the media as a multipart body with field "file" and
// decodes whatever subset of known fields the backend returns.
func (d *Dispatcher) post(ctx context.Context, backend, url string, media []byte, contentType string) (*backendPayload, error) {
	if url == "" {
		return nil, &BackendError{Backend: backend, Err: fmt.Errorf("endpoint not configured")}
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "recording"+extensionFor(contentType))
	if err != nil {
		return nil, &BackendError{Backend: backend, Err: fmt.Errorf("build multipart body: %w", err)}
	}
	if _, err := part.Write(media); err != nil {
		return nil, &BackendError{Backend: backend, Err: fmt.Errorf("build multipart body: %w", err)}
	}
	if err := mw.Close(); err != nil {
		return nil, &BackendError{Backend: backend, Err: fmt.Errorf("build multipart body: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, &BackendError{Backend: backend, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, &BackendError{Backend: backend, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		log.Error().Str("backend", backend).Int("status", resp.StatusCode).
			Str("body", string(raw)).Msg("analysis backend failed")
		return nil, &BackendError{Backend: backend, Status: resp.StatusCode, Body: string(raw)}
	}

	var payload backendPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &BackendError{Backend: backend, Err: fmt.Errorf("decode response: %w", err)}
	}
	return &payload, nil
}

// extensionFor picks a file extension for the multipart part name so
// backends that sniff by name still recognize the upload.
func extensionFor(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ".bin"
	}
	switch mt {
	case "video/webm", "audio/webm":
		return ".webm"
	case "video/mp4":
		return ".mp4"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/mpeg":
		return ".mp3"
	default:
		return ".bin"
	}
}
