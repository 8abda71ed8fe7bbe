// Package turn normalizes one inbound submission into a tagged Turn.
package turn

import (
	"errors"
	"strings"
)

// Mode tags how a turn should travel through the pipeline.
type Mode int

const (
	// ModeText carries a typed prompt straight to the generative backend.
	ModeText Mode = iota
	// ModeMedia carries recorded bytes through the analysis dispatcher.
	ModeMedia
)

func (m Mode) String() string {
	if m == ModeMedia {
		return "media"
	}
	return "text"
}

// ErrMissingInput is returned when a submission carries neither a usable
// text prompt nor a file.
var ErrMissingInput = errors.New("turn: neither text prompt nor file provided")

// Turn is one inbound user interaction. Exactly one payload is set
// according to Mode. Turns are request-scoped and never persisted.
type Turn struct {
	Mode        Mode
	Text        string
	Media       []byte
	ContentType string
}

// Normalize applies the mode selection rule: a non-empty text prompt
// selects text mode and any attached file is ignored outright. Text takes
// exclusive precedence; the two inputs are never combined. Without text a
// file is required.
func Normalize(text string, media []byte, contentType string) (*Turn, error) {
	if trimmed := strings.TrimSpace(text); trimmed != "" {
		return &Turn{Mode: ModeText, Text: trimmed}, nil
	}
	if len(media) == 0 {
		return nil, ErrMissingInput
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &Turn{Mode: ModeMedia, Media: media, ContentType: contentType}, nil
}
