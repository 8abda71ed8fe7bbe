// Package analysis sends recorded media to the configured affect and
// transcript backends and normalizes their heterogeneous replies into one
// backend-agnostic Result.
package analysis

import (
	"fmt"
	"time"
)

// Sentiment is an optional label/score pair derived from the transcript.
type Sentiment struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Result is the canonical analysis shape. Every field is optional;
// absence is expected and defaults downstream rather than failing.
type Result struct {
	FaceEmotion      *string
	VoiceEmotion     *string
	Transcript       *string
	MaxPitch         *float64
	MinPitch         *float64
	AverageIntensity *float64
	Sentiment        *Sentiment
}

// BackendError reports a failed call to an analysis backend: a transport
// error or a non-success status. The response body, when available, is
// carried for logging (bounded upstream).
type BackendError struct {
	Backend string
	Status  int
	Body    string
	Err     error
}

func (e *BackendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("analysis: %s backend: %v", e.Backend, e.Err)
	}
	return fmt.Sprintf("analysis: %s backend returned status %d: %s", e.Backend, e.Status, e.Body)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Topology selects how many analysis services handle one media turn.
const (
	// ModeCombined sends the media to a single service that returns face
	// and voice signals together.
	ModeCombined = "combined"
	// ModeSplit fans out to separate audio and video services and joins
	// both before returning.
	ModeSplit = "split"
)

// Config describes the analysis backend topology.
type Config struct {
	Mode        string
	CombinedURL string
	AudioURL    string
	VideoURL    string
	Timeout     time.Duration
}

// backendPayload covers every field name observed across backend
// versions. Unknown fields are ignored, missing ones stay nil.
type backendPayload struct {
	Mood             *string    `json:"mood"`
	FaceEmotion      *string    `json:"face_emotion"`
	VoiceEmotion     *string    `json:"voice_emotion"`
	Transcript       *string    `json:"transcript"`
	Transcription    *string    `json:"transcription"`
	MaxPitch         *float64   `json:"max_pitch"`
	MinPitch         *float64   `json:"min_pitch"`
	AverageIntensity *float64   `json:"average_intensity"`
	Sentiment        *Sentiment `json:"sentiment"`
}

// merge folds one backend reply into the canonical result. Explicit
// face_emotion wins over the older mood field, transcript over the older
// transcription spelling.
func (r *Result) merge(p *backendPayload) {
	if p == nil {
		return
	}
	if p.FaceEmotion != nil {
		r.FaceEmotion = p.FaceEmotion
	} else if p.Mood != nil {
		r.FaceEmotion = p.Mood
	}
	if p.VoiceEmotion != nil {
		r.VoiceEmotion = p.VoiceEmotion
	}
	if p.Transcript != nil {
		r.Transcript = p.Transcript
	} else if p.Transcription != nil {
		r.Transcript = p.Transcription
	}
	if p.MaxPitch != nil {
		r.MaxPitch = p.MaxPitch
	}
	if p.MinPitch != nil {
		r.MinPitch = p.MinPitch
	}
	if p.AverageIntensity != nil {
		r.AverageIntensity = p.AverageIntensity
	}
	if p.Sentiment != nil {
		r.Sentiment = p.Sentiment
	}
}
