// Package pipeline drives a single turn through its stages: normalize
// the input, analyze media, compose the prompt, generate the reply,
// persist the exchange, optionally synthesize speech. Conversation
// state is written only after generation succeeds, so a failed turn
// leaves the prior state untouched.
package pipeline

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/normanking/empath/internal/analysis"
	"github.com/normanking/empath/internal/llm"
	"github.com/normanking/empath/internal/prompt"
	"github.com/normanking/empath/internal/store"
	"github.com/normanking/empath/internal/synthesis"
	"github.com/normanking/empath/internal/turn"
)

// Stage names where a turn is in its lifecycle.
type Stage int

const (
	StageReceived Stage = iota
	StageNormalized
	StageAnalyzed
	StagePrompted
	StageGenerated
	StagePersisted
	StageSynthesized
	StageResponded
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageReceived:
		return "received"
	case StageNormalized:
		return "normalized"
	case StageAnalyzed:
		return "analyzed"
	case StagePrompted:
		return "prompted"
	case StageGenerated:
		return "generated"
	case StagePersisted:
		return "persisted"
	case StageSynthesized:
		return "synthesized"
	case StageResponded:
		return "responded"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Generation modes. Prompt mode sends a rendered prompt plus the
// backend's opaque context vector; chat mode sends the message list.
const (
	ModePrompt = "prompt"
	ModeChat   = "chat"
)

// Analyzer extracts emotional signals from a media recording.
type Analyzer interface {
	Analyze(ctx context.Context, media []byte, contentType string) (*analysis.Result, error)
}

// Generator produces the reply from the generative backend.
type Generator interface {
	Generate(ctx context.Context, prompt string, prior []int) (*llm.ReplyResult, error)
	Chat(ctx context.Context, messages []llm.Message) (*llm.ReplyResult, error)
}

// Speaker renders reply text to audio. Synthesis failures never fail
// the turn.
type Speaker interface {
	Synthesize(ctx context.Context, text string) (*synthesis.Job, error)
}

// Outcome is the result of a completed turn.
type Outcome struct {
	Stage     Stage
	Reply     string
	Audio     []byte
	AudioMime string
}

// Pipeline wires the stages together. A nil speaker disables speech
// synthesis; the analyzer is only consulted for media turns.
type Pipeline struct {
	store     store.Store
	analyzer  Analyzer
	generator Generator
	speaker   Speaker
	mode      string
}

func New(st store.Store, analyzer Analyzer, generator Generator, speaker Speaker, mode string) *Pipeline {
	if mode == "" {
		mode = ModePrompt
	}
	return &Pipeline{
		store:     st,
		analyzer:  analyzer,
		generator: generator,
		speaker:   speaker,
		mode:      mode,
	}
}

// Run processes one turn for the given conversation. Errors before the
// persist stage leave the stored conversation exactly as it was.
func (p *Pipeline) Run(ctx context.Context, conversationID, text string, media []byte, contentType string) (*Outcome, error) {
	stage := StageReceived

	t, err := turn.Normalize(text, media, contentType)
	if err != nil {
		return nil, p.fail(conversationID, stage, err)
	}
	stage = p.advance(conversationID, StageNormalized)

	var result *analysis.Result
	if t.Mode == turn.ModeMedia {
		result, err = p.analyzer.Analyze(ctx, t.Media, t.ContentType)
		if err != nil {
			return nil, p.fail(conversationID, stage, err)
		}
		stage = p.advance(conversationID, StageAnalyzed)
	}

	conv, err := p.store.Load(ctx, conversationID)
	if err != nil {
		return nil, p.fail(conversationID, stage, err)
	}

	var reply *llm.ReplyResult
	switch p.mode {
	case ModeChat:
		messages := prompt.ComposeMessages(result, t.Text, conv.Messages)
		stage = p.advance(conversationID, StagePrompted)
		reply, err = p.generator.Chat(ctx, toBackendMessages(messages))
	default:
		// History rides in the backend's context vector, not the prompt.
		rendered := prompt.Compose(result, t.Text, nil)
		stage = p.advance(conversationID, StagePrompted)
		reply, err = p.generator.Generate(ctx, rendered, conv.Context)
	}
	if err != nil {
		return nil, p.fail(conversationID, stage, err)
	}
	stage = p.advance(conversationID, StageGenerated)

	userContent := prompt.UserContent(result, t.Text)
	err = p.store.Update(ctx, conversationID, func(c *store.Conversation) error {
		switch p.mode {
		case ModeChat:
			c.Append(store.Message{Role: store.RoleUser, Content: userContent})
			c.Append(store.Message{Role: store.RoleAssistant, Content: reply.Text})
		default:
			c.Context = reply.Context
		}
		return nil
	})
	if err != nil {
		return nil, p.fail(conversationID, stage, err)
	}
	stage = p.advance(conversationID, StagePersisted)

	outcome := &Outcome{Reply: reply.Text}
	if p.speaker != nil {
		job, synthErr := p.speaker.Synthesize(ctx, reply.Text)
		if synthErr != nil {
			log.Warn().Err(synthErr).Str("conversation", conversationID).
				Msg("speech synthesis failed, answering with text only")
		} else {
			outcome.Audio = job.Audio
			outcome.AudioMime = job.Mime
			stage = p.advance(conversationID, StageSynthesized)
		}
	}

	outcome.Stage = p.advance(conversationID, StageResponded)
	return outcome, nil
}

func (p *Pipeline) advance(conversationID string, next Stage) Stage {
	log.Debug().Str("conversation", conversationID).Stringer("stage", next).
		Msg("turn advanced")
	return next
}

func (p *Pipeline) fail(conversationID string, last Stage, err error) error {
	log.Error().Err(err).Str("conversation", conversationID).
		Stringer("last_stage", last).Msg("turn failed")
	return err
}

func toBackendMessages(messages []store.Message) []llm.Message {
	out := make([]llm.Message, len(messages))
	for i, m := range messages {
		out[i] = llm.Message{Role: m.Role, Content: m.Content}
	}
	return out
}
