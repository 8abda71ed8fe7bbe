// Package prompt renders the safety-constrained instruction block sent to
// the generative backend. Composition is pure: analysis output, history,
// and the fixed ruleset in, one prompt string or message list out.
package prompt

import (
	"fmt"
	"strings"

	"github.com/normanking/empath/internal/analysis"
	"github.com/normanking/empath/internal/store"
)

// SystemPrompt is the fixed, ordered behavioral ruleset. Every
// assistant-generating call includes it, either verbatim in the rendered
// prompt or as the leading system message.
const SystemPrompt = `You are an empathetic mental-wellness companion. Follow these rules, in order:
1. Reflect the user's emotion back to them in one sentence.
2. Validate the feeling.
3. Offer exactly one practical coping action the user can take within minutes.
4. Ask at most one clarifying question, and only if it improves safety or usefulness.
5. Never give a diagnosis or medication advice; use hedged language such as "it might help to" instead.
6. If the user signals self-harm or imminent danger, switch to brief, direct safety triage: ask whether they are safe right now, recommend contacting local emergency services or a crisis line, and never describe harmful methods. Escalate rather than counsel.
7. Otherwise, close warmly and offer to continue the conversation.
Keep replies to 2-6 sentences, except in a crisis, where brevity and directness take priority.`

// Default substitutions for absent analysis fields.
const (
	DefaultEmotion    = "neutral"
	DefaultMetric     = "unknown"
	DefaultTranscript = "No transcript available"
)

// Describe renders the analysis result as the block that stands in for
// the user's message on a media turn. Absent fields substitute their
// defaults instead of rendering empty or failing.
func Describe(res *analysis.Result) string {
	face := DefaultEmotion
	if res != nil && res.FaceEmotion != nil && *res.FaceEmotion != "" {
		face = *res.FaceEmotion
	}
	voice := DefaultEmotion
	if res != nil && res.VoiceEmotion != nil && *res.VoiceEmotion != "" {
		voice = *res.VoiceEmotion
	}
	transcript := DefaultTranscript
	if res != nil && res.Transcript != nil && *res.Transcript != "" {
		transcript = *res.Transcript
	}
	sentimentLabel := DefaultMetric
	sentimentScore := 0.0
	if res != nil && res.Sentiment != nil {
		sentimentLabel = res.Sentiment.Label
		sentimentScore = res.Sentiment.Score
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The user is in a %s mood.\n", face)
	b.WriteString("The voice analysis is:\n")
	fmt.Fprintf(&b, "  - Voice Emotion: %s\n", voice)
	fmt.Fprintf(&b, "  - Max Pitch: %s\n", metric(resMaxPitch(res)))
	fmt.Fprintf(&b, "  - Min Pitch: %s\n", metric(resMinPitch(res)))
	fmt.Fprintf(&b, "  - Average Intensity: %s\n", metric(resIntensity(res)))
	b.WriteString("  - Sentiment Analysis:\n")
	fmt.Fprintf(&b, "      - Label: %s\n", sentimentLabel)
	fmt.Fprintf(&b, "      - Score: %g\n", sentimentScore)
	fmt.Fprintf(&b, "  - Transcript: %q", transcript)
	return b.String()
}

// UserContent is what this turn contributes as the user message: the
// typed text on a text turn, the rendered analysis block on a media turn.
func UserContent(res *analysis.Result, userText string) string {
	if res == nil {
		return userText
	}
	return Describe(res)
}

// Compose renders the single-string prompt for prompt-mode backends:
// ruleset, recent history up to the trim bound, then this turn's content.
// history may be nil for context-vector deployments, where the backend
// carries its own memory.
func Compose(res *analysis.Result, userText string, history []store.Message) string {
	var b strings.Builder
	b.WriteString(SystemPrompt)
	b.WriteString("\n\n")

	if transcript := historyTranscript(history); transcript != "" {
		b.WriteString("Conversation so far:\n")
		b.WriteString(transcript)
		b.WriteString("\n")
	}

	b.WriteString(UserContent(res, userText))
	b.WriteString("\n\nRespond to the user now.")
	return b.String()
}

// ComposeMessages returns the ordered message list for chat-mode
// backends: history (anchored by the system ruleset) plus the new user
// message. The input slice is never mutated.
func ComposeMessages(res *analysis.Result, userText string, history []store.Message) []store.Message {
	out := make([]store.Message, 0, len(history)+2)
	if len(history) == 0 || history[0].Role != store.RoleSystem {
		out = append(out, store.Message{Role: store.RoleSystem, Content: SystemPrompt})
	}
	out = append(out, history...)
	out = append(out, store.Message{Role: store.RoleUser, Content: UserContent(res, userText)})
	return out
}

// historyTranscript flattens prior user/assistant messages into
// role-prefixed lines. The system message is carried separately.
func historyTranscript(history []store.Message) string {
	var b strings.Builder
	for _, m := range history {
		switch m.Role {
		case store.RoleUser:
			fmt.Fprintf(&b, "User: %s\n", m.Content)
		case store.RoleAssistant:
			fmt.Fprintf(&b, "Assistant: %s\n", m.Content)
		}
	}
	return b.String()
}

func metric(v *float64) string {
	if v == nil {
		return DefaultMetric
	}
	return fmt.Sprintf("%g", *v)
}

func resMaxPitch(res *analysis.Result) *float64 {
	if res == nil {
		return nil
	}
	return res.MaxPitch
}

func resMinPitch(res *analysis.Result) *float64 {
	if res == nil {
		return nil
	}
	return res.MinPitch
}

func resIntensity(res *analysis.Result) *float64 {
	if res == nil {
		return nil
	}
	return res.AverageIntensity
}
