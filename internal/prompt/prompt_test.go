package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/empath/internal/analysis"
	"github.com/normanking/empath/internal/store"
)

func strPtr(s string) *string   { return &s }
func f64Ptr(f float64) *float64 { return &f }

func TestDescribeSubstitutesDefaults(t *testing.T) {
	res := &analysis.Result{
		FaceEmotion: strPtr("sad"),
		Transcript:  strPtr("I'm tired"),
	}

	out := Describe(res)

	assert.Contains(t, out, "sad")
	assert.Contains(t, out, "I'm tired")
	// Missing voice emotion renders "neutral", never an empty string.
	assert.Contains(t, out, "Voice Emotion: neutral")
	assert.Contains(t, out, "Max Pitch: unknown")
	assert.Contains(t, out, "Min Pitch: unknown")
	assert.Contains(t, out, "Label: unknown")
	assert.Contains(t, out, "Score: 0")
}

func TestDescribeNilResult(t *testing.T) {
	out := Describe(nil)
	assert.Contains(t, out, "neutral mood")
	assert.Contains(t, out, DefaultTranscript)
}

func TestDescribeFullResult(t *testing.T) {
	res := &analysis.Result{
		FaceEmotion:      strPtr("happy"),
		VoiceEmotion:     strPtr("calm"),
		Transcript:       strPtr("what a day"),
		MaxPitch:         f64Ptr(412.5),
		MinPitch:         f64Ptr(101.2),
		AverageIntensity: f64Ptr(0.04),
		Sentiment:        &analysis.Sentiment{Label: "POSITIVE", Score: 0.93},
	}

	out := Describe(res)

	assert.Contains(t, out, "happy mood")
	assert.Contains(t, out, "Voice Emotion: calm")
	assert.Contains(t, out, "Max Pitch: 412.5")
	assert.Contains(t, out, "Min Pitch: 101.2")
	assert.Contains(t, out, "Average Intensity: 0.04")
	assert.Contains(t, out, "Label: POSITIVE")
	assert.Contains(t, out, `"what a day"`)
	assert.NotContains(t, out, DefaultMetric)
}

func TestComposeIncludesRulesetAndHistory(t *testing.T) {
	history := []store.Message{
		{Role: store.RoleSystem, Content: SystemPrompt},
		{Role: store.RoleUser, Content: "I had a rough week"},
		{Role: store.RoleAssistant, Content: "That sounds exhausting."},
	}

	out := Compose(nil, "I can't sleep", history)

	assert.Contains(t, out, SystemPrompt)
	assert.Contains(t, out, "User: I had a rough week")
	assert.Contains(t, out, "Assistant: That sounds exhausting.")
	assert.Contains(t, out, "I can't sleep")
	// The system message is carried once, not repeated in the transcript.
	assert.Equal(t, 1, strings.Count(out, SystemPrompt))
}

func TestComposeMediaTurn(t *testing.T) {
	res := &analysis.Result{FaceEmotion: strPtr("sad"), Transcript: strPtr("I'm tired")}

	out := Compose(res, "", nil)

	assert.Contains(t, out, SystemPrompt)
	assert.Contains(t, out, "sad")
	assert.Contains(t, out, "I'm tired")
	assert.Contains(t, out, "neutral")
}

func TestComposeMessages(t *testing.T) {
	history := []store.Message{
		{Role: store.RoleSystem, Content: SystemPrompt},
		{Role: store.RoleUser, Content: "hello"},
		{Role: store.RoleAssistant, Content: "hi there"},
	}

	msgs := ComposeMessages(nil, "how are you", history)

	require.Len(t, msgs, 4)
	assert.Equal(t, store.RoleSystem, msgs[0].Role)
	assert.Equal(t, store.RoleUser, msgs[3].Role)
	assert.Equal(t, "how are you", msgs[3].Content)
	// Input history untouched.
	assert.Len(t, history, 3)
}

func TestComposeMessagesAddsMissingSystem(t *testing.T) {
	msgs := ComposeMessages(nil, "first message", nil)

	require.Len(t, msgs, 2)
	assert.Equal(t, store.RoleSystem, msgs[0].Role)
	assert.Equal(t, SystemPrompt, msgs[0].Content)
	assert.Equal(t, "first message", msgs[1].Content)
}

func TestComposeMessagesMediaTurn(t *testing.T) {
	res := &analysis.Result{FaceEmotion: strPtr("angry")}
	msgs := ComposeMessages(res, "", []store.Message{{Role: store.RoleSystem, Content: SystemPrompt}})

	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Content, "angry mood")
	assert.Contains(t, msgs[1].Content, DefaultTranscript)
}

func TestSystemPromptRulesetOrder(t *testing.T) {
	// The ruleset is fixed and ordered; downstream fixtures rely on these
	// anchors being present.
	for _, anchor := range []string{
		"Reflect the user's emotion",
		"Validate the feeling",
		"exactly one practical coping action",
		"at most one clarifying question",
		"Never give a diagnosis or medication advice",
		"crisis line",
		"2-6 sentences",
	} {
		assert.Contains(t, SystemPrompt, anchor)
	}
	assert.Less(t,
		strings.Index(SystemPrompt, "Reflect the user's emotion"),
		strings.Index(SystemPrompt, "Validate the feeling"))
}
