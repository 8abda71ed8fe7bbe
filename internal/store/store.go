// Package store persists the bounded per-conversation dialogue memory.
// A conversation is either an ordered message list anchored by a single
// system message (chat-mode generative backends) or an opaque numeric
// continuation vector (legacy prompt-mode backends), never both in the
// same deployment.
package store

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation is the persisted dialogue memory for one conversation id.
// Exactly one of Messages or Context is populated depending on the
// deployment's generative backend mode.
type Conversation struct {
	Messages []Message `json:"messages,omitempty"`
	Context  []int     `json:"context,omitempty"`
}

// NewConversation returns a freshly initialized conversation. A non-empty
// systemPrompt seeds the message list with its single system message; an
// empty one yields the bare state used by context-vector deployments.
func NewConversation(systemPrompt string) *Conversation {
	c := &Conversation{}
	if systemPrompt != "" {
		c.Messages = []Message{{Role: RoleSystem, Content: systemPrompt}}
	}
	return c
}

// Append adds a message to the end of the list.
func (c *Conversation) Append(m Message) {
	c.Messages = append(c.Messages, m)
}

// Trim enforces the retention bound. For message lists the oldest
// non-system entries are dropped first and the leading system message is
// never evicted; for context vectors only the most recent maxLen tokens
// are kept. maxLen <= 0 disables trimming.
func (c *Conversation) Trim(maxLen int) {
	if maxLen <= 0 {
		return
	}
	if len(c.Context) > maxLen {
		c.Context = c.Context[len(c.Context)-maxLen:]
	}
	for len(c.Messages) > maxLen {
		if c.Messages[0].Role == RoleSystem {
			if len(c.Messages) == 1 {
				return
			}
			c.Messages = append(c.Messages[:1], c.Messages[2:]...)
			continue
		}
		c.Messages = c.Messages[1:]
	}
}

// Clone returns a deep copy so callers can mutate request-local state
// without touching what the store handed out.
func (c *Conversation) Clone() *Conversation {
	out := &Conversation{}
	if c.Messages != nil {
		out.Messages = append([]Message(nil), c.Messages...)
	}
	if c.Context != nil {
		out.Context = append([]int(nil), c.Context...)
	}
	return out
}

// Store is the persistence boundary for conversation state. Save must be
// all-or-nothing: a reader always sees either the previous state or the
// fully updated one. Update serializes the whole read-modify-write for a
// conversation id so concurrent turns cannot lose each other's appends.
type Store interface {
	Load(ctx context.Context, id string) (*Conversation, error)
	Save(ctx context.Context, id string, c *Conversation) error
	Update(ctx context.Context, id string, fn func(*Conversation) error) error
}
