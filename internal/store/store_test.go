package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSystemPrompt = "You are an empathetic listener."

func TestNewConversation(t *testing.T) {
	t.Run("with_system_prompt", func(t *testing.T) {
		c := NewConversation(testSystemPrompt)
		require.Len(t, c.Messages, 1)
		assert.Equal(t, RoleSystem, c.Messages[0].Role)
		assert.Equal(t, testSystemPrompt, c.Messages[0].Content)
	})

	t.Run("context_vector_mode", func(t *testing.T) {
		c := NewConversation("")
		assert.Empty(t, c.Messages)
		assert.Empty(t, c.Context)
	})
}

func TestTrimKeepsSystemMessage(t *testing.T) {
	c := NewConversation(testSystemPrompt)
	for i := 0; i < 10; i++ {
		c.Append(Message{Role: RoleUser, Content: fmt.Sprintf("user %d", i)})
		c.Append(Message{Role: RoleAssistant, Content: fmt.Sprintf("assistant %d", i)})
	}

	c.Trim(5)

	require.Len(t, c.Messages, 5)
	assert.Equal(t, RoleSystem, c.Messages[0].Role)
	// Oldest non-system entries go first, so the tail survives.
	assert.Equal(t, "assistant 9", c.Messages[4].Content)
	assert.Equal(t, "user 8", c.Messages[1].Content)
}

func TestTrimNeverEvictsSystem(t *testing.T) {
	c := NewConversation(testSystemPrompt)
	c.Append(Message{Role: RoleUser, Content: "hello"})

	c.Trim(1)

	require.Len(t, c.Messages, 1)
	assert.Equal(t, RoleSystem, c.Messages[0].Role)
}

func TestTrimContextVector(t *testing.T) {
	c := &Conversation{}
	for i := 0; i < 100; i++ {
		c.Context = append(c.Context, i)
	}

	c.Trim(10)

	require.Len(t, c.Context, 10)
	// Most recent tokens are the ones kept.
	assert.Equal(t, 90, c.Context[0])
	assert.Equal(t, 99, c.Context[9])
}

func TestTrimDisabled(t *testing.T) {
	c := NewConversation(testSystemPrompt)
	for i := 0; i < 10; i++ {
		c.Append(Message{Role: RoleUser, Content: "x"})
	}
	c.Trim(0)
	assert.Len(t, c.Messages, 11)
}

func TestCloneIsIndependent(t *testing.T) {
	c := NewConversation(testSystemPrompt)
	c.Append(Message{Role: RoleUser, Content: "original"})

	cp := c.Clone()
	cp.Messages[1].Content = "changed"
	cp.Append(Message{Role: RoleAssistant, Content: "extra"})

	assert.Equal(t, "original", c.Messages[1].Content)
	assert.Len(t, c.Messages, 2)
}

func newTestFileStore(t *testing.T, maxLen int) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir(), testSystemPrompt, maxLen)
	require.NoError(t, err)
	return s
}

func TestFileStoreLoadFresh(t *testing.T) {
	s := newTestFileStore(t, 20)

	c, err := s.Load(context.Background(), "nobody")
	require.NoError(t, err)
	require.Len(t, c.Messages, 1)
	assert.Equal(t, RoleSystem, c.Messages[0].Role)
}

func TestFileStoreRoundTrip(t *testing.T) {
	s := newTestFileStore(t, 20)
	ctx := context.Background()

	c := NewConversation(testSystemPrompt)
	c.Append(Message{Role: RoleUser, Content: "I feel okay today"})
	c.Append(Message{Role: RoleAssistant, Content: "Glad to hear it."})
	require.NoError(t, s.Save(ctx, "alice", c))

	loaded, err := s.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, c.Messages, loaded.Messages)

	// Save(Load(id)) is a no-op.
	require.NoError(t, s.Save(ctx, "alice", loaded))
	again, err := s.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, loaded.Messages, again.Messages)
}

func TestFileStoreSaveEnforcesBound(t *testing.T) {
	s := newTestFileStore(t, 4)
	ctx := context.Background()

	c := NewConversation(testSystemPrompt)
	for i := 0; i < 10; i++ {
		c.Append(Message{Role: RoleUser, Content: fmt.Sprintf("m%d", i)})
	}
	require.NoError(t, s.Save(ctx, "bob", c))

	loaded, err := s.Load(ctx, "bob")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(loaded.Messages), 4)
	assert.Equal(t, RoleSystem, loaded.Messages[0].Role)
}

func TestFileStoreSanitizesIDs(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, testSystemPrompt, 10)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "../../etc/passwd", NewConversation(testSystemPrompt)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, strings.Contains(entries[0].Name(), ".."))
	assert.Equal(t, dir, filepath.Dir(filepath.Join(dir, entries[0].Name())))
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, testSystemPrompt, 10)
	require.NoError(t, err)

	require.NoError(t, s.Save(context.Background(), "carol", NewConversation(testSystemPrompt)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "stray temp file %s", e.Name())
	}
}

func TestFileStoreConcurrentUpdates(t *testing.T) {
	s := newTestFileStore(t, 100)
	ctx := context.Background()

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := s.Update(ctx, "shared", func(c *Conversation) error {
				c.Append(Message{Role: RoleUser, Content: fmt.Sprintf("user %d", n)})
				c.Append(Message{Role: RoleAssistant, Content: fmt.Sprintf("assistant %d", n)})
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	final, err := s.Load(ctx, "shared")
	require.NoError(t, err)
	// One system message plus every writer's pair: no lost updates.
	assert.Len(t, final.Messages, 1+writers*2)
	for i := 0; i < writers; i++ {
		assert.True(t, containsContent(final.Messages, fmt.Sprintf("user %d", i)))
		assert.True(t, containsContent(final.Messages, fmt.Sprintf("assistant %d", i)))
	}
}

func TestFileStoreUpdateErrorDoesNotPersist(t *testing.T) {
	s := newTestFileStore(t, 20)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, "dave", func(c *Conversation) error {
		c.Append(Message{Role: RoleUser, Content: "kept"})
		return nil
	}))

	err := s.Update(ctx, "dave", func(c *Conversation) error {
		c.Append(Message{Role: RoleUser, Content: "discarded"})
		return fmt.Errorf("backend exploded")
	})
	require.Error(t, err)

	final, err := s.Load(ctx, "dave")
	require.NoError(t, err)
	assert.True(t, containsContent(final.Messages, "kept"))
	assert.False(t, containsContent(final.Messages, "discarded"))
}

func containsContent(msgs []Message, content string) bool {
	for _, m := range msgs {
		if m.Content == content {
			return true
		}
	}
	return false
}
