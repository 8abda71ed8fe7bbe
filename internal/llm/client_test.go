package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSendsContextAndFixedSampling(t *testing.T) {
	var got generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{
			"response": "That sounds really hard.",
			"context":  []int{1, 2, 3, 4},
		})
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL})
	result, err := client.Generate(context.Background(), "hello", []int{9, 9})

	require.NoError(t, err)
	assert.Equal(t, "That sounds really hard.", result.Text)
	assert.Equal(t, []int{1, 2, 3, 4}, result.Context)

	assert.Equal(t, "mistral", got.Model)
	assert.Equal(t, "hello", got.Prompt)
	assert.Equal(t, 200, got.MaxTokens)
	assert.Equal(t, 0.8, got.Temperature)
	assert.Equal(t, 0.5, got.TopP)
	assert.False(t, got.Stream)
	assert.Equal(t, []int{9, 9}, got.Context)
}

func TestGenerateEmptyReplyUsesPlaceholder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"response": "",
			"context":  []int{7},
		})
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL})
	result, err := client.Generate(context.Background(), "hello", nil)

	require.NoError(t, err)
	assert.Equal(t, PlaceholderReply, result.Text)
	assert.Equal(t, []int{7}, result.Context, "context must survive a soft failure")
}

func TestChatSendsMessagesAndReturnsAssistant(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": "I hear you."},
		})
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL, Model: "llama3"})
	messages := []Message{
		{Role: "system", Content: "be kind"},
		{Role: "user", Content: "hi"},
	}
	result, err := client.Chat(context.Background(), messages)

	require.NoError(t, err)
	assert.Equal(t, "I hear you.", result.Text)
	assert.Equal(t, Message{Role: "assistant", Content: "I hear you."}, result.Assistant)
	assert.Equal(t, "llama3", got.Model)
	assert.Equal(t, messages, got.Messages)
	assert.False(t, got.Stream)
}

func TestChatEmptyReplyUsesPlaceholder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{})
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL})
	result, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})

	require.NoError(t, err)
	assert.Equal(t, PlaceholderReply, result.Text)
	assert.Equal(t, PlaceholderReply, result.Assistant.Content)
}

func TestGenerateBackendErrorCarriesStatusAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL})
	_, err := client.Generate(context.Background(), "hello", nil)

	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, http.StatusNotFound, backendErr.Status)
	assert.Contains(t, backendErr.Body, "model not found")
}

func TestGenerateTransportError(t *testing.T) {
	client := NewClient(Config{Endpoint: "http://127.0.0.1:1"})
	_, err := client.Generate(context.Background(), "hello", nil)

	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Error(t, backendErr.Err)
	assert.Zero(t, backendErr.Status)
}

func TestAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL})
	assert.True(t, client.Available(context.Background()))

	down := NewClient(Config{Endpoint: "http://127.0.0.1:1"})
	assert.False(t, down.Available(context.Background()))
}
